// Command sender transmits a file, or stdin line-by-line, to a
// receiver through a reliable Stream built over either a TCP
// byte-stream or a UDP datagram Channel.
package main

import (
	"bufio"
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/comp7005/reliablestream/channel"
	"github.com/comp7005/reliablestream/controllerclient"
	"github.com/comp7005/reliablestream/logging"
	"github.com/comp7005/reliablestream/mutator"
	"github.com/comp7005/reliablestream/rsautil"
	"github.com/comp7005/reliablestream/stream"
)

func main() {
	app := cli.NewApp()
	app.Name = "sender"
	app.Usage = "transmits data to a receiver over the reliable-stream transport"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "target", Value: "127.0.0.1", Usage: "receiver host"},
		cli.IntFlag{Name: "target-port", Value: 6000, Usage: "receiver port"},
		cli.StringFlag{Name: "file", Usage: "file to transmit; if unset, reads stdin line by line"},
		cli.StringFlag{Name: "controller", Value: "http://127.0.0.1:5000", Usage: "controller base URL"},
		cli.BoolFlag{Name: "udp", Usage: "use the datagram Channel instead of byte-stream"},
		cli.StringFlag{Name: "pub-key", Usage: "public key file, used to decrypt received data"},
		cli.StringFlag{Name: "priv-key", Usage: "private key file, used to encrypt transmitted data"},
		cli.StringFlag{Name: "log", Value: "", Usage: "specify a log file to output, default goes to stderr"},
		cli.StringFlag{Name: "c", Value: "", Usage: "config from yaml file, which will override the command from shell"},
	}
	app.Action = run

	checkError(app.Run(os.Args))
}

func run(c *cli.Context) error {
	config := Config{
		Target:     c.String("target"),
		TargetPort: c.Int("target-port"),
		File:       c.String("file"),
		Controller: c.String("controller"),
		UDP:        c.Bool("udp"),
		PubKey:     c.String("pub-key"),
		PrivKey:    c.String("priv-key"),
		Log:        c.String("log"),
	}
	if c.String("c") != "" {
		checkError(parseYAMLConfig(&config, c.String("c")))
	}

	logger, closeLog, err := logging.New(config.Log)
	checkError(err)
	defer closeLog()
	entry := logging.Entry(logger, "sender")

	entry.WithFields(map[string]interface{}{
		"target":      config.Target,
		"target_port": config.TargetPort,
		"udp":         config.UDP,
		"controller":  config.Controller,
	}).Info("starting sender")

	var ch channel.Channel
	if config.UDP {
		ch, err = channel.DialDatagram(fmt.Sprintf("%s:%d", config.Target, config.TargetPort))
	} else {
		ch, err = channel.DialByteStream("tcp", fmt.Sprintf("%s:%d", config.Target, config.TargetPort))
	}
	checkError(err)

	ctl := controllerclient.New(config.Controller, entry)

	recvMutator := mutator.Mutator(&mutator.StatsRelay{Key: "client_recv", Sink: ctl})
	transmitMutator := mutator.Mutator(&mutator.StatsRelay{Key: "client_sent", Sink: ctl})

	segmentSize := 0
	if config.PubKey != "" {
		key, err := rsautil.LoadKey(config.PubKey)
		checkError(err)
		recvMutator = mutator.Compose(mutator.Crypto{Key: key, Decrypt: true, OnError: func(err error) {
			entry.WithError(err).Warn("dropping undecryptable block")
		}}, recvMutator)
	}
	if config.PrivKey != "" {
		key, err := rsautil.LoadKey(config.PrivKey)
		checkError(err)
		crypto := mutator.Crypto{Key: key, OnError: func(err error) {
			entry.WithError(err).Warn("dropping block too large to encrypt")
		}}
		transmitMutator = mutator.Compose(transmitMutator, crypto)
		segmentSize = crypto.MaxPayloadLen()
	}

	s := stream.New(ch, stream.Options{
		RecvMutator:     recvMutator,
		TransmitMutator: transmitMutator,
		SegmentSize:     segmentSize,
	})
	defer s.Close()

	if config.File != "" {
		transmitFile(s, config.File)
	} else {
		transmitStdin(s, entry)
	}

	return nil
}

func transmitFile(s *stream.Stream, path string) {
	f, err := os.Open(path)
	checkError(err)
	defer f.Close()

	buf := make([]byte, s.PreferredSegmentSize())
	for {
		n, err := f.Read(buf)
		if n > 0 {
			s.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
}

func transmitStdin(s *stream.Stream, entry *logrus.Entry) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		entry.Infof("writing: %s", scanner.Text())
		s.Write(scanner.Bytes())
	}
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(1)
	}
}
