// Command receiver accepts exactly one peer over a TCP byte-stream or
// UDP datagram Channel and writes delivered bytes to stdout as they
// arrive.
package main

import (
	"fmt"
	"log"
	"os"
	"time"

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
	app.Name = "receiver"
	app.Usage = "collects data from a sender over the reliable-stream transport"
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "port", Value: 7000, Usage: "listen port"},
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
		Port:       c.Int("port"),
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
	entry := logging.Entry(logger, "receiver")

	entry.WithFields(map[string]interface{}{
		"port": config.Port,
		"udp":  config.UDP,
	}).Info("waiting for sender")

	var ch channel.Channel
	if config.UDP {
		ch, err = channel.ListenDatagramSingleRemote(config.Port)
	} else {
		ch, err = channel.ListenByteStreamSingleRemote("tcp", fmt.Sprintf(":%d", config.Port))
	}
	checkError(err)

	ctl := controllerclient.New(config.Controller, entry)

	recvMutator := mutator.Mutator(&mutator.StatsRelay{Key: "server_recv", Sink: ctl})
	transmitMutator := mutator.Mutator(&mutator.StatsRelay{Key: "server_sent", Sink: ctl})

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

	for s.IsOpen() {
		data := s.Read(1, 0)
		if len(data) > 0 {
			os.Stdout.Write(data)
		}

		if delay := ctl.GetConfig("recv_delay", 0); delay > 0 {
			time.Sleep(time.Duration(delay * float64(time.Second)))
		}
	}

	return nil
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(1)
	}
}
