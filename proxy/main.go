// Command proxy bridges a single client connection to a single target
// connection, applying independently configurable random-drop rates in
// each direction, live-updated by polling the controller service.
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
	"github.com/comp7005/reliablestream/stream"
)

// controllerPollPeriod mirrors the proxy's own poll cadence against
// the controller service.
const controllerPollPeriod = 200 * time.Millisecond

func main() {
	app := cli.NewApp()
	app.Name = "proxy"
	app.Usage = "bridges a client and a target, applying configurable drop rates in each direction"
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "proxy-port", Value: 6000, Usage: "port to host the proxy service on"},
		cli.IntFlag{Name: "target-port", Value: 7000, Usage: "target port to proxy data to"},
		cli.StringFlag{Name: "target", Value: "127.0.0.1", Usage: "target host to proxy data to"},
		cli.StringFlag{Name: "controller", Value: "http://127.0.0.1:5000", Usage: "controller base URL"},
		cli.BoolFlag{Name: "udp", Usage: "use the datagram Channel instead of byte-stream"},
		cli.StringFlag{Name: "log", Value: "", Usage: "specify a log file to output, default goes to stderr"},
		cli.StringFlag{Name: "c", Value: "", Usage: "config from yaml file, which will override the command from shell"},
	}
	app.Action = run

	checkError(app.Run(os.Args))
}

func run(c *cli.Context) error {
	config := Config{
		ProxyPort:  c.Int("proxy-port"),
		TargetPort: c.Int("target-port"),
		Target:     c.String("target"),
		Controller: c.String("controller"),
		UDP:        c.Bool("udp"),
		Log:        c.String("log"),
	}
	if c.String("c") != "" {
		checkError(parseYAMLConfig(&config, c.String("c")))
	}

	logger, closeLog, err := logging.New(config.Log)
	checkError(err)
	defer closeLog()
	entry := logging.Entry(logger, "proxy")

	entry.WithFields(map[string]interface{}{
		"proxy_port":  config.ProxyPort,
		"target":      config.Target,
		"target_port": config.TargetPort,
		"udp":         config.UDP,
	}).Info("waiting for connection to proxy")

	var clientSide channel.Channel
	if config.UDP {
		clientSide, err = channel.ListenDatagramSingleRemote(config.ProxyPort)
	} else {
		clientSide, err = channel.ListenByteStreamSingleRemote("tcp", fmt.Sprintf(":%d", config.ProxyPort))
	}
	checkError(err)

	entry.Info("establishing connection to target")

	var targetSide channel.Channel
	targetAddr := fmt.Sprintf("%s:%d", config.Target, config.TargetPort)
	if config.UDP {
		targetSide, err = channel.DialDatagram(targetAddr)
	} else {
		targetSide, err = channel.DialByteStream("tcp", targetAddr)
	}
	checkError(err)

	entry.Info("target connection established, bridging")

	ctl := controllerclient.New(config.Controller, entry)

	clientToTargetDrop := mutator.NewRandomDrop(0)
	targetToClientDrop := mutator.NewRandomDrop(0)

	clientToTarget := mutator.Compose(&mutator.StatsRelay{Key: "proxy_sent", Sink: ctl}, clientToTargetDrop)
	targetToClient := mutator.Compose(&mutator.StatsRelay{Key: "proxy_recv", Sink: ctl}, targetToClientDrop)

	bridge := stream.NewBridge(clientSide, targetSide, clientToTarget, targetToClient)
	go bridge.Run()

	for {
		select {
		case <-bridge.Done():
			entry.Info("bridge stopped")
			return nil
		case <-time.After(controllerPollPeriod):
			clientToTargetDrop.SetDrop(ctl.GetConfig("client_server_drop", 0) / 100.0)
			targetToClientDrop.SetDrop(ctl.GetConfig("server_client_drop", 0) / 100.0)
		}
	}
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(1)
	}
}
