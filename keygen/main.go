// Command keygen generates an RSA key pair for the crypto mutator and
// writes ./public.key and ./private.key as JSON {"k": ..., "n": ...}.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli"

	"github.com/comp7005/reliablestream/rsautil"
)

func main() {
	app := cli.NewApp()
	app.Name = "keygen"
	app.Usage = "generate an RSA key pair for the stream crypto mutator"
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "bits",
			Value: 2048,
			Usage: "modulus bit length; bounds the crypto mutator's per-packet payload size",
		},
		cli.StringFlag{
			Name:  "public-out",
			Value: "./public.key",
			Usage: "output path for the public key",
		},
		cli.StringFlag{
			Name:  "private-out",
			Value: "./private.key",
			Usage: "output path for the private key",
		},
	}
	app.Action = func(c *cli.Context) error {
		public, private, err := rsautil.GenerateKeyPair(c.Int("bits"))
		checkError(err)

		checkError(rsautil.SaveKey(c.String("public-out"), public))
		checkError(rsautil.SaveKey(c.String("private-out"), private))

		log.Println("wrote", c.String("public-out"), "and", c.String("private-out"))
		log.Println("crypto mutator max payload size:", rsautil.MaxPayloadLen(public), "bytes")
		return nil
	}

	checkError(app.Run(os.Args))
}

func checkError(err error) {
	if err != nil {
		log.Printf("%+v\n", err)
		os.Exit(1)
	}
}
