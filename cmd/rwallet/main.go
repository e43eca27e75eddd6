// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &App{}
	cliApp := &cli.App{
		Name:     "rwallet",
		Usage:    "remote owner/purse wallet",
		Flags:    app.InitFlags(),
		Before:   app.InitCfg,
		Commands: app.getCommands(),
	}

	err := cliApp.Run(os.Args)
	if err != nil {
		println(err.Error())
		os.Exit(1)
	}
}

func (app *App) getCommands() cli.Commands {
	flags := getFlags()
	return []*cli.Command{
		{
			Name:   "serve",
			Usage:  "serve the wallet over HTTP",
			Action: app.serveCmd,
		},
		{
			Name:   "addresses",
			Usage:  "query owner and purse addresses of a remote wallet",
			Action: app.addressesCmd,
		},
		{
			Name:  "utxo",
			Usage: "manage the purse UTXO set",
			Subcommands: []*cli.Command{
				{
					Name:   "import",
					Usage:  "load purse outputs from a CSV file",
					Flags:  []cli.Flag{flags[flagDataFile]},
					Action: app.importUTXOCmd,
				},
				{
					Name:   "export",
					Usage:  "dump purse outputs to a CSV file",
					Flags:  []cli.Flag{flags[flagDataFile]},
					Action: app.exportUTXOCmd,
				},
				{
					Name:   "track",
					Usage:  "fetch a transaction from the node and track its purse outputs",
					Flags:  []cli.Flag{flags[flagTxHash]},
					Action: app.trackUTXOCmd,
				},
			},
		},
		{
			Name:   "conformance",
			Usage:  "run the conformance scenarios against a wallet",
			Flags:  []cli.Flag{flags[flagBacking], flags[flagSelfTest]},
			Action: app.conformanceCmd,
		},
		{
			Name:   "decode-tx",
			Usage:  "dump a hex-encoded transaction",
			Flags:  []cli.Flag{flags[flagTxBody]},
			Action: app.decodeTxCmd,
		},
		{
			Name:   "keygen",
			Usage:  "generate a new key for the configured net",
			Action: app.keygenCmd,
		},
		{
			Name:   "init-config",
			Usage:  "write the default configuration to the config path",
			Action: app.initConfigCmd,
		},
	}
}
