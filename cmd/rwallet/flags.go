// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import "github.com/urfave/cli/v2"

const (
	flagBacking     = "backing"
	flagConfig      = "config"
	flagDataDir     = "data-dir"
	flagDataFile    = "data-file"
	flagOwnerSecret = "owner-secret"
	flagPurseSecret = "purse-secret"
	flagSelfTest    = "self-test"
	flagTxBody      = "tx-body"
	flagTxHash      = "tx-hash"
	flagWalletURL   = "wallet-url"
)

func getFlags() map[string]cli.Flag {
	return map[string]cli.Flag{
		flagConfig: &cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Value:   "./rwallet.yaml",
			EnvVars: []string{"RWALLET_CONFIG"},
			Usage:   "path to configuration",
		},
		flagDataDir: &cli.StringFlag{
			Name:    flagDataDir,
			Aliases: []string{"d"},
			EnvVars: []string{"RWALLET_DATA_DIR"},
			Usage:   "directory of the purse UTXO set, will override value from config file",
		},
		flagOwnerSecret: &cli.StringFlag{
			Name:    flagOwnerSecret,
			EnvVars: []string{"RWALLET_OWNER_SECRET"},
			Usage:   "owner secret key, will override value from config file",
		},
		flagPurseSecret: &cli.StringFlag{
			Name:    flagPurseSecret,
			EnvVars: []string{"RWALLET_PURSE_SECRET"},
			Usage:   "purse secret key, will override value from config file",
		},
		flagWalletURL: &cli.StringFlag{
			Name:    flagWalletURL,
			Aliases: []string{"u"},
			EnvVars: []string{"RWALLET_URL"},
			Usage:   "url of the remote wallet, will override value from config file",
		},
		flagDataFile: &cli.StringFlag{
			Name:     flagDataFile,
			Aliases:  []string{"f"},
			EnvVars:  []string{"RWALLET_DATA_FILE"},
			Usage:    "path to CSV input/output",
			Required: true,
		},
		flagTxHash: &cli.StringFlag{
			Name:     flagTxHash,
			Aliases:  []string{"x"},
			Usage:    "hash of transaction paying the purse",
			Required: true,
		},
		flagTxBody: &cli.StringFlag{
			Name:     flagTxBody,
			Aliases:  []string{"b"},
			Usage:    "hex-encoded body of transaction",
			Required: true,
		},
		flagBacking: &cli.BoolFlag{
			Name:  flagBacking,
			Value: true,
			Usage: "expect the purse to pay for backed outputs",
		},
		flagSelfTest: &cli.BoolFlag{
			Name:  flagSelfTest,
			Usage: "run against an in-memory wallet and chain instead of the configured ones",
		},
	}
}
