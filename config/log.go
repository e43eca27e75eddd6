// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"github.com/rs/zerolog"
	"gitlab.com/jaxnet/rwallet/batch"
	"gitlab.com/jaxnet/rwallet/chain"
	"gitlab.com/jaxnet/rwallet/conformance"
	"gitlab.com/jaxnet/rwallet/corelog"
	"gitlab.com/jaxnet/rwallet/network/rpc"
	"gitlab.com/jaxnet/rwallet/network/rpcclient"
	"gitlab.com/jaxnet/rwallet/wallet"
)

const (
	LogUnitMain = "RWLT"
	LogUnitWLLT = "WLLT"
	LogUnitBTCH = "BTCH"
	LogUnitCHAN = "CHAN"
	LogUnitRPCS = "RPCS"
	LogUnitRPCC = "RPCC"
	LogUnitCONF = "CONF"
	LogUnitSTRG = "STRG"
)

// SetupLoggers creates the root logger and hands a sub-logger to every
// subsystem. The returned map is keyed by unit.
func SetupLoggers(cfg corelog.Config) (map[string]zerolog.Logger, error) {
	level, err := cfg.ParseLevel()
	if err != nil {
		return nil, err
	}

	root := corelog.New(LogUnitMain, level, cfg)
	loggers := map[string]zerolog.Logger{LogUnitMain: root}
	for _, unit := range []string{LogUnitWLLT, LogUnitBTCH, LogUnitCHAN, LogUnitRPCS, LogUnitRPCC, LogUnitCONF, LogUnitSTRG} {
		loggers[unit] = corelog.Sub(root, unit)
	}

	wallet.UseLogger(loggers[LogUnitWLLT])
	batch.UseLogger(loggers[LogUnitBTCH])
	chain.UseLogger(loggers[LogUnitCHAN])
	rpc.UseLogger(loggers[LogUnitRPCS])
	rpcclient.UseLogger(loggers[LogUnitRPCC])
	conformance.UseLogger(loggers[LogUnitCONF])
	return loggers, nil
}
