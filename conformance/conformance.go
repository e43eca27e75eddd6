// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package conformance runs a fixed script of batches against any wallet and
// checks the results on chain without looking into the wallet.
package conformance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gitlab.com/jaxnet/rwallet/batch"
	"gitlab.com/jaxnet/rwallet/chain"
	"gitlab.com/jaxnet/rwallet/corelog"
	"gitlab.com/jaxnet/rwallet/wallet"
)

// Env is the wallet under test and the chain its transactions go to.
type Env struct {
	Wallet wallet.Wallet
	Chain  chain.Blockchain
	Params *chaincfg.Params
	Batch  batch.Config
	// MinFeeRate is the rate every receipt must pay, sat/byte.
	MinFeeRate int64
}

type Options struct {
	// SupportsBacking selects which backing scenario is expected to pass:
	// paying for a 5000 sat output, or refusing it.
	SupportsBacking bool
}

// Result is the outcome of one scenario.
type Result struct {
	Suite    string
	Name     string
	TxHash   string
	Err      error
	Skipped  bool
	Duration time.Duration
}

func (r Result) Passed() bool { return r.Err == nil && !r.Skipped }

func (r Result) String() string {
	status := "PASS"
	switch {
	case r.Skipped:
		status = "SKIP"
	case r.Err != nil:
		status = "FAIL"
	}
	line := fmt.Sprintf("%s %s/%s", status, r.Suite, r.Name)
	if r.Err != nil {
		line += ": " + r.Err.Error()
	}
	return line
}

type Report struct {
	Results []Result
}

// Passed is true when every scenario passed.
func (r Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed() {
			return false
		}
	}
	return len(r.Results) > 0
}

func (r Report) Failed() []Result {
	var res []Result
	for _, item := range r.Results {
		if !item.Passed() {
			res = append(res, item)
		}
	}
	return res
}

func (r Report) String() string {
	lines := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		lines = append(lines, res.String())
	}
	return strings.Join(lines, "\n")
}

var log = corelog.Disabled

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger zerolog.Logger) {
	log = logger
}

// Run executes the owner, purse and end-to-end suites in order. Scenarios of
// a suite share one coordinator and build on each other, so the rest of a
// suite is skipped after a failure. The error is only returned when the
// environment itself is unusable.
func Run(ctx context.Context, env Env, opts Options) (Report, error) {
	if env.Wallet == nil || env.Chain == nil || env.Params == nil {
		return Report{}, errors.New("conformance env is incomplete")
	}
	if env.MinFeeRate <= 0 {
		env.MinFeeRate = 1
	}
	if env.Batch.DustAmount == 0 {
		env.Batch = batch.DefaultConfig()
	}

	var report Report
	for _, s := range suites(opts) {
		g := &gate{Wallet: env.Wallet}
		coord, err := batch.NewCoordinator(ctx, g, env.Chain, env.Params, env.Batch)
		if err != nil {
			return report, errors.Wrapf(err, "unable to start suite %s", s.name)
		}

		r := &runner{env: env, coord: coord, gate: g, ctx: ctx}
		failed := false
		for _, sc := range s.scenarios {
			res := Result{Suite: s.name, Name: sc.name}
			if failed || ctx.Err() != nil {
				res.Skipped = true
				report.Results = append(report.Results, res)
				continue
			}

			started := time.Now()
			res.TxHash, res.Err = sc.run(r)
			res.Duration = time.Since(started)
			failed = res.Err != nil

			event := log.Info()
			if failed {
				event = log.Error().Err(res.Err)
			}
			event.Str("suite", s.name).Str("scenario", sc.name).Dur("took", res.Duration).Msg("Scenario finished")
			report.Results = append(report.Results, res)
		}
	}
	return report, nil
}
