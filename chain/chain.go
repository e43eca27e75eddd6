// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gitlab.com/jaxnet/rwallet/corelog"
)

var (
	ErrTxNotFound = errors.New("transaction not found")
	ErrRejected   = errors.New("transaction rejected")
)

// Blockchain accepts fully signed transactions and serves known ones.
type Blockchain interface {
	Broadcast(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error)
	FetchTx(ctx context.Context, hash chainhash.Hash) (*wire.MsgTx, error)
}

var log = corelog.Disabled

// DisableLog disables all library log output.
func DisableLog() {
	log = corelog.Disabled
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger zerolog.Logger) {
	log = logger
}
