// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"github.com/rs/zerolog"
	"gitlab.com/jaxnet/rwallet/corelog"
	"gitlab.com/jaxnet/rwallet/txmodels"
)

// Addresses is the answer of the address query.
type Addresses struct {
	Owner string `json:"owner"`
	Purse string `json:"purse"`
}

// Purse adds funding inputs and a change output so that the draft pays its
// fee and backing value. It returns a new transaction and never mutates tx.
type Purse interface {
	Pay(ctx context.Context, tx *wire.MsgTx, parents txmodels.Parents) (*wire.MsgTx, error)
}

// Owner signs the inputs whose locks it controls. locks has one entry per
// input of tx; an empty entry requests nothing.
type Owner interface {
	Sign(ctx context.Context, tx *wire.MsgTx, parents txmodels.Parents, locks []txmodels.Lock) (*wire.MsgTx, error)
}

// Wallet is the full capability set consumed by the batch coordinator, either
// local or behind the transport.
type Wallet interface {
	Purse
	Owner
	Addresses(ctx context.Context) (Addresses, error)
	// Broadcast informs the wallet that tx was accepted by the network.
	Broadcast(ctx context.Context, tx *wire.MsgTx) error
	// Release abandons a funded transaction that will not be broadcast, so
	// the purse outputs it spends can fund other drafts.
	Release(ctx context.Context, tx *wire.MsgTx) error
}

// log is a logger that is initialized with no output filters.  This
// means the package will not perform any logging by default until the caller
// requests it.
var log = corelog.Disabled

// DisableLog disables all library log output.
func DisableLog() {
	log = corelog.Disabled
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger zerolog.Logger) {
	log = logger
}
