// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"gitlab.com/jaxnet/rwallet/txmodels"
)

// Local is an in-process wallet. It is what the transport server exposes.
type Local struct {
	purse *LocalPurse
	owner *LocalOwner
}

func NewLocal(owner *LocalOwner, purse *LocalPurse) *Local {
	return &Local{owner: owner, purse: purse}
}

func (w *Local) Purse() *LocalPurse { return w.purse }
func (w *Local) Owner() *LocalOwner { return w.owner }

func (w *Local) Addresses(context.Context) (Addresses, error) {
	return Addresses{Owner: w.owner.Address(), Purse: w.purse.Address()}, nil
}

func (w *Local) Pay(ctx context.Context, tx *wire.MsgTx, parents txmodels.Parents) (*wire.MsgTx, error) {
	return w.purse.Pay(ctx, tx, parents)
}

func (w *Local) Sign(ctx context.Context, tx *wire.MsgTx, parents txmodels.Parents,
	locks []txmodels.Lock) (*wire.MsgTx, error) {
	return w.owner.Sign(ctx, tx, parents, locks)
}

// Broadcast settles the purse bookkeeping for an accepted transaction.
func (w *Local) Broadcast(ctx context.Context, tx *wire.MsgTx) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tx == nil {
		return NewError(CodeInvalidDraft, "transaction is empty")
	}
	if err := w.purse.Spent(tx); err != nil {
		return err
	}
	log.Info().Str("tx", tx.TxHash().String()).Msg("transaction broadcast")
	return nil
}

func (w *Local) Release(ctx context.Context, tx *wire.MsgTx) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tx == nil {
		return NewError(CodeInvalidDraft, "transaction is empty")
	}
	n := w.purse.Release(tx)
	log.Debug().Str("tx", tx.TxHash().String()).Int("payments", n).Msg("funding released")
	return nil
}
