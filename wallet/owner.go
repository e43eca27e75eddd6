// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"gitlab.com/jaxnet/rwallet/txmodels"
	"gitlab.com/jaxnet/rwallet/txutils"
)

// LocalOwner authorizes spending of outputs locked to its key.
type LocalOwner struct {
	key *txutils.KeyData
}

func NewLocalOwner(key *txutils.KeyData) *LocalOwner {
	return &LocalOwner{key: key}
}

func (o *LocalOwner) Address() string { return o.key.Address.EncodeAddress() }

// Sign signs the inputs whose lock names the owner. Inputs with an empty lock
// are left as they are, even when their parent pays the owner. Signatures are
// deterministic, so signing the same draft twice gives the same bytes.
func (o *LocalOwner) Sign(ctx context.Context, tx *wire.MsgTx, parents txmodels.Parents,
	locks []txmodels.Lock) (*wire.MsgTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, NewError(CodeInvalidDraft, "draft is empty")
	}
	if len(locks) > len(tx.TxIn) {
		return nil, NewError(CodeInvalidDraft, "%d locks for %d inputs", len(locks), len(tx.TxIn))
	}

	var (
		owner  = o.key.Lock()
		params = o.key.Net()
		signed = tx.Copy()
		count  int
	)

	for i, in := range signed.TxIn {
		var lock txmodels.Lock
		if i < len(locks) {
			lock = locks[i]
		}
		if lock.IsEmpty() {
			continue
		}
		if lock != owner {
			return nil, NewError(CodeUnauthorizedLock, "input %d is locked to %s", i, lock)
		}

		prev, ok := parents.PrevOut(in.PreviousOutPoint)
		if !ok {
			return nil, NewError(CodeStaleParents, "input %d spends unknown output %s", i, in.PreviousOutPoint)
		}
		if actual := txmodels.LockFromScript(prev.PkScript, params); actual != lock {
			return nil, NewError(CodeStaleParents, "input %d expects %s, parent pays %s", i, lock, actual)
		}

		if _, err := txutils.SignInput(signed, i, prev.PkScript, o.key.PrivateKey); err != nil {
			return nil, errors.Wrapf(err, "unable to sign input %d", i)
		}
		count++
	}

	log.Debug().Str("tx", signed.TxHash().String()).Int("signed", count).Msg("draft signed")
	return signed, nil
}
