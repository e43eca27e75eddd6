// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"gitlab.com/jaxnet/rwallet/txmodels"
	"gitlab.com/jaxnet/rwallet/txutils"
)

// Mockchain is an in-memory ledger. It accepts a transaction only if every
// input spends a known unspent output with a valid signature and the fee
// meets the minimal rate.
type Mockchain struct {
	params     *chaincfg.Params
	minFeeRate int64

	mu      sync.RWMutex
	txs     map[chainhash.Hash]*wire.MsgTx
	order   []chainhash.Hash
	unspent map[wire.OutPoint]*wire.TxOut
	spentBy map[wire.OutPoint]chainhash.Hash
	faucet  uint32
}

func NewMockchain(params *chaincfg.Params) *Mockchain {
	return &Mockchain{
		params:     params,
		minFeeRate: txutils.MinFeeRate,
		txs:        map[chainhash.Hash]*wire.MsgTx{},
		unspent:    map[wire.OutPoint]*wire.TxOut{},
		spentBy:    map[wire.OutPoint]chainhash.Hash{},
	}
}

func (m *Mockchain) Params() *chaincfg.Params { return m.params }

func (m *Mockchain) SetMinFeeRate(rate int64) {
	m.mu.Lock()
	m.minFeeRate = rate
	m.mu.Unlock()
}

// Fund mints outputs paying address, one per amount.
func (m *Mockchain) Fund(address string, amounts ...int64) (*wire.MsgTx, error) {
	script, err := txmodels.Lock(address).Script(m.params)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.faucet++
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: m.faucet}, []byte{txscript.OP_TRUE}, nil))
	for _, amount := range amounts {
		tx.AddTxOut(wire.NewTxOut(amount, script))
	}

	m.accept(tx)
	return tx.Copy(), nil
}

func (m *Mockchain) Broadcast(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tx == nil || len(tx.TxIn) == 0 || len(tx.TxOut) == 0 {
		return nil, errors.Wrap(ErrRejected, "transaction has no inputs or outputs")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	hash := tx.TxHash()
	if _, ok := m.txs[hash]; ok {
		return &hash, nil
	}

	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(tx.TxIn))
	var in, out int64
	for i, txIn := range tx.TxIn {
		op := txIn.PreviousOutPoint
		if _, dup := prevOuts[op]; dup {
			return nil, errors.Wrapf(ErrRejected, "input %d spends %s twice", i, op)
		}

		prev, ok := m.unspent[op]
		if !ok {
			if by, spent := m.spentBy[op]; spent {
				return nil, errors.Wrapf(ErrRejected, "input %d: %s already spent by %s", i, op, by)
			}
			return nil, errors.Wrapf(ErrRejected, "input %d: %s is unknown", i, op)
		}
		prevOuts[op] = prev
		in += prev.Value
	}
	for _, txOut := range tx.TxOut {
		if txOut.Value < 0 {
			return nil, errors.Wrap(ErrRejected, "negative output")
		}
		out += txOut.Value
	}

	fee := in - out
	if minFee := m.minFeeRate * int64(tx.SerializeSize()); fee < minFee {
		return nil, errors.Wrapf(ErrRejected, "fee %d is below %d", fee, minFee)
	}

	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	for i, txIn := range tx.TxIn {
		if err := txutils.VerifyInput(tx, i, prevOuts[txIn.PreviousOutPoint], fetcher); err != nil {
			return nil, errors.Wrap(ErrRejected, err.Error())
		}
	}

	for op := range prevOuts {
		delete(m.unspent, op)
		m.spentBy[op] = hash
	}
	m.accept(tx.Copy())

	log.Debug().Str("tx", hash.String()).Int64("fee", fee).Msg("transaction accepted")
	return &hash, nil
}

// accept must be called with m.mu held.
func (m *Mockchain) accept(tx *wire.MsgTx) {
	hash := tx.TxHash()
	m.txs[hash] = tx
	m.order = append(m.order, hash)
	for i, txOut := range tx.TxOut {
		if txscript.GetScriptClass(txOut.PkScript) == txscript.NullDataTy {
			continue
		}
		m.unspent[wire.OutPoint{Hash: hash, Index: uint32(i)}] = txOut
	}
}

func (m *Mockchain) FetchTx(ctx context.Context, hash chainhash.Hash) (*wire.MsgTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.txs[hash]
	if !ok {
		return nil, errors.Wrap(ErrTxNotFound, hash.String())
	}
	return tx.Copy(), nil
}

// Txs returns accepted transactions in order, faucet ones included.
func (m *Mockchain) Txs() []*wire.MsgTx {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make([]*wire.MsgTx, len(m.order))
	for i, h := range m.order {
		res[i] = m.txs[h].Copy()
	}
	return res
}

// Last returns the latest accepted transaction.
func (m *Mockchain) Last() (*wire.MsgTx, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.order) == 0 {
		return nil, false
	}
	return m.txs[m.order[len(m.order)-1]].Copy(), true
}

func (m *Mockchain) SpentBy(op wire.OutPoint) (chainhash.Hash, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.spentBy[op]
	return h, ok
}

// Balance sums unspent outputs paying address.
func (m *Mockchain) Balance(address string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sum int64
	lock := txmodels.Lock(address)
	for _, out := range m.unspent {
		if txmodels.LockFromScript(out.PkScript, m.params) == lock {
			sum += out.Value
		}
	}
	return sum
}
