// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txmodels

import (
	"bytes"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// Lock is the spending condition of an output, expressed as the address it pays.
// An empty Lock means that no owner authorization is requested for an input.
type Lock string

func (l Lock) String() string { return string(l) }
func (l Lock) IsEmpty() bool  { return l == "" }

// Script returns the locking script for the address.
func (l Lock) Script(params *chaincfg.Params) ([]byte, error) {
	return GetPayToAddressScript(string(l), params)
}

// LockFromScript returns the address paid by pkScript, or an empty Lock for
// scripts which don't pay a single address.
func LockFromScript(pkScript []byte, params *chaincfg.Params) Lock {
	_, addresses, _, err := txscript.ExtractPkScriptAddrs(pkScript, params)
	if err != nil || len(addresses) != 1 {
		return ""
	}
	return Lock(addresses[0].EncodeAddress())
}

func GetPayToAddressScript(address string, params *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, params)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to decode address(%s)", address)
	}
	if !addr.IsForNet(params) {
		return nil, errors.Errorf("address(%s) is not for %s", address, params.Name)
	}

	script, err := txscript.PayToAddrScript(addr)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create pay-to-address script")
	}
	return script, nil
}

// Parents holds the transactions whose outputs are spent by a draft.
type Parents map[chainhash.Hash]*wire.MsgTx

func NewParents(txs ...*wire.MsgTx) Parents {
	parents := make(Parents, len(txs))
	for _, tx := range txs {
		parents.Add(tx)
	}
	return parents
}

func (p Parents) Add(tx *wire.MsgTx) {
	if tx == nil {
		return
	}
	p[tx.TxHash()] = tx
}

// PrevOut resolves the output spent by an outpoint.
func (p Parents) PrevOut(op wire.OutPoint) (*wire.TxOut, bool) {
	tx, ok := p[op.Hash]
	if !ok || int(op.Index) >= len(tx.TxOut) {
		return nil, false
	}
	return tx.TxOut[op.Index], true
}

// List returns parents ordered by hash.
func (p Parents) List() []*wire.MsgTx {
	hashes := make([]chainhash.Hash, 0, len(p))
	for h := range p {
		hashes = append(hashes, h)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return bytes.Compare(hashes[i][:], hashes[j][:]) < 0
	})

	list := make([]*wire.MsgTx, len(hashes))
	for i, h := range hashes {
		list[i] = p[h]
	}
	return list
}

// Only returns the subset of parents spent by tx.
func (p Parents) Only(tx *wire.MsgTx) Parents {
	res := Parents{}
	for _, in := range tx.TxIn {
		if parent, ok := p[in.PreviousOutPoint.Hash]; ok {
			res[in.PreviousOutPoint.Hash] = parent
		}
	}
	return res
}

func (p Parents) Clone() Parents {
	res := make(Parents, len(p))
	for h, tx := range p {
		res[h] = tx.Copy()
	}
	return res
}

// Draft is a transaction under construction together with everything a
// capability needs to reason about it.
type Draft struct {
	Tx      *wire.MsgTx
	Parents Parents
	// Locks has one entry per input of Tx.
	Locks []Lock
}

func NewDraft() *Draft {
	return &Draft{
		Tx:      wire.NewMsgTx(wire.TxVersion),
		Parents: Parents{},
	}
}

// AddInput spends op and requests authorization for lock.
func (d *Draft) AddInput(op wire.OutPoint, lock Lock, parent *wire.MsgTx) {
	d.Tx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	d.Locks = append(d.Locks, lock)
	d.Parents.Add(parent)
}

func (d *Draft) AddOutput(value int64, pkScript []byte) uint32 {
	d.Tx.AddTxOut(wire.NewTxOut(value, pkScript))
	return uint32(len(d.Tx.TxOut) - 1)
}

// Clone makes a new version of the draft.
func (d *Draft) Clone() *Draft {
	locks := make([]Lock, len(d.Locks))
	copy(locks, d.Locks)
	return &Draft{
		Tx:      d.Tx.Copy(),
		Parents: d.Parents.Clone(),
		Locks:   locks,
	}
}

// Next is the version of the draft carrying tx, the transaction a capability
// returned for it. Locks are aligned with the inputs of tx.
func (d *Draft) Next(tx *wire.MsgTx) *Draft {
	next := d.Clone()
	next.Tx = tx.Copy()
	next.Locks = LocksFor(tx, d.Locks)
	return next
}

// LocksFor aligns locks with the inputs of tx. Inputs appended by a purse get
// empty locks.
func LocksFor(tx *wire.MsgTx, locks []Lock) []Lock {
	res := make([]Lock, len(tx.TxIn))
	copy(res, locks)
	return res
}

// Validate checks that every input resolves to a parent output and that locks
// are aligned with inputs.
func (d *Draft) Validate() error {
	if d.Tx == nil {
		return errors.New("draft has no transaction")
	}
	if len(d.Locks) != 0 && len(d.Locks) != len(d.Tx.TxIn) {
		return errors.Errorf("draft has %d locks for %d inputs", len(d.Locks), len(d.Tx.TxIn))
	}
	for i, in := range d.Tx.TxIn {
		if _, ok := d.Parents.PrevOut(in.PreviousOutPoint); !ok {
			return errors.Errorf("input %d spends unknown output %s", i, in.PreviousOutPoint)
		}
	}
	return nil
}
