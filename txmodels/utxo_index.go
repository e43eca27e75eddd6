// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txmodels

import (
	"sync"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

var (
	// ErrNotEnoughCoins means that the index doesn't hold enough value at all.
	ErrNotEnoughCoins = errors.New("not enough coins")
	// ErrReserved means that the value exists but is held by other reservations.
	ErrReserved = errors.New("outputs are reserved by another payment")
)

type reservation struct {
	id      string
	expires time.Time
}

type indexEntry struct {
	utxo UTXO
	op   wire.OutPoint
	res  *reservation
}

// UTXOIndex is a storage for purse UTXO data. Selection reserves outputs for
// a payment id; a reservation lives until it is released, the output is
// spent or its ttl passes.
type UTXOIndex struct {
	sync.RWMutex

	entries map[wire.OutPoint]*indexEntry
	// insertion order, selection walks it from the head
	order []wire.OutPoint

	// Clock is used to check reservation expiry.
	Clock func() time.Time
}

func NewUTXOIndex() *UTXOIndex {
	return &UTXOIndex{
		entries: map[wire.OutPoint]*indexEntry{},
		Clock:   time.Now,
	}
}

func (index *UTXOIndex) AddUTXO(utxo UTXO) error {
	op, err := utxo.OutPoint()
	if err != nil {
		return err
	}

	index.Lock()
	defer index.Unlock()

	if _, ok := index.entries[op]; ok {
		return nil
	}
	index.entries[op] = &indexEntry{utxo: utxo, op: op}
	index.order = append(index.order, op)
	return nil
}

// RmUTXO drops the output together with its reservation.
func (index *UTXOIndex) RmUTXO(op wire.OutPoint) bool {
	index.Lock()
	defer index.Unlock()

	if _, ok := index.entries[op]; !ok {
		return false
	}
	delete(index.entries, op)
	for i := range index.order {
		if index.order[i] == op {
			index.order = append(index.order[:i], index.order[i+1:]...)
			break
		}
	}
	return true
}

func (index *UTXOIndex) Get(op wire.OutPoint) (UTXO, bool) {
	index.RLock()
	defer index.RUnlock()

	e, ok := index.entries[op]
	if !ok {
		return UTXO{}, false
	}
	return e.utxo, true
}

// ReservedBy returns the id of the live reservation holding op.
func (index *UTXOIndex) ReservedBy(op wire.OutPoint) (string, bool) {
	index.RLock()
	defer index.RUnlock()

	e, ok := index.entries[op]
	if !ok || !index.reserved(e) {
		return "", false
	}
	return e.res.id, true
}

func (index *UTXOIndex) RowsCopy() UTXORows {
	index.RLock()
	defer index.RUnlock()

	rows := make(UTXORows, 0, len(index.order))
	for _, op := range index.order {
		rows = append(rows, index.entries[op].utxo)
	}
	return rows
}

// Balance returns the total value and the value free of live reservations.
func (index *UTXOIndex) Balance() (total, available int64) {
	index.RLock()
	defer index.RUnlock()

	for _, op := range index.order {
		e := index.entries[op]
		if !e.utxo.CanBeSpend() {
			continue
		}
		total += e.utxo.Value
		if !index.reserved(e) {
			available += e.utxo.Value
		}
	}
	return total, available
}

// CollectForAmount aggregates UTXOs to meet the requested amount and reserves
// them for id. Outputs are taken in the order they were added, skipping those
// held by other ids. Nothing is reserved when the amount can't be met.
func (index *UTXOIndex) CollectForAmount(id string, amount int64, ttl time.Duration) (UTXORows, error) {
	return index.CollectForAmountFiltered(id, amount, ttl, nil)
}

// CollectForAmountFiltered is CollectForAmount that never picks outpoints from skip.
func (index *UTXOIndex) CollectForAmountFiltered(id string, amount int64, ttl time.Duration,
	skip map[wire.OutPoint]struct{}) (UTXORows, error) {
	index.Lock()
	defer index.Unlock()

	var (
		res       UTXORows
		picked    []*indexEntry
		collected int64
		locked    int64
	)

	for _, op := range index.order {
		if collected >= amount {
			break
		}

		if _, ok := skip[op]; ok {
			continue
		}

		e := index.entries[op]
		if !e.utxo.CanBeSpend() {
			continue
		}
		if index.reserved(e) && e.res.id != id {
			locked += e.utxo.Value
			continue
		}

		picked = append(picked, e)
		res = append(res, e.utxo)
		collected += e.utxo.Value
	}

	if collected < amount {
		if collected+locked >= amount {
			return nil, ErrReserved
		}
		return nil, ErrNotEnoughCoins
	}

	expires := index.Clock().Add(ttl)
	for _, e := range picked {
		e.res = &reservation{id: id, expires: expires}
	}
	return res, nil
}

// Reserve holds the given outpoints for id. Outpoints unknown to the index are
// ignored. It fails without reserving anything if one of them is held by
// another id.
func (index *UTXOIndex) Reserve(id string, ttl time.Duration, ops ...wire.OutPoint) error {
	index.Lock()
	defer index.Unlock()

	var picked []*indexEntry
	for _, op := range ops {
		e, ok := index.entries[op]
		if !ok {
			continue
		}
		if index.reserved(e) && e.res.id != id {
			return ErrReserved
		}
		picked = append(picked, e)
	}

	expires := index.Clock().Add(ttl)
	for _, e := range picked {
		e.res = &reservation{id: id, expires: expires}
	}
	return nil
}

// Release frees every output reserved for id.
func (index *UTXOIndex) Release(id string) int {
	index.Lock()
	defer index.Unlock()

	var n int
	for _, e := range index.entries {
		if e.res != nil && e.res.id == id {
			e.res = nil
			n++
		}
	}
	return n
}

// Holds reports whether all ops are still reserved for id.
func (index *UTXOIndex) Holds(id string, ops ...wire.OutPoint) bool {
	index.RLock()
	defer index.RUnlock()

	for _, op := range ops {
		e, ok := index.entries[op]
		if !ok || !index.reserved(e) || e.res.id != id {
			return false
		}
	}
	return true
}

func (index *UTXOIndex) reserved(e *indexEntry) bool {
	return e.res != nil && index.Clock().Before(e.res.expires)
}
