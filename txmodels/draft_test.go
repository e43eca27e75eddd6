// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txmodels

import (
	"testing"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockScript(t *testing.T) {
	addr := testAddress(t)
	lock := Lock(addr.EncodeAddress())

	script, err := lock.Script(testNet)
	require.NoError(t, err)
	assert.Equal(t, lock, LockFromScript(script, testNet))

	assert.True(t, LockFromScript([]byte{0x6a, 0x01, 0x00}, testNet).IsEmpty())

	_, err = Lock("not-an-address").Script(testNet)
	assert.Error(t, err)
}

func TestDraftValidate(t *testing.T) {
	addr := testAddress(t)
	parent := fundingTx(t, addr, 546, 600)
	script, err := Lock(addr.EncodeAddress()).Script(testNet)
	require.NoError(t, err)

	draft := NewDraft()
	draft.AddInput(wire.OutPoint{Hash: parent.TxHash(), Index: 1}, Lock(addr.EncodeAddress()), parent)
	idx := draft.AddOutput(546, script)
	assert.Equal(t, uint32(0), idx)
	require.NoError(t, draft.Validate())

	prev, ok := draft.Parents.PrevOut(draft.Tx.TxIn[0].PreviousOutPoint)
	require.True(t, ok)
	assert.Equal(t, int64(600), prev.Value)

	_, ok = draft.Parents.PrevOut(wire.OutPoint{Hash: parent.TxHash(), Index: 2})
	assert.False(t, ok)

	broken := NewDraft()
	broken.AddInput(wire.OutPoint{Hash: parent.TxHash(), Index: 5}, Lock(addr.EncodeAddress()), parent)
	assert.Error(t, broken.Validate())

	misaligned := NewDraft()
	misaligned.AddInput(wire.OutPoint{Hash: parent.TxHash(), Index: 1}, Lock(addr.EncodeAddress()), parent)
	misaligned.Locks = append(misaligned.Locks, "")
	assert.Error(t, misaligned.Validate())

	assert.Error(t, (&Draft{}).Validate())
}

func TestParents(t *testing.T) {
	addr := testAddress(t)
	a := fundingTx(t, addr, 1000)
	b := fundingTx(t, addr, 2000, 3000)
	parents := NewParents(a, b, nil)
	assert.Len(t, parents, 2)

	list := parents.List()
	require.Len(t, list, 2)
	again := NewParents(b, a).List()
	assert.Equal(t, list[0].TxHash(), again[0].TxHash())

	spender := wire.NewMsgTx(wire.TxVersion)
	spender.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: b.TxHash()}, nil, nil))
	only := parents.Only(spender)
	assert.Len(t, only, 1)
	_, ok := only[b.TxHash()]
	assert.True(t, ok)
}

func TestDraftVersions(t *testing.T) {
	addr := testAddress(t)
	parent := fundingTx(t, addr, 546)
	lock := Lock(addr.EncodeAddress())

	draft := NewDraft()
	draft.AddInput(wire.OutPoint{Hash: parent.TxHash()}, lock, parent)

	clone := draft.Clone()
	clone.Tx.TxIn[0].PreviousOutPoint.Index = 5
	clone.Locks[0] = ""
	require.NoError(t, draft.Validate(), "the original is intact")
	assert.Equal(t, lock, draft.Locks[0])

	funded := draft.Tx.Copy()
	funded.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 1}, nil, nil))
	next := draft.Next(funded)
	assert.Equal(t, []Lock{lock, ""}, next.Locks)
	assert.Equal(t, funded.TxHash(), next.Tx.TxHash())
	assert.Len(t, draft.Tx.TxIn, 1)
	assert.Len(t, next.Parents, 1)
}

func TestLocksFor(t *testing.T) {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, nil, nil))
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 1}, nil, nil))

	locks := LocksFor(tx, []Lock{"owner"})
	assert.Equal(t, []Lock{"owner", ""}, locks)
}
