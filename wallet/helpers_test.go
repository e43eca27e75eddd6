// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"sync/atomic"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
	"gitlab.com/jaxnet/rwallet/txmodels"
	"gitlab.com/jaxnet/rwallet/txutils"
)

var (
	testNet  = &chaincfg.RegressionNetParams
	faucetID uint32
)

func newKey(t *testing.T) *txutils.KeyData {
	key, err := txutils.GenerateKey(testNet)
	require.NoError(t, err)
	return key
}

// faucetTx pays values to lock from a fake coinbase-like input.
func faucetTx(t *testing.T, lock txmodels.Lock, values ...int64) *wire.MsgTx {
	script, err := lock.Script(testNet)
	require.NoError(t, err)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: atomic.AddUint32(&faucetID, 1)}, []byte{0x51}, nil))
	for _, v := range values {
		tx.AddTxOut(wire.NewTxOut(v, script))
	}
	return tx
}

func newPurse(t *testing.T, cfg PurseConfig, values ...int64) (*LocalPurse, *wire.MsgTx) {
	purse := NewLocalPurse(newKey(t), nil, cfg)
	funding := faucetTx(t, purse.key.Lock(), values...)
	n, err := purse.Track(funding)
	require.NoError(t, err)
	require.Equal(t, len(values), n)
	return purse, funding
}

func dustDraft(t *testing.T, lock txmodels.Lock, values ...int64) *wire.MsgTx {
	script, err := lock.Script(testNet)
	require.NoError(t, err)

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, v := range values {
		tx.AddTxOut(wire.NewTxOut(v, script))
	}
	return tx
}

func requireFee(t *testing.T, tx *wire.MsgTx, parents txmodels.Parents, feeRate int64) int64 {
	fee, err := txutils.TxFee(tx, parents)
	require.NoError(t, err)
	require.GreaterOrEqual(t, fee, feeRate*int64(tx.SerializeSize()))
	return fee
}
