// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/jaxnet/rwallet/txutils"
)

var testNet = &chaincfg.RegressionNetParams

func spend(t *testing.T, key *txutils.KeyData, parent *wire.MsgTx, index uint32, fee int64) *wire.MsgTx {
	script, err := key.PKScript()
	require.NoError(t, err)

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: parent.TxHash(), Index: index}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(parent.TxOut[index].Value-fee, script))
	_, err = txutils.SignInput(tx, 0, parent.TxOut[index].PkScript, key.PrivateKey)
	require.NoError(t, err)
	return tx
}

func TestMockchainBroadcast(t *testing.T) {
	ctx := context.Background()
	key, err := txutils.GenerateKey(testNet)
	require.NoError(t, err)

	chain := NewMockchain(testNet)
	funding, err := chain.Fund(key.Address.EncodeAddress(), 10000, 20000)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), chain.Balance(key.Address.EncodeAddress()))

	tx := spend(t, key, funding, 0, 500)
	hash, err := chain.Broadcast(ctx, tx)
	require.NoError(t, err)
	assert.Equal(t, tx.TxHash(), *hash)

	by, ok := chain.SpentBy(wire.OutPoint{Hash: funding.TxHash()})
	assert.True(t, ok)
	assert.Equal(t, tx.TxHash(), by)

	// the same tx is accepted again without effects
	_, err = chain.Broadcast(ctx, tx)
	require.NoError(t, err)
	assert.Len(t, chain.Txs(), 2)

	fetched, err := chain.FetchTx(ctx, *hash)
	require.NoError(t, err)
	assert.Equal(t, tx.TxHash(), fetched.TxHash())

	last, ok := chain.Last()
	require.True(t, ok)
	assert.Equal(t, tx.TxHash(), last.TxHash())

	_, err = chain.FetchTx(ctx, wire.OutPoint{}.Hash)
	assert.ErrorIs(t, err, ErrTxNotFound)
}

func TestMockchainRejects(t *testing.T) {
	ctx := context.Background()
	key, err := txutils.GenerateKey(testNet)
	require.NoError(t, err)
	stranger, err := txutils.GenerateKey(testNet)
	require.NoError(t, err)

	chain := NewMockchain(testNet)
	funding, err := chain.Fund(key.Address.EncodeAddress(), 10000, 10000)
	require.NoError(t, err)

	// signed by the wrong key
	_, err = chain.Broadcast(ctx, spend(t, stranger, funding, 0, 500))
	assert.ErrorIs(t, err, ErrRejected)

	// fee below the rate
	_, err = chain.Broadcast(ctx, spend(t, key, funding, 0, 10))
	assert.ErrorIs(t, err, ErrRejected)

	// double spend
	_, err = chain.Broadcast(ctx, spend(t, key, funding, 1, 500))
	require.NoError(t, err)
	_, err = chain.Broadcast(ctx, spend(t, key, funding, 1, 600))
	assert.ErrorIs(t, err, ErrRejected)
	assert.Contains(t, err.Error(), "already spent")

	unsigned := spend(t, key, funding, 0, 500)
	unsigned.TxIn[0].SignatureScript = nil
	_, err = chain.Broadcast(ctx, unsigned)
	assert.ErrorIs(t, err, ErrRejected)

	_, err = chain.Broadcast(ctx, wire.NewMsgTx(wire.TxVersion))
	assert.ErrorIs(t, err, ErrRejected)
}

func TestNodeChain(t *testing.T) {
	key, err := txutils.GenerateKey(testNet)
	require.NoError(t, err)
	parent, err := NewMockchain(testNet).Fund(key.Address.EncodeAddress(), 1000)
	require.NoError(t, err)
	tx := spend(t, key, parent, 0, 300)

	var methods []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := struct {
			ID     interface{}   `json:"id"`
			Method string        `json:"method"`
			Params []interface{} `json:"params"`
		}{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		methods = append(methods, req.Method)

		resp := map[string]interface{}{"id": req.ID, "error": nil}
		switch req.Method {
		case "getinfo":
			resp["result"] = map[string]interface{}{"version": 240200, "protocolversion": 70016}
		case "getnetworkinfo":
			resp["result"] = map[string]interface{}{"version": 250000, "subversion": "/Satoshi:25.0.0/"}
		case "sendrawtransaction":
			resp["result"] = tx.TxHash().String()
		case "getrawtransaction":
			raw, err := txutils.EncodeTx(tx)
			require.NoError(t, err)
			resp["result"] = raw
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	node, err := NewNodeChain(NodeRPC{Host: strings.TrimPrefix(srv.URL, "http://"), DisableTLS: true})
	require.NoError(t, err)
	defer node.Shutdown()

	hash, err := node.Broadcast(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.TxHash(), *hash)

	fetched, err := node.FetchTx(context.Background(), tx.TxHash())
	require.NoError(t, err)
	assert.Equal(t, tx.TxHash(), fetched.TxHash())
	assert.Contains(t, methods, "sendrawtransaction")
	assert.Contains(t, methods, "getrawtransaction")

	_, err = NewNodeChain(NodeRPC{})
	assert.Error(t, err)
}
