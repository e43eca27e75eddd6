// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txutils

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/jaxnet/rwallet/txmodels"
)

var testNet = &chaincfg.RegressionNetParams

func TestNewKeyData(t *testing.T) {
	key, err := GenerateKey(testNet)
	require.NoError(t, err)

	simNetAddress, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(key.PrivateKey.PubKey().SerializeCompressed()), testNet)
	require.NoError(t, err)
	assert.Equal(t, simNetAddress.EncodeAddress(), key.Address.EncodeAddress())

	fromHex, err := NewKeyData(key.Secret(), testNet)
	require.NoError(t, err)
	assert.Equal(t, key.Address.EncodeAddress(), fromHex.Address.EncodeAddress())

	wif, err := key.WIF()
	require.NoError(t, err)
	fromWIF, err := NewKeyData(wif, testNet)
	require.NoError(t, err)
	assert.Equal(t, key.Lock(), fromWIF.Lock())

	_, err = NewKeyData(wif, &chaincfg.MainNetParams)
	assert.Error(t, err)
	_, err = NewKeyData("", testNet)
	assert.Error(t, err)
	_, err = NewKeyData("abcd", testNet)
	assert.Error(t, err)

	priv, ok, err := key.GetKey(key.Address)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, key.PrivateKey, priv)

	other, err := GenerateKey(testNet)
	require.NoError(t, err)
	_, _, err = key.GetKey(other.Address)
	assert.Error(t, err)
}

func signedSpend(t *testing.T, key *KeyData, value int64) (*wire.MsgTx, *wire.MsgTx) {
	script, err := key.PKScript()
	require.NoError(t, err)

	parent := wire.NewMsgTx(wire.TxVersion)
	parent.AddTxIn(wire.NewTxIn(&wire.OutPoint{}, []byte{0x51}, nil))
	parent.AddTxOut(wire.NewTxOut(value, script))

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: parent.TxHash()}, nil, nil))
	tx.AddTxOut(wire.NewTxOut(value-500, script))
	return parent, tx
}

func TestSignAndVerify(t *testing.T) {
	key, err := GenerateKey(testNet)
	require.NoError(t, err)
	parent, tx := signedSpend(t, key, 10000)
	parents := txmodels.NewParents(parent)

	assert.Error(t, VerifyTx(tx, parents), "unsigned input must not verify")
	assert.Equal(t, []int{0}, Unsigned(tx))

	estimated := EstimateSignedSize(tx)
	_, err = SignInput(tx, 0, parent.TxOut[0].PkScript, key.PrivateKey)
	require.NoError(t, err)
	require.NoError(t, VerifyTx(tx, parents))
	assert.Empty(t, Unsigned(tx))
	assert.GreaterOrEqual(t, estimated, tx.SerializeSize())

	// deterministic signatures
	again := tx.Copy()
	_, err = SignInput(again, 0, parent.TxOut[0].PkScript, key.PrivateKey)
	require.NoError(t, err)
	assert.Equal(t, tx.TxHash(), again.TxHash())

	// changing an output invalidates the signature
	tx.TxOut[0].Value--
	assert.Error(t, VerifyTx(tx, parents))

	_, err = SignInput(tx, 3, parent.TxOut[0].PkScript, key.PrivateKey)
	assert.Error(t, err)
}

func TestWrongKey(t *testing.T) {
	key, err := GenerateKey(testNet)
	require.NoError(t, err)
	other, err := GenerateKey(testNet)
	require.NoError(t, err)

	parent, tx := signedSpend(t, key, 10000)
	_, err = SignInput(tx, 0, parent.TxOut[0].PkScript, other.PrivateKey)
	require.NoError(t, err)
	assert.Error(t, VerifyTx(tx, txmodels.NewParents(parent)))
}

func TestFee(t *testing.T) {
	key, err := GenerateKey(testNet)
	require.NoError(t, err)
	parent, tx := signedSpend(t, key, 10000)

	fee, err := TxFee(tx, txmodels.NewParents(parent))
	require.NoError(t, err)
	assert.Equal(t, int64(500), fee)

	_, err = TxFee(tx, txmodels.Parents{})
	assert.Error(t, err)

	withChange := EstimateFeeForTx(tx, 0, true)
	assert.Equal(t, int64(EstimateSignedSize(tx)+TxOutEstWeight), withChange)
	assert.Equal(t, 3*withChange, EstimateFeeForTx(tx, 3, true))

	unsigned := tx.Copy()
	unsigned.TxIn[0].SignatureScript = nil
	assert.GreaterOrEqual(t, EstimateSignedSize(unsigned), tx.SerializeSize())
}

func TestCodec(t *testing.T) {
	key, err := GenerateKey(testNet)
	require.NoError(t, err)
	script, err := key.PKScript()
	require.NoError(t, err)

	// drafts without inputs must survive the round trip
	draft := wire.NewMsgTx(wire.TxVersion)
	draft.AddTxOut(wire.NewTxOut(DustAmount, script))

	raw, err := EncodeTx(draft)
	require.NoError(t, err)
	decoded, err := DecodeTx(raw)
	require.NoError(t, err)
	assert.Equal(t, draft.TxHash(), decoded.TxHash())
	assert.Empty(t, decoded.TxIn)

	_, err = DecodeTx("zz")
	assert.Error(t, err)
	_, err = DecodeTx("0100")
	assert.Error(t, err)
}
