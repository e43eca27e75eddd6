/*
 * Copyright (c) 2020 The JaxNetwork developers
 * Use of this source code is governed by an ISC
 * license that can be found in the LICENSE file.
 */

package txutils

import (
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"gitlab.com/jaxnet/rwallet/txmodels"
)

const (
	// MinFeeRate is the relay floor in satoshi per byte.
	MinFeeRate int64 = 1
	// DustAmount is the smallest value of an object output.
	DustAmount int64 = 546
)

var (
	SigScriptEstWeight = 108 // push(sig 72 + hashType) + push(compressed pubkey)
	TxOutEstWeight     = 34  // simple output
)

// EstimateSignedSize returns an upper bound of the serialized size of tx once
// every input without a signature script is signed.
func EstimateSignedSize(tx *wire.MsgTx) int {
	size := tx.SerializeSizeStripped()
	for _, in := range tx.TxIn {
		if len(in.SignatureScript) == 0 {
			size += SigScriptEstWeight
		}
	}
	return size
}

// EstimateFeeForTx is EstimateSignedSize priced at feeRate. When addChange is
// set, one more output is accounted.
func EstimateFeeForTx(tx *wire.MsgTx, feeRate int64, addChange bool) int64 {
	if feeRate < MinFeeRate {
		feeRate = MinFeeRate
	}

	size := EstimateSignedSize(tx)
	if addChange {
		size += TxOutEstWeight
	}
	return feeRate * int64(size)
}

// TxFee computes inputs minus outputs. Every input must resolve in parents.
func TxFee(tx *wire.MsgTx, parents txmodels.Parents) (int64, error) {
	var in, out int64
	for i, txIn := range tx.TxIn {
		prev, ok := parents.PrevOut(txIn.PreviousOutPoint)
		if !ok {
			return 0, errors.Errorf("input %d spends unknown output %s", i, txIn.PreviousOutPoint)
		}
		in += prev.Value
	}
	for _, txOut := range tx.TxOut {
		out += txOut.Value
	}
	return in - out, nil
}
