/*
 * Copyright (c) 2020 The JaxNetwork developers
 * Use of this source code is governed by an ISC
 * license that can be found in the LICENSE file.
 */

package txutils

import (
	"bytes"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"gitlab.com/jaxnet/rwallet/txmodels"
)

// SignInput performs signing of P2PKH input inIndex of msgTx with SigHashAll
// and sets its signature script. The signature commits to all inputs and
// outputs, so it must be made after the final outputs are known.
func SignInput(msgTx *wire.MsgTx, inIndex int, pkScript []byte, key *btcec.PrivateKey) ([]byte, error) {
	if inIndex < 0 || inIndex >= len(msgTx.TxIn) {
		return nil, errors.Errorf("input %d out of range", inIndex)
	}

	sig, err := txscript.SignatureScript(msgTx, inIndex, pkScript, txscript.SigHashAll, key, true)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign tx output")
	}

	msgTx.TxIn[inIndex].SignatureScript = sig
	return sig, nil
}

// VerifyInput runs the script engine for a single input.
func VerifyInput(msgTx *wire.MsgTx, inIndex int, prevOut *wire.TxOut, fetcher txscript.PrevOutputFetcher) error {
	if fetcher == nil {
		fetcher = txscript.NewCannedPrevOutputFetcher(prevOut.PkScript, prevOut.Value)
	}

	hashCache := txscript.NewTxSigHashes(msgTx, fetcher)
	vm, err := txscript.NewEngine(prevOut.PkScript, msgTx, inIndex,
		txscript.StandardVerifyFlags, nil, hashCache, prevOut.Value, fetcher)
	if err != nil {
		return errors.Wrapf(err, "unable to create script engine for input %d", inIndex)
	}
	if err = vm.Execute(); err != nil {
		return errors.Wrapf(err, "input %d is not authorized", inIndex)
	}
	return nil
}

// VerifyTx checks every input of msgTx against the outputs it spends.
func VerifyTx(msgTx *wire.MsgTx, parents txmodels.Parents) error {
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(msgTx.TxIn))
	for i, in := range msgTx.TxIn {
		prev, ok := parents.PrevOut(in.PreviousOutPoint)
		if !ok {
			return errors.Errorf("input %d spends unknown output %s", i, in.PreviousOutPoint)
		}
		prevOuts[in.PreviousOutPoint] = prev
	}

	fetcher := txscript.NewMultiPrevOutFetcher(prevOuts)
	for i, in := range msgTx.TxIn {
		if err := VerifyInput(msgTx, i, prevOuts[in.PreviousOutPoint], fetcher); err != nil {
			return err
		}
	}
	return nil
}

// Unsigned returns indexes of inputs without a signature script.
func Unsigned(msgTx *wire.MsgTx) []int {
	var res []int
	for i, in := range msgTx.TxIn {
		if len(in.SignatureScript) == 0 {
			res = append(res, i)
		}
	}
	return res
}

// EncodeTx serializes without witness data. A draft may have no inputs yet,
// which the witness encoding can't round-trip.
func EncodeTx(msgTx *wire.MsgTx) (string, error) {
	buf := bytes.NewBuffer(make([]byte, 0, msgTx.SerializeSizeStripped()))
	if err := msgTx.SerializeNoWitness(buf); err != nil {
		return "", errors.Wrap(err, "unable to serialize tx")
	}
	return hex.EncodeToString(buf.Bytes()), nil
}

func DecodeTx(rawTx string) (*wire.MsgTx, error) {
	raw, err := hex.DecodeString(rawTx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode tx hex")
	}

	msgTx := &wire.MsgTx{}
	if err = msgTx.DeserializeNoWitness(bytes.NewReader(raw)); err != nil {
		return nil, errors.Wrap(err, "unable to deserialize tx")
	}
	return msgTx, nil
}
