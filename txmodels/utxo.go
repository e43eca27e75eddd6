// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txmodels

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// UTXO is a purse funding output. The csv layout is used by import/export.
type UTXO struct {
	Address    string `json:"address" csv:"address"`
	Height     int64  `json:"height" csv:"height"`
	TxHash     string `json:"tx_hash" csv:"tx_hash"`
	OutIndex   uint32 `json:"out_index" csv:"out_index"`
	Value      int64  `json:"value" csv:"value"`
	PKScript   string `json:"pk_script" csv:"pk_script"`
	ScriptType string `json:"script_type" csv:"script_type"`
}

// NewUTXO describes output outIndex of tx.
func NewUTXO(tx *wire.MsgTx, outIndex uint32, params *chaincfg.Params) (UTXO, error) {
	if int(outIndex) >= len(tx.TxOut) {
		return UTXO{}, errors.Errorf("tx %s has no output %d", tx.TxHash(), outIndex)
	}

	out := tx.TxOut[outIndex]
	class, _, _, _ := txscript.ExtractPkScriptAddrs(out.PkScript, params)
	return UTXO{
		Address:    LockFromScript(out.PkScript, params).String(),
		TxHash:     tx.TxHash().String(),
		OutIndex:   outIndex,
		Value:      out.Value,
		PKScript:   hex.EncodeToString(out.PkScript),
		ScriptType: class.String(),
	}, nil
}

func (utxo *UTXO) OutPoint() (wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(utxo.TxHash)
	if err != nil {
		return wire.OutPoint{}, errors.Wrap(err, "can not decode TxHash")
	}
	return wire.OutPoint{Hash: *hash, Index: utxo.OutIndex}, nil
}

func (utxo *UTXO) Script() ([]byte, error) {
	script, err := hex.DecodeString(utxo.PKScript)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode PK script")
	}
	return script, nil
}

// CanBeSpend reports whether the purse can sign for this output.
func (utxo *UTXO) CanBeSpend() bool {
	return utxo.Value > 0 && utxo.ScriptType == txscript.PubKeyHashTy.String()
}

func (utxo *UTXO) Key() string {
	return fmt.Sprintf("%s:%d", utxo.TxHash, utxo.OutIndex)
}

type gobUTXO UTXO

func (utxo UTXO) MarshalBinary() ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	err := gob.NewEncoder(buf).Encode(gobUTXO(utxo))
	return buf.Bytes(), err
}

func (utxo *UTXO) UnmarshalBinary(data []byte) error {
	val := gobUTXO{}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&val); err != nil {
		return err
	}
	*utxo = UTXO(val)
	return nil
}

type UTXORows []UTXO

func (rows UTXORows) Len() int           { return len(rows) }
func (rows UTXORows) Less(i, j int) bool { return rows[i].Value < rows[j].Value }
func (rows UTXORows) Swap(i, j int)      { rows[i], rows[j] = rows[j], rows[i] }
func (rows UTXORows) List() []UTXO       { return rows }

func (rows UTXORows) GetSum() int64 {
	var sum int64
	for _, r := range rows {
		sum += r.Value
	}
	return sum
}
