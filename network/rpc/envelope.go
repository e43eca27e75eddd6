// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"net/http"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"gitlab.com/jaxnet/rwallet/txmodels"
	"gitlab.com/jaxnet/rwallet/txutils"
	"gitlab.com/jaxnet/rwallet/wallet"
)

const (
	PathAddresses = "/addresses"
	PathPay       = "/pay"
	PathSign      = "/sign"
	PathUnlock    = "/unlock"
	PathBroadcast = "/broadcast"
	PathRelease   = "/release"
	PathMetrics   = "/metrics"
)

// CodeRateLimited is answered when a client exceeds its request budget.
const CodeRateLimited wallet.ErrorCode = "rate_limited"

// TxEnvelope is the request body of pay, sign, broadcast and release. Every
// transaction travels as hex of its wire encoding.
type TxEnvelope struct {
	RawTx   string   `json:"rawtx"`
	Parents []string `json:"parents"`
	Locks   []string `json:"locks"`
}

// NewTxEnvelope encodes tx with the parents it spends and per-input locks.
func NewTxEnvelope(tx *wire.MsgTx, parents txmodels.Parents, locks []txmodels.Lock) (*TxEnvelope, error) {
	raw, err := txutils.EncodeTx(tx)
	if err != nil {
		return nil, err
	}

	env := &TxEnvelope{RawTx: raw, Parents: []string{}, Locks: []string{}}
	for _, parent := range parents.Only(tx).List() {
		rawParent, err := txutils.EncodeTx(parent)
		if err != nil {
			return nil, err
		}
		env.Parents = append(env.Parents, rawParent)
	}
	for _, lock := range locks {
		env.Locks = append(env.Locks, lock.String())
	}
	return env, nil
}

// Decode parses the envelope. Any malformed part makes the whole draft
// invalid.
func (env *TxEnvelope) Decode() (*wire.MsgTx, txmodels.Parents, []txmodels.Lock, error) {
	if env.RawTx == "" {
		return nil, nil, nil, wallet.NewError(wallet.CodeInvalidDraft, "rawtx is empty")
	}
	tx, err := txutils.DecodeTx(env.RawTx)
	if err != nil {
		return nil, nil, nil, wallet.NewError(wallet.CodeInvalidDraft, "rawtx: %v", err)
	}

	parents := txmodels.NewParents()
	for i, rawParent := range env.Parents {
		parent, err := txutils.DecodeTx(rawParent)
		if err != nil {
			return nil, nil, nil, wallet.NewError(wallet.CodeInvalidDraft, "parent %d: %v", i, err)
		}
		parents.Add(parent)
	}

	locks := make([]txmodels.Lock, 0, len(env.Locks))
	for _, lock := range env.Locks {
		locks = append(locks, txmodels.Lock(lock))
	}
	return tx, parents, locks, nil
}

// TxResponse carries the transaction produced by pay or sign.
type TxResponse struct {
	RawTx string `json:"rawtx"`
}

type BroadcastResponse struct {
	OK bool `json:"ok"`
}

type ErrorBody struct {
	Code    wallet.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error *ErrorBody `json:"error"`
}

// StatusCode maps an error code to the HTTP status of the answer.
func StatusCode(code wallet.ErrorCode) int {
	switch code {
	case wallet.CodeInvalidDraft:
		return http.StatusBadRequest
	case wallet.CodeUnauthorizedLock:
		return http.StatusForbidden
	case wallet.CodeDoubleSpendAttempt, wallet.CodeStaleParents,
		wallet.CodeAlreadyOpen, wallet.CodeNotOpen:
		return http.StatusConflict
	case wallet.CodeInsufficientFunds, wallet.CodeInvalidParents, wallet.CodeBackingDeclined:
		return http.StatusUnprocessableEntity
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case wallet.CodeTransportError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsKnownCode reports whether code belongs to the error taxonomy.
func IsKnownCode(code wallet.ErrorCode) bool {
	switch code {
	case wallet.CodeInsufficientFunds, wallet.CodeInvalidParents, wallet.CodeUnauthorizedLock,
		wallet.CodeStaleParents, wallet.CodeDoubleSpendAttempt, wallet.CodeAlreadyOpen,
		wallet.CodeNotOpen, wallet.CodeInvalidDraft, wallet.CodeBackingDeclined,
		wallet.CodeInternal, CodeRateLimited:
		return true
	}
	return false
}

var errEmptyBody = errors.New("empty request body")
