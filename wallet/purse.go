// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gitlab.com/jaxnet/rwallet/txmodels"
	"gitlab.com/jaxnet/rwallet/txutils"
)

// BackingPolicy decides whether the purse funds outputs above dust.
type BackingPolicy string

const (
	BackingSupported BackingPolicy = "back"
	BackingDeclined  BackingPolicy = "dust-only"
)

func (p BackingPolicy) Valid() bool {
	return p == BackingSupported || p == BackingDeclined
}

type PurseConfig struct {
	FeeRate        int64
	DustAmount     int64
	Backing        BackingPolicy
	ReservationTTL time.Duration
}

func DefaultPurseConfig() PurseConfig {
	return PurseConfig{
		FeeRate:        txutils.MinFeeRate,
		DustAmount:     txutils.DustAmount,
		Backing:        BackingSupported,
		ReservationTTL: 10 * time.Minute,
	}
}

// UTXOStore persists the purse UTXO set.
type UTXOStore interface {
	Save(utxo txmodels.UTXO) error
	Remove(op wire.OutPoint) error
}

type payment struct {
	id      string
	tx      *wire.MsgTx
	ops     []wire.OutPoint
	expires time.Time
}

// LocalPurse funds drafts from its own UTXO index.
type LocalPurse struct {
	key   *txutils.KeyData
	cfg   PurseConfig
	utxo  *txmodels.UTXOIndex
	store UTXOStore

	// mu serializes payments, utxo guards reservations against
	// anything else touching the index.
	mu       sync.Mutex
	payments map[chainhash.Hash]*payment
}

func NewLocalPurse(key *txutils.KeyData, index *txmodels.UTXOIndex, cfg PurseConfig) *LocalPurse {
	if index == nil {
		index = txmodels.NewUTXOIndex()
	}
	if cfg.FeeRate < txutils.MinFeeRate {
		cfg.FeeRate = txutils.MinFeeRate
	}
	if cfg.DustAmount <= 0 {
		cfg.DustAmount = txutils.DustAmount
	}
	if cfg.Backing == "" {
		cfg.Backing = BackingSupported
	}
	if cfg.ReservationTTL <= 0 {
		cfg.ReservationTTL = DefaultPurseConfig().ReservationTTL
	}

	return &LocalPurse{
		key:      key,
		cfg:      cfg,
		utxo:     index,
		payments: map[chainhash.Hash]*payment{},
	}
}

func (p *LocalPurse) WithStore(store UTXOStore) *LocalPurse {
	p.store = store
	return p
}

func (p *LocalPurse) Address() string { return p.key.Address.EncodeAddress() }

func (p *LocalPurse) Index() *txmodels.UTXOIndex { return p.utxo }

func (p *LocalPurse) Config() PurseConfig { return p.cfg }

// Pay adds purse inputs and, when the surplus is worth it, a change output.
// Re-submitting the same draft while its reservation is alive returns the
// same funded transaction.
func (p *LocalPurse) Pay(ctx context.Context, tx *wire.MsgTx, parents txmodels.Parents) (*wire.MsgTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tx == nil || len(tx.TxOut) == 0 {
		return nil, NewError(CodeInvalidDraft, "draft has no outputs")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	draftHash := tx.TxHash()
	if funded, ok := p.cached(draftHash); ok {
		log.Debug().Str("draft", draftHash.String()).Msg("draft already funded")
		return funded, nil
	}

	if err := p.checkBacking(tx); err != nil {
		return nil, err
	}

	var (
		inSum  int64
		outSum int64
		own    = map[wire.OutPoint]struct{}{}
		ops    []wire.OutPoint
	)
	for i, in := range tx.TxIn {
		op := in.PreviousOutPoint
		if utxo, ok := p.utxo.Get(op); ok {
			inSum += utxo.Value
			own[op] = struct{}{}
			ops = append(ops, op)
			continue
		}

		prev, ok := parents.PrevOut(op)
		if !ok {
			return nil, NewError(CodeInvalidParents, "input %d spends unknown output %s", i, op)
		}
		inSum += prev.Value
	}
	for _, out := range tx.TxOut {
		outSum += out.Value
	}

	id := uuid.NewString()
	if err := p.utxo.Reserve(id, p.cfg.ReservationTTL, ops...); err != nil {
		for _, op := range ops {
			if _, held := p.utxo.ReservedBy(op); held {
				return nil, NewError(CodeDoubleSpendAttempt, "purse output %s is reserved by another payment", op)
			}
		}
		return nil, NewError(CodeDoubleSpendAttempt, "draft spends purse outputs reserved by another payment")
	}

	funded, selected, err := p.fund(tx, id, own, inSum, outSum)
	if err != nil {
		p.utxo.Release(id)
		return nil, err
	}

	for _, utxo := range selected {
		op, _ := utxo.OutPoint()
		ops = append(ops, op)
	}
	p.payments[draftHash] = &payment{
		id:      id,
		tx:      funded,
		ops:     ops,
		expires: p.utxo.Clock().Add(p.cfg.ReservationTTL),
	}

	log.Debug().Str("draft", draftHash.String()).
		Str("tx", funded.TxHash().String()).
		Int("inputs", len(selected)).
		Msg("draft funded")
	return funded.Copy(), nil
}

// fund runs "estimate fee, select, re-estimate" until the selection covers
// outputs and the fee of the signed transaction.
func (p *LocalPurse) fund(tx *wire.MsgTx, id string, own map[wire.OutPoint]struct{},
	inSum, outSum int64) (*wire.MsgTx, txmodels.UTXORows, error) {
	var (
		msgTx    *wire.MsgTx
		selected txmodels.UTXORows
		fee      int64
	)

prepareUTXO:
	msgTx = tx.Copy()
	for _, utxo := range selected {
		op, err := utxo.OutPoint()
		if err != nil {
			return nil, nil, err
		}
		msgTx.AddTxIn(wire.NewTxIn(&op, nil, nil))
	}

	fee = txutils.EstimateFeeForTx(msgTx, p.cfg.FeeRate, true)
	needed := outSum + fee - inSum
	if selected.GetSum() < needed {
		rows, err := p.utxo.CollectForAmountFiltered(id, needed, p.cfg.ReservationTTL, own)
		switch {
		case errors.Is(err, txmodels.ErrReserved):
			return nil, nil, NewError(CodeDoubleSpendAttempt,
				"%d satoshis are available only from outputs reserved by another payment", needed)
		case err != nil:
			_, available := p.utxo.Balance()
			return nil, nil, NewError(CodeInsufficientFunds,
				"need %d satoshis, %d available", needed, available)
		}

		selected = rows
		goto prepareUTXO
	}

	change := inSum + selected.GetSum() - outSum - fee
	if change >= p.cfg.DustAmount {
		script, err := p.key.PKScript()
		if err != nil {
			return nil, nil, err
		}
		msgTx.AddTxOut(wire.NewTxOut(change, script))
	}

	for i, in := range msgTx.TxIn {
		utxo, ok := p.utxo.Get(in.PreviousOutPoint)
		if !ok {
			continue
		}
		script, err := utxo.Script()
		if err != nil {
			return nil, nil, err
		}
		if _, err = txutils.SignInput(msgTx, i, script, p.key.PrivateKey); err != nil {
			return nil, nil, errors.Wrapf(err, "unable to sign purse input %d", i)
		}
	}

	return msgTx, selected, nil
}

func (p *LocalPurse) checkBacking(tx *wire.MsgTx) error {
	if p.cfg.Backing != BackingDeclined {
		return nil
	}
	for i, out := range tx.TxOut {
		if out.Value > p.cfg.DustAmount {
			return NewError(CodeBackingDeclined,
				"output %d carries %d satoshis, dust is %d", i, out.Value, p.cfg.DustAmount)
		}
	}
	return nil
}

// cached must be called with p.mu held.
func (p *LocalPurse) cached(draftHash chainhash.Hash) (*wire.MsgTx, bool) {
	now := p.utxo.Clock()
	for h, pm := range p.payments {
		if now.After(pm.expires) {
			p.utxo.Release(pm.id)
			delete(p.payments, h)
		}
	}

	pm, ok := p.payments[draftHash]
	if !ok {
		return nil, false
	}
	if !p.utxo.Holds(pm.id, pm.ops...) {
		p.utxo.Release(pm.id)
		delete(p.payments, draftHash)
		return nil, false
	}
	return pm.tx.Copy(), true
}

// Track indexes outputs of tx which pay the purse.
func (p *LocalPurse) Track(tx *wire.MsgTx) (int, error) {
	lock := p.key.Lock()
	params := p.key.Net()

	var n int
	for i, out := range tx.TxOut {
		if txmodels.LockFromScript(out.PkScript, params) != lock {
			continue
		}

		utxo, err := txmodels.NewUTXO(tx, uint32(i), params)
		if err != nil {
			return n, err
		}
		if err = p.utxo.AddUTXO(utxo); err != nil {
			return n, err
		}
		if p.store != nil {
			if err = p.store.Save(utxo); err != nil {
				log.Warn().Err(err).Str("utxo", utxo.Key()).Msg("unable to persist utxo")
			}
		}
		n++
	}
	return n, nil
}

// Spent drops purse outputs spent by tx, forgets payments that used them
// and tracks the change of tx.
func (p *LocalPurse) Spent(tx *wire.MsgTx) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	spent := map[wire.OutPoint]struct{}{}
	for _, in := range tx.TxIn {
		op := in.PreviousOutPoint
		spent[op] = struct{}{}
		if !p.utxo.RmUTXO(op) || p.store == nil {
			continue
		}
		if err := p.store.Remove(op); err != nil {
			log.Warn().Err(err).Str("outpoint", op.String()).Msg("unable to remove utxo")
		}
	}

	p.forget(spent)

	_, err := p.Track(tx)
	return err
}

// Release drops the payments whose purse inputs tx spends and frees their
// reservations. It returns the number of dropped payments.
func (p *LocalPurse) Release(tx *wire.MsgTx) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	inputs := make(map[wire.OutPoint]struct{}, len(tx.TxIn))
	for _, in := range tx.TxIn {
		inputs[in.PreviousOutPoint] = struct{}{}
	}
	return p.forget(inputs)
}

// forget must be called with p.mu held.
func (p *LocalPurse) forget(ops map[wire.OutPoint]struct{}) int {
	var n int
	for h, pm := range p.payments {
		for _, op := range pm.ops {
			if _, ok := ops[op]; ok {
				p.utxo.Release(pm.id)
				delete(p.payments, h)
				n++
				break
			}
		}
	}
	return n
}
