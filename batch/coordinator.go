// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package batch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gitlab.com/jaxnet/rwallet/chain"
	"gitlab.com/jaxnet/rwallet/txmodels"
	"gitlab.com/jaxnet/rwallet/txutils"
	"gitlab.com/jaxnet/rwallet/wallet"
)

// ManifestTag prefixes the OP_RETURN payload of every batch transaction.
var ManifestTag = []byte("rwl")

type Config struct {
	DustAmount int64
	// BackingThreshold is the smallest declared value that is carried by the
	// object output as is. Smaller values are rounded up to dust.
	BackingThreshold int64
}

func DefaultConfig() Config {
	return Config{
		DustAmount:       txutils.DustAmount,
		BackingThreshold: txutils.DustAmount,
	}
}

// Receipt describes a broadcast batch.
type Receipt struct {
	BatchID string
	TxHash  chainhash.Hash
	Tx      *wire.MsgTx
	Fee     int64
	Objects []Object
}

// Empty is true for a batch closed without mutations.
func (r *Receipt) Empty() bool { return r.Tx == nil }

// Coordinator folds object mutations into transactions and drives them
// through the wallet and the chain. A caller has at most one open batch;
// nothing is broadcast for a caller while it's open.
type Coordinator struct {
	wallet wallet.Wallet
	chain  chain.Blockchain
	params *chaincfg.Params
	cfg    Config
	addrs  wallet.Addresses

	// runMu makes the pay-sign-broadcast pipeline exclusive, so staged
	// objects never spend outdated locations.
	runMu sync.Mutex

	mu      sync.Mutex
	open    map[string]*Context
	objects map[string]Object
	txs     txmodels.Parents
}

// NewCoordinator performs the address query of w up front.
func NewCoordinator(ctx context.Context, w wallet.Wallet, bc chain.Blockchain,
	params *chaincfg.Params, cfg Config) (*Coordinator, error) {
	addrs, err := w.Addresses(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "unable to query wallet addresses")
	}
	if _, err = txmodels.Lock(addrs.Owner).Script(params); err != nil {
		return nil, errors.Wrap(err, "wallet owner address is invalid")
	}

	if cfg.DustAmount <= 0 {
		cfg.DustAmount = txutils.DustAmount
	}
	if cfg.BackingThreshold < cfg.DustAmount {
		cfg.BackingThreshold = cfg.DustAmount
	}

	return &Coordinator{
		wallet:  w,
		chain:   bc,
		params:  params,
		cfg:     cfg,
		addrs:   addrs,
		open:    map[string]*Context{},
		objects: map[string]Object{},
		txs:     txmodels.Parents{},
	}, nil
}

func (c *Coordinator) Addresses() wallet.Addresses { return c.addrs }

// Object returns the last broadcast version of an object.
func (c *Coordinator) Object(id string) (Object, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	obj, ok := c.objects[id]
	if !ok {
		return Object{}, false
	}
	return obj.clone(), true
}

// Begin opens a batch for caller.
func (c *Coordinator) Begin(caller string) (*Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.open[caller]; ok {
		return nil, wallet.NewError(wallet.CodeAlreadyOpen, "caller %q has an open batch", caller)
	}

	bc := &Context{id: uuid.NewString(), caller: caller, open: true}
	c.open[caller] = bc
	log.Debug().Str("batch", bc.id).Str("caller", caller).Msg("batch opened")
	return bc, nil
}

// End closes bc and turns its mutations into exactly one transaction. On any
// failure no object changes and the batch stays closed.
func (c *Coordinator) End(ctx context.Context, bc *Context) (*Receipt, error) {
	c.mu.Lock()
	if bc == nil || c.open[bc.caller] != bc {
		c.mu.Unlock()
		return nil, wallet.ErrNotOpen
	}
	delete(c.open, bc.caller)
	muts := bc.close()
	c.mu.Unlock()

	log.Debug().Str("batch", bc.id).Int("mutations", len(muts)).Msg("batch closed")
	if len(muts) == 0 {
		return &Receipt{BatchID: bc.id}, nil
	}
	return c.run(ctx, bc.id, muts)
}

// Commit broadcasts mutations as a one-shot batch. It fails while caller has
// an open batch.
func (c *Coordinator) Commit(ctx context.Context, caller string, muts ...Mutation) (*Receipt, error) {
	c.mu.Lock()
	_, busy := c.open[caller]
	c.mu.Unlock()
	if busy {
		return nil, wallet.NewError(wallet.CodeAlreadyOpen, "caller %q has an open batch", caller)
	}

	id := uuid.NewString()
	if len(muts) == 0 {
		return &Receipt{BatchID: id}, nil
	}
	return c.run(ctx, id, muts)
}

type stagedBatch struct {
	order   []string
	objects map[string]Object
	outputs map[string]uint32
}

func (c *Coordinator) run(ctx context.Context, batchID string, muts []Mutation) (*Receipt, error) {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	staged, err := c.stage(muts)
	if err != nil {
		return nil, err
	}

	draft, err := c.build(ctx, batchID, staged)
	if err != nil {
		return nil, err
	}

	paid, err := c.wallet.Pay(ctx, draft.Tx, draft.Parents)
	if err != nil {
		return nil, errors.Wrap(err, "purse failed to pay")
	}

	signed, err := c.authorize(ctx, draft, paid)
	if err != nil {
		c.release(ctx, batchID, paid)
		return nil, err
	}

	hash, err := c.chain.Broadcast(ctx, signed)
	if err != nil {
		c.release(ctx, batchID, paid)
		return nil, errors.Wrap(err, "broadcast failed")
	}

	if err = c.wallet.Broadcast(ctx, signed); err != nil {
		log.Warn().Err(err).Str("tx", hash.String()).Msg("wallet was not informed about broadcast")
	}

	receipt := &Receipt{BatchID: batchID, TxHash: *hash, Tx: signed.Copy()}

	c.mu.Lock()
	for _, id := range staged.order {
		obj := staged.objects[id]
		obj.Location = &wire.OutPoint{Hash: *hash, Index: staged.outputs[id]}
		c.objects[id] = obj
		receipt.Objects = append(receipt.Objects, obj.clone())
	}
	c.txs.Add(signed.Copy())
	c.mu.Unlock()

	receipt.Fee, err = c.fee(ctx, signed)
	if err != nil {
		log.Warn().Err(err).Str("tx", hash.String()).Msg("unable to compute fee")
	}

	log.Info().Str("batch", batchID).Str("tx", hash.String()).
		Int("objects", len(receipt.Objects)).Int64("fee", receipt.Fee).
		Msg("batch broadcast")
	return receipt, nil
}

// authorize checks the funded draft and has the owner sign it. The result
// has every input signed.
func (c *Coordinator) authorize(ctx context.Context, draft *txmodels.Draft, paid *wire.MsgTx) (*wire.MsgTx, error) {
	if err := preserved(draft.Tx, paid); err != nil {
		return nil, err
	}

	funded := draft.Next(paid)
	signed, err := c.wallet.Sign(ctx, funded.Tx, funded.Parents, funded.Locks)
	if err != nil {
		return nil, errors.Wrap(err, "owner failed to sign")
	}
	if err = preserved(paid, signed); err != nil {
		return nil, err
	}
	if missing := txutils.Unsigned(signed); len(missing) > 0 {
		return nil, wallet.NewError(wallet.CodeUnauthorizedLock, "inputs %v are left unsigned", missing)
	}
	return signed, nil
}

// release gives the purse funding of an abandoned batch back to the wallet.
// It runs even when ctx is already cancelled.
func (c *Coordinator) release(ctx context.Context, batchID string, paid *wire.MsgTx) {
	if paid == nil {
		return
	}
	if err := c.wallet.Release(context.WithoutCancel(ctx), paid); err != nil {
		log.Warn().Err(err).Str("batch", batchID).Msg("unable to release batch funding")
		return
	}
	log.Debug().Str("batch", batchID).Msg("batch funding released")
}

// stage applies mutations to copies of the objects.
func (c *Coordinator) stage(muts []Mutation) (*stagedBatch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := &stagedBatch{objects: map[string]Object{}, outputs: map[string]uint32{}}
	for _, m := range muts {
		if m.ObjectID == "" {
			return nil, wallet.NewError(wallet.CodeInvalidDraft, "mutation without object id")
		}

		obj, ok := st.objects[m.ObjectID]
		if !ok {
			obj, ok = c.objects[m.ObjectID]
			obj = obj.clone()
		}

		switch m.Kind {
		case KindDeploy:
			if ok {
				return nil, wallet.NewError(wallet.CodeInvalidDraft, "object %s already exists", m.ObjectID)
			}
			obj = Object{
				ID:    m.ObjectID,
				Owner: txmodels.Lock(c.addrs.Owner),
				State: append([]byte(nil), m.State...),
			}
		case KindUpdate:
			if !ok {
				return nil, wallet.NewError(wallet.CodeInvalidDraft, "object %s is unknown", m.ObjectID)
			}
			obj.State = append([]byte(nil), m.State...)
		case KindBack:
			if !ok {
				return nil, wallet.NewError(wallet.CodeInvalidDraft, "object %s is unknown", m.ObjectID)
			}
			if m.Satoshis < 0 {
				return nil, wallet.NewError(wallet.CodeInvalidDraft, "negative backing for %s", m.ObjectID)
			}
			obj.Satoshis = m.Satoshis
		default:
			return nil, wallet.NewError(wallet.CodeInvalidDraft, "unknown mutation %q", m.Kind)
		}

		if _, seen := st.objects[m.ObjectID]; !seen {
			st.order = append(st.order, m.ObjectID)
		}
		st.objects[m.ObjectID] = obj
	}
	return st, nil
}

type manifest struct {
	Batch   string          `json:"batch"`
	Objects []manifestEntry `json:"objects"`
}

type manifestEntry struct {
	ID       string `json:"id"`
	Owner    string `json:"owner"`
	State    string `json:"state"`
	Satoshis int64  `json:"satoshis"`
}

// build makes the draft: the manifest output first, then one output per
// object and one input per object already on chain.
func (c *Coordinator) build(ctx context.Context, batchID string, st *stagedBatch) (*txmodels.Draft, error) {
	m := manifest{Batch: batchID}
	for _, id := range st.order {
		obj := st.objects[id]
		m.Objects = append(m.Objects, manifestEntry{
			ID:       obj.ID,
			Owner:    obj.Owner.String(),
			State:    hex.EncodeToString(obj.State),
			Satoshis: obj.Satoshis,
		})
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "unable to encode manifest")
	}
	digest := sha256.Sum256(raw)
	nullData, err := txscript.NullDataScript(append(append([]byte(nil), ManifestTag...), digest[:]...))
	if err != nil {
		return nil, errors.Wrap(err, "unable to build manifest script")
	}

	draft := txmodels.NewDraft()
	draft.AddOutput(0, nullData)

	for _, id := range st.order {
		obj := st.objects[id]
		if obj.Location != nil {
			parent, err := c.parent(ctx, obj.Location.Hash)
			if err != nil {
				return nil, err
			}
			draft.AddInput(*obj.Location, obj.Owner, parent)
		}

		script, err := obj.Owner.Script(c.params)
		if err != nil {
			return nil, err
		}
		st.outputs[id] = draft.AddOutput(c.outputValue(obj.Satoshis), script)
	}

	if err = draft.Validate(); err != nil {
		return nil, wallet.NewError(wallet.CodeInvalidDraft, "%v", err)
	}
	return draft, nil
}

func (c *Coordinator) outputValue(satoshis int64) int64 {
	if satoshis >= c.cfg.BackingThreshold {
		return satoshis
	}
	return c.cfg.DustAmount
}

func (c *Coordinator) parent(ctx context.Context, hash chainhash.Hash) (*wire.MsgTx, error) {
	c.mu.Lock()
	tx, ok := c.txs[hash]
	c.mu.Unlock()
	if ok {
		return tx, nil
	}

	tx, err := c.chain.FetchTx(ctx, hash)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to fetch parent %s", hash)
	}

	c.mu.Lock()
	c.txs.Add(tx)
	c.mu.Unlock()
	return tx, nil
}

func (c *Coordinator) fee(ctx context.Context, tx *wire.MsgTx) (int64, error) {
	parents := txmodels.Parents{}
	for _, in := range tx.TxIn {
		if _, ok := parents[in.PreviousOutPoint.Hash]; ok {
			continue
		}
		parent, err := c.parent(ctx, in.PreviousOutPoint.Hash)
		if err != nil {
			return 0, err
		}
		parents.Add(parent)
	}
	return txutils.TxFee(tx, parents)
}

// preserved checks that next keeps the inputs and outputs of prev in place.
func preserved(prev, next *wire.MsgTx) error {
	if next == nil || len(next.TxIn) < len(prev.TxIn) || len(next.TxOut) < len(prev.TxOut) {
		return wallet.NewError(wallet.CodeInvalidDraft, "wallet dropped draft inputs or outputs")
	}
	for i, in := range prev.TxIn {
		if next.TxIn[i].PreviousOutPoint != in.PreviousOutPoint {
			return wallet.NewError(wallet.CodeInvalidDraft, "wallet replaced input %d", i)
		}
	}
	for i, out := range prev.TxOut {
		if next.TxOut[i].Value != out.Value || string(next.TxOut[i].PkScript) != string(out.PkScript) {
			return wallet.NewError(wallet.CodeInvalidDraft, "wallet replaced output %d", i)
		}
	}
	return nil
}
