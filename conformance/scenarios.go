// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package conformance

import (
	"bytes"
	"context"
	"sync"
	"sync/atomic"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"gitlab.com/jaxnet/rwallet/batch"
	"gitlab.com/jaxnet/rwallet/txmodels"
	"gitlab.com/jaxnet/rwallet/txutils"
	"gitlab.com/jaxnet/rwallet/wallet"
)

const (
	backedValue   = 5000
	maxReleaseFee = 1000
	caller        = "conformance"
)

type scenario struct {
	name string
	run  func(r *runner) (string, error)
}

type suite struct {
	name      string
	scenarios []scenario
}

func suites(opts Options) []suite {
	purse := []scenario{
		{"pay for a single dust output", payDustOutput},
		{"pay for multiple dust outputs", payDustOutputs},
		{"pay for a single dust input and output", payDustInput},
		{"pay for multiple dust inputs and outputs", payDustInputs},
	}
	if opts.SupportsBacking {
		purse = append(purse,
			scenario{"pay to back an object with satoshis", payBacking},
			scenario{"receive change from a backed object", releaseBacking})
	} else {
		purse = append(purse, scenario{"do not back objects with satoshis", declineBacking})
	}

	return []suite{
		{name: "owner", scenarios: []scenario{
			{"new objects are assigned an owner", assignOwner},
			{"sign a single update", signUpdate},
			{"sign multiple updates", signUpdates},
		}},
		{name: "purse", scenarios: purse},
		{name: "end-to-end", scenarios: []scenario{
			{"first deploy is funded by the purse", firstDeploy},
			{"a refused batch leaves no trace", refusedBatch},
			{"concurrent payments never share funding", concurrentPays},
		}},
	}
}

type runner struct {
	ctx   context.Context
	env   Env
	coord *batch.Coordinator
	gate  *gate
}

// gate passes every call to the wallet under test. While refusing, it
// declines to sign the way an owner rejecting a request does.
type gate struct {
	wallet.Wallet
	refusing int32
}

func (g *gate) refuse(on bool) {
	var v int32
	if on {
		v = 1
	}
	atomic.StoreInt32(&g.refusing, v)
}

func (g *gate) Sign(ctx context.Context, tx *wire.MsgTx, parents txmodels.Parents,
	locks []txmodels.Lock) (*wire.MsgTx, error) {
	if atomic.LoadInt32(&g.refusing) == 1 {
		return nil, wallet.NewError(wallet.CodeUnauthorizedLock, "owner declined the batch")
	}
	return g.Wallet.Sign(ctx, tx, parents, locks)
}

func (r *runner) commit(muts ...batch.Mutation) (*batch.Receipt, error) {
	receipt, err := r.coord.Commit(r.ctx, caller, muts...)
	if err != nil {
		return nil, err
	}
	return receipt, r.checkReceipt(receipt)
}

func (r *runner) batch(muts ...batch.Mutation) (*batch.Receipt, error) {
	bc, err := r.coord.Begin(caller)
	if err != nil {
		return nil, err
	}
	for _, m := range muts {
		if err = bc.Add(m); err != nil {
			return nil, err
		}
	}
	receipt, err := r.coord.End(r.ctx, bc)
	if err != nil {
		return nil, err
	}
	return receipt, r.checkReceipt(receipt)
}

// checkReceipt asserts that the broadcast tx is on chain, every input is
// authorized and the fee covers the minimal rate.
func (r *runner) checkReceipt(receipt *batch.Receipt) error {
	if receipt.Empty() {
		return errors.New("batch produced no transaction")
	}
	tx, err := r.env.Chain.FetchTx(r.ctx, receipt.TxHash)
	if err != nil {
		return errors.Wrap(err, "broadcast tx is not on chain")
	}

	parents, err := r.parents(tx)
	if err != nil {
		return err
	}
	if err = txutils.VerifyTx(tx, parents); err != nil {
		return errors.Wrap(err, "tx is not fully signed")
	}

	fee, err := txutils.TxFee(tx, parents)
	if err != nil {
		return err
	}
	if need := r.env.MinFeeRate * int64(tx.SerializeSize()); fee < need {
		return errors.Errorf("fee %d is below %d", fee, need)
	}
	return nil
}

func (r *runner) parents(tx *wire.MsgTx) (txmodels.Parents, error) {
	parents := txmodels.NewParents()
	for _, in := range tx.TxIn {
		hash := in.PreviousOutPoint.Hash
		if _, ok := parents[hash]; ok {
			continue
		}
		parent, err := r.env.Chain.FetchTx(r.ctx, hash)
		if err != nil {
			return nil, errors.Wrapf(err, "parent %s is unknown", hash)
		}
		parents.Add(parent)
	}
	return parents, nil
}

func (r *runner) outputsTo(tx *wire.MsgTx, address string) []*wire.TxOut {
	var res []*wire.TxOut
	for _, out := range tx.TxOut {
		if txmodels.LockFromScript(out.PkScript, r.env.Params).String() == address {
			res = append(res, out)
		}
	}
	return res
}

func (r *runner) purseInputs(tx *wire.MsgTx) (int, error) {
	parents, err := r.parents(tx)
	if err != nil {
		return 0, err
	}
	purse := r.coord.Addresses().Purse

	var n int
	for _, in := range tx.TxIn {
		prev, _ := parents.PrevOut(in.PreviousOutPoint)
		if prev != nil && txmodels.LockFromScript(prev.PkScript, r.env.Params).String() == purse {
			n++
		}
	}
	return n, nil
}

// spends checks that tx consumes the previous locations of objects.
func spends(tx *wire.MsgTx, locations ...wire.OutPoint) error {
	inputs := map[wire.OutPoint]struct{}{}
	for _, in := range tx.TxIn {
		inputs[in.PreviousOutPoint] = struct{}{}
	}
	for _, loc := range locations {
		if _, ok := inputs[loc]; !ok {
			return errors.Errorf("object at %s is not spent", loc)
		}
	}
	return nil
}

func (r *runner) location(id string) (wire.OutPoint, error) {
	obj, ok := r.coord.Object(id)
	if !ok || obj.Location == nil {
		return wire.OutPoint{}, errors.Errorf("object %s is not deployed", id)
	}
	return *obj.Location, nil
}

func (r *runner) update(ids ...string) (*batch.Receipt, error) {
	var (
		locations []wire.OutPoint
		muts      []batch.Mutation
	)
	for _, id := range ids {
		loc, err := r.location(id)
		if err != nil {
			return nil, err
		}
		locations = append(locations, loc)
		muts = append(muts, batch.Update(id, []byte("upgraded")))
	}

	var (
		receipt *batch.Receipt
		err     error
	)
	if len(muts) == 1 {
		receipt, err = r.commit(muts...)
	} else {
		receipt, err = r.batch(muts...)
	}
	if err != nil {
		return nil, err
	}
	return receipt, spends(receipt.Tx, locations...)
}

func assignOwner(r *runner) (string, error) {
	receipt, err := r.commit(batch.Deploy("weapon", nil))
	if err != nil {
		return "", err
	}
	hash := receipt.TxHash.String()

	owner := r.coord.Addresses().Owner
	obj, ok := r.coord.Object("weapon")
	if !ok || obj.Location == nil {
		return hash, errors.New("object is not deployed")
	}
	if obj.Owner.String() != owner {
		return hash, errors.Errorf("object owner is %s, want %s", obj.Owner, owner)
	}
	out := receipt.Tx.TxOut[obj.Location.Index]
	if lock := txmodels.LockFromScript(out.PkScript, r.env.Params); lock.String() != owner {
		return hash, errors.Errorf("object output is locked to %s", lock)
	}
	return hash, nil
}

func signUpdate(r *runner) (string, error) {
	if _, err := r.commit(batch.Deploy("weapon-1", nil)); err != nil {
		return "", err
	}
	receipt, err := r.update("weapon-1")
	if err != nil {
		return "", err
	}
	return receipt.TxHash.String(), nil
}

func signUpdates(r *runner) (string, error) {
	if _, err := r.commit(batch.Deploy("weapon-2", nil)); err != nil {
		return "", err
	}
	receipt, err := r.update("weapon-1", "weapon-2")
	if err != nil {
		return "", err
	}
	return receipt.TxHash.String(), nil
}

func payDustOutput(r *runner) (string, error) {
	receipt, err := r.commit(batch.Deploy("class", nil))
	if err != nil {
		return "", err
	}
	return receipt.TxHash.String(), nil
}

func payDustOutputs(r *runner) (string, error) {
	receipt, err := r.batch(batch.Deploy("sword", nil), batch.Deploy("staff", nil))
	if err != nil {
		return "", err
	}
	hash := receipt.TxHash.String()
	if n := len(r.outputsTo(receipt.Tx, r.coord.Addresses().Owner)); n != 2 {
		return hash, errors.Errorf("%d owner outputs, want 2", n)
	}
	return hash, nil
}

func payDustInput(r *runner) (string, error) {
	receipt, err := r.update("sword")
	if err != nil {
		return "", err
	}
	return receipt.TxHash.String(), nil
}

func payDustInputs(r *runner) (string, error) {
	receipt, err := r.update("sword", "staff")
	if err != nil {
		return "", err
	}
	return receipt.TxHash.String(), nil
}

func payBacking(r *runner) (string, error) {
	receipt, err := r.commit(batch.Back("sword", backedValue))
	if err != nil {
		return "", err
	}
	hash := receipt.TxHash.String()

	loc, err := r.location("sword")
	if err != nil {
		return hash, err
	}
	if value := receipt.Tx.TxOut[loc.Index].Value; value < backedValue {
		return hash, errors.Errorf("object is backed with %d", value)
	}
	return hash, nil
}

func releaseBacking(r *runner) (string, error) {
	receipt, err := r.commit(batch.Back("sword", 0))
	if err != nil {
		return "", err
	}
	hash := receipt.TxHash.String()

	parents, err := r.parents(receipt.Tx)
	if err != nil {
		return hash, err
	}
	fee, err := txutils.TxFee(receipt.Tx, parents)
	if err != nil {
		return hash, err
	}
	if fee > maxReleaseFee {
		return hash, errors.Errorf("fee %d: backing change was not received", fee)
	}
	return hash, nil
}

func declineBacking(r *runner) (string, error) {
	for i := 0; i < 2; i++ {
		receipt, err := r.commit(batch.Back("sword", backedValue))
		if err == nil {
			return receipt.TxHash.String(), errors.New("backed output was paid")
		}
		if !errors.Is(err, wallet.ErrBackingDeclined) {
			return "", errors.Wrap(err, "unexpected failure")
		}
	}
	return "", nil
}

func firstDeploy(r *runner) (string, error) {
	receipt, err := r.commit(batch.Deploy("first", nil))
	if err != nil {
		return "", err
	}
	hash := receipt.TxHash.String()

	if n := len(r.outputsTo(receipt.Tx, r.coord.Addresses().Owner)); n != 1 {
		return hash, errors.Errorf("%d owner outputs, want 1", n)
	}
	n, err := r.purseInputs(receipt.Tx)
	if err != nil {
		return hash, err
	}
	if n < 1 {
		return hash, errors.New("no purse funding inputs")
	}
	return hash, nil
}

func refusedBatch(r *runner) (string, error) {
	if _, err := r.commit(batch.Deploy("relic", []byte("v0"))); err != nil {
		return "", err
	}
	before, err := r.location("relic")
	if err != nil {
		return "", err
	}

	r.gate.refuse(true)
	_, err = r.batch(batch.Update("relic", []byte("v1")), batch.Deploy("shard", nil))
	r.gate.refuse(false)
	switch {
	case err == nil:
		return "", errors.New("batch was broadcast without the owner signature")
	case !errors.Is(err, wallet.ErrUnauthorizedLock):
		return "", errors.Wrap(err, "unexpected failure")
	}

	obj, _ := r.coord.Object("relic")
	if obj.Location == nil || *obj.Location != before || !bytes.Equal(obj.State, []byte("v0")) {
		return "", errors.New("refused batch changed the object")
	}
	if _, ok := r.coord.Object("shard"); ok {
		return "", errors.New("refused batch created an object")
	}

	// the retry spends the old location, so the refused tx never reached the
	// chain, and its funding is available again
	receipt, err := r.batch(batch.Update("relic", []byte("v1")), batch.Deploy("shard", nil))
	if err != nil {
		return "", errors.Wrap(err, "retry after the refused batch")
	}
	return receipt.TxHash.String(), spends(receipt.Tx, before)
}

func concurrentPays(r *runner) (string, error) {
	receipt, err := r.commit(batch.Deploy("coin", nil))
	if err != nil {
		return "", err
	}
	hash := receipt.TxHash.String()
	addrs := r.coord.Addresses()

	// every draft spends the purse change of the receipt when there is one
	var shared *wire.OutPoint
	for i, out := range receipt.Tx.TxOut {
		if txmodels.LockFromScript(out.PkScript, r.env.Params).String() == addrs.Purse {
			shared = &wire.OutPoint{Hash: receipt.TxHash, Index: uint32(i)}
			break
		}
	}
	script, err := txmodels.Lock(addrs.Owner).Script(r.env.Params)
	if err != nil {
		return hash, err
	}

	const contenders = 2
	var (
		wg     sync.WaitGroup
		funded = make([]*wire.MsgTx, contenders)
		errs   = make([]error, contenders)
	)
	for i := 0; i < contenders; i++ {
		draft := wire.NewMsgTx(wire.TxVersion)
		draft.LockTime = uint32(i)
		draft.AddTxOut(wire.NewTxOut(r.env.Batch.DustAmount, script))
		if shared != nil {
			draft.AddTxIn(wire.NewTxIn(shared, nil, nil))
		}

		wg.Add(1)
		go func(i int, draft *wire.MsgTx) {
			defer wg.Done()
			funded[i], errs[i] = r.env.Wallet.Pay(r.ctx, draft, txmodels.NewParents(receipt.Tx))
		}(i, draft)
	}
	wg.Wait()

	var paid []*wire.MsgTx
	for i, err := range errs {
		if err == nil {
			paid = append(paid, funded[i])
			continue
		}
		if code := wallet.CodeOf(err); code == wallet.CodeTransportError || code == wallet.CodeInternal {
			return hash, errors.Wrap(err, "unexpected failure")
		}
	}
	defer func() {
		for _, tx := range paid {
			if err := r.env.Wallet.Release(r.ctx, tx); err != nil {
				log.Warn().Err(err).Msg("Unable to release contended funding")
			}
		}
	}()

	if shared != nil && len(paid) > 1 {
		return hash, errors.Errorf("%d payments spend purse output %s", len(paid), shared)
	}
	inputs := map[wire.OutPoint]struct{}{}
	for _, tx := range paid {
		for _, in := range tx.TxIn {
			if _, ok := inputs[in.PreviousOutPoint]; ok {
				return hash, errors.Errorf("payments share input %s", in.PreviousOutPoint)
			}
			inputs[in.PreviousOutPoint] = struct{}{}
		}
	}
	return hash, nil
}
