// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/jaxnet/rwallet/chain"
	"gitlab.com/jaxnet/rwallet/txmodels"
	"gitlab.com/jaxnet/rwallet/txutils"
	"gitlab.com/jaxnet/rwallet/wallet"
)

var testNet = &chaincfg.RegressionNetParams

type fixture struct {
	local   *wallet.Local
	chain   *chain.Mockchain
	funding *wire.MsgTx
	srv     *httptest.Server
}

func newFixture(t *testing.T, cfg Config, purseValues ...int64) *fixture {
	ownerKey, err := txutils.GenerateKey(testNet)
	require.NoError(t, err)
	purseKey, err := txutils.GenerateKey(testNet)
	require.NoError(t, err)

	local := wallet.NewLocal(wallet.NewLocalOwner(ownerKey),
		wallet.NewLocalPurse(purseKey, nil, wallet.DefaultPurseConfig()))
	mock := chain.NewMockchain(testNet)
	funding, err := mock.Fund(local.Purse().Address(), purseValues...)
	require.NoError(t, err)
	_, err = local.Purse().Track(funding)
	require.NoError(t, err)

	srv := httptest.NewServer(NewServer(cfg, local).Handler())
	t.Cleanup(srv.Close)
	return &fixture{local: local, chain: mock, funding: funding, srv: srv}
}

func (f *fixture) post(t *testing.T, path string, body interface{}) (int, []byte) {
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return f.postRaw(t, path, raw)
}

func (f *fixture) postRaw(t *testing.T, path string, raw []byte) (int, []byte) {
	resp, err := http.Post(f.srv.URL+path, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func decodeError(t *testing.T, data []byte) *ErrorBody {
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(data, &resp))
	require.NotNil(t, resp.Error)
	return resp.Error
}

func dustTo(t *testing.T, lock txmodels.Lock, n int) *wire.MsgTx {
	script, err := lock.Script(testNet)
	require.NoError(t, err)
	tx := wire.NewMsgTx(wire.TxVersion)
	for i := 0; i < n; i++ {
		tx.AddTxOut(wire.NewTxOut(txutils.DustAmount, script))
	}
	return tx
}

func testConfig() Config {
	cfg := Config{}.Default()
	cfg.RateLimit = 0
	return cfg
}

func TestAddresses(t *testing.T) {
	f := newFixture(t, testConfig(), 10000)

	resp, err := http.Get(f.srv.URL + PathAddresses)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var addrs wallet.Addresses
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&addrs))
	assert.Equal(t, f.local.Owner().Address(), addrs.Owner)
	assert.Equal(t, f.local.Purse().Address(), addrs.Purse)
}

func TestPayAndSign(t *testing.T) {
	f := newFixture(t, testConfig(), 10000)
	owner := txmodels.Lock(f.local.Owner().Address())

	draft := dustTo(t, owner, 2)
	env, err := NewTxEnvelope(draft, txmodels.NewParents(), nil)
	require.NoError(t, err)
	assert.NotNil(t, env.Parents)
	assert.NotNil(t, env.Locks)

	status, data := f.post(t, PathPay, env)
	require.Equal(t, http.StatusOK, status, string(data))
	var paid TxResponse
	require.NoError(t, json.Unmarshal(data, &paid))
	funded, err := txutils.DecodeTx(paid.RawTx)
	require.NoError(t, err)
	require.NotEmpty(t, funded.TxIn)
	require.NoError(t, txutils.VerifyTx(funded, txmodels.NewParents(f.funding)))

	hash, err := f.chain.Broadcast(context.Background(), funded)
	require.NoError(t, err)

	// spend the first owner output through the unlock alias
	spend := dustTo(t, owner, 1)
	spend.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: *hash, Index: 0}, nil, nil))
	env, err = NewTxEnvelope(spend, txmodels.NewParents(funded), []txmodels.Lock{owner})
	require.NoError(t, err)

	status, data = f.post(t, PathUnlock, env)
	require.Equal(t, http.StatusOK, status, string(data))
	var signed TxResponse
	require.NoError(t, json.Unmarshal(data, &signed))
	signedTx, err := txutils.DecodeTx(signed.RawTx)
	require.NoError(t, err)
	assert.Empty(t, txutils.Unsigned(signedTx))

	env, err = NewTxEnvelope(funded, nil, nil)
	require.NoError(t, err)
	status, data = f.post(t, PathBroadcast, env)
	require.Equal(t, http.StatusOK, status, string(data))
	var ok BroadcastResponse
	require.NoError(t, json.Unmarshal(data, &ok))
	assert.True(t, ok.OK)
}

func TestErrorStatuses(t *testing.T) {
	f := newFixture(t, testConfig(), 1000)
	owner := txmodels.Lock(f.local.Owner().Address())
	stranger, err := txutils.GenerateKey(testNet)
	require.NoError(t, err)

	status, data := f.post(t, PathPay, TxEnvelope{RawTx: "zz"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, wallet.CodeInvalidDraft, decodeError(t, data).Code)

	status, data = f.postRaw(t, PathPay, nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, wallet.CodeInvalidDraft, decodeError(t, data).Code)

	status, data = f.postRaw(t, PathSign, []byte("{"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, wallet.CodeInvalidDraft, decodeError(t, data).Code)

	env, err := NewTxEnvelope(dustTo(t, owner, 10), nil, nil)
	require.NoError(t, err)
	status, data = f.post(t, PathPay, env)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, wallet.CodeInsufficientFunds, decodeError(t, data).Code)

	spend := dustTo(t, owner, 1)
	spend.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: f.funding.TxHash()}, nil, nil))
	env, err = NewTxEnvelope(spend, txmodels.NewParents(f.funding), []txmodels.Lock{stranger.Lock()})
	require.NoError(t, err)
	status, data = f.post(t, PathSign, env)
	assert.Equal(t, http.StatusForbidden, status)
	body := decodeError(t, data)
	assert.Equal(t, wallet.CodeUnauthorizedLock, body.Code)
	assert.NotEmpty(t, body.Message)

	env, err = NewTxEnvelope(spend, nil, []txmodels.Lock{owner})
	require.NoError(t, err)
	status, data = f.post(t, PathSign, env)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, wallet.CodeStaleParents, decodeError(t, data).Code)

	resp, err := http.Get(f.srv.URL + PathPay)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestBodyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxBodyBytes = 64
	f := newFixture(t, cfg, 10000)

	big := `{"rawtx":"` + strings.Repeat("00", 128) + `"}`
	status, data := f.postRaw(t, PathPay, []byte(big))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, wallet.CodeInvalidDraft, decodeError(t, data).Code)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 0.001
	cfg.RateBurst = 2
	f := newFixture(t, cfg, 10000)

	for i := 0; i < 2; i++ {
		resp, err := http.Get(f.srv.URL + PathAddresses)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err := http.Get(f.srv.URL + PathAddresses)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, CodeRateLimited, decodeError(t, data).Code)
}

func TestIPLimiterEvictsIdle(t *testing.T) {
	l := newIPLimiter(1, 1)
	now := time.Now()
	l.clock = func() time.Time { return now }

	assert.True(t, l.allow("10.0.0.1"))
	assert.False(t, l.allow("10.0.0.1"))

	now = now.Add(2 * limiterIdleTTL)
	for i := 0; i < 510; i++ {
		l.allow("10.0.0.2")
	}
	_, ok := l.byIP["10.0.0.1"]
	assert.False(t, ok)

	var disabled *ipLimiter
	assert.True(t, disabled.allow("10.0.0.1"))
	assert.Nil(t, newIPLimiter(0, 10))
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, testConfig(), 10000)

	resp, err := http.Get(f.srv.URL + PathAddresses)
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(f.srv.URL + PathMetrics)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `rwallet_api_requests_total{route="/addresses",status="200"} 1`)
	assert.Contains(t, string(data), "rwallet_api_request_duration_seconds")
}

func TestServeShutdown(t *testing.T) {
	f := newFixture(t, testConfig(), 10000)
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := NewServer(testConfig(), f.local)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, listener) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + listener.Addr().String() + PathAddresses)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Error(t, server.Serve(context.Background(), listener))
}

func TestStatusCode(t *testing.T) {
	cases := map[wallet.ErrorCode]int{
		wallet.CodeInvalidDraft:       http.StatusBadRequest,
		wallet.CodeUnauthorizedLock:   http.StatusForbidden,
		wallet.CodeDoubleSpendAttempt: http.StatusConflict,
		wallet.CodeStaleParents:       http.StatusConflict,
		wallet.CodeInsufficientFunds:  http.StatusUnprocessableEntity,
		wallet.CodeInvalidParents:     http.StatusUnprocessableEntity,
		wallet.CodeBackingDeclined:    http.StatusUnprocessableEntity,
		CodeRateLimited:               http.StatusTooManyRequests,
		wallet.CodeInternal:           http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, StatusCode(code), code)
		assert.True(t, IsKnownCode(code), code)
	}
	assert.False(t, IsKnownCode("whatever"))
}

func TestRelease(t *testing.T) {
	f := newFixture(t, testConfig(), 10000)

	env, err := NewTxEnvelope(dustTo(t, txmodels.Lock(f.local.Owner().Address()), 1), nil, nil)
	require.NoError(t, err)
	status, data := f.post(t, PathPay, env)
	require.Equal(t, http.StatusOK, status, string(data))
	_, available := f.local.Purse().Index().Balance()
	assert.Zero(t, available)

	var paid TxResponse
	require.NoError(t, json.Unmarshal(data, &paid))
	status, data = f.post(t, PathRelease, TxEnvelope{RawTx: paid.RawTx})
	require.Equal(t, http.StatusOK, status, string(data))
	var ok BroadcastResponse
	require.NoError(t, json.Unmarshal(data, &ok))
	assert.True(t, ok.OK)

	total, available := f.local.Purse().Index().Balance()
	assert.Equal(t, total, available)

	status, data = f.post(t, PathRelease, TxEnvelope{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, wallet.CodeInvalidDraft, decodeError(t, data).Code)
}

func TestEnvelopeParents(t *testing.T) {
	f := newFixture(t, testConfig(), 1000, 2000)
	other, err := f.chain.Fund(f.local.Purse().Address(), 3000)
	require.NoError(t, err)

	spend := dustTo(t, txmodels.Lock(f.local.Owner().Address()), 1)
	spend.AddTxIn(wire.NewTxIn(&wire.OutPoint{Hash: f.funding.TxHash(), Index: 1}, nil, nil))

	env, err := NewTxEnvelope(spend, txmodels.NewParents(f.funding, other), nil)
	require.NoError(t, err)
	require.Len(t, env.Parents, 1)

	_, parents, _, err := env.Decode()
	require.NoError(t, err)
	_, ok := parents[f.funding.TxHash()]
	assert.True(t, ok)
}
