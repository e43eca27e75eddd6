// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
	"gitlab.com/jaxnet/rwallet/network/rpc"
	"gitlab.com/jaxnet/rwallet/txmodels"
	"gitlab.com/jaxnet/rwallet/txutils"
	"gitlab.com/jaxnet/rwallet/wallet"
)

const (
	defaultTimeout = 30 * time.Second
	maxResponse    = 4 << 20
)

// ConnConfig describes the connection to a remote wallet.
type ConnConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

func (ConnConfig) Default() ConnConfig {
	return ConnConfig{URL: "http://127.0.0.1:8077", Timeout: defaultTimeout}
}

// Client is a wallet behind the HTTP transport. It satisfies wallet.Wallet,
// so the batch coordinator can't tell it from a local wallet.
type Client struct {
	cfg   ConnConfig
	http  *http.Client
	addrs wallet.Addresses
}

// Connect creates a client and queries the wallet addresses up front.
func Connect(ctx context.Context, cfg ConnConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("wallet url is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.URL = strings.TrimRight(cfg.URL, "/")

	c := &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
	addrs, err := c.fetchAddresses(ctx)
	if err != nil {
		return nil, err
	}
	c.addrs = addrs

	log.Info().Str("url", cfg.URL).
		Str("owner", addrs.Owner).
		Str("purse", addrs.Purse).
		Msg("Connected to remote wallet")
	return c, nil
}

// Addresses returns the addresses fetched by Connect.
func (c *Client) Addresses(context.Context) (wallet.Addresses, error) {
	return c.addrs, nil
}

func (c *Client) Pay(ctx context.Context, tx *wire.MsgTx, parents txmodels.Parents) (*wire.MsgTx, error) {
	return c.txCall(ctx, rpc.PathPay, tx, parents, nil)
}

func (c *Client) Sign(ctx context.Context, tx *wire.MsgTx, parents txmodels.Parents,
	locks []txmodels.Lock) (*wire.MsgTx, error) {
	return c.txCall(ctx, rpc.PathSign, tx, parents, locks)
}

func (c *Client) Broadcast(ctx context.Context, tx *wire.MsgTx) error {
	return c.ackCall(ctx, rpc.PathBroadcast, tx)
}

func (c *Client) Release(ctx context.Context, tx *wire.MsgTx) error {
	return c.ackCall(ctx, rpc.PathRelease, tx)
}

func (c *Client) ackCall(ctx context.Context, path string, tx *wire.MsgTx) error {
	env, err := rpc.NewTxEnvelope(tx, nil, nil)
	if err != nil {
		return wallet.NewError(wallet.CodeInvalidDraft, "%v", err)
	}

	var resp rpc.BroadcastResponse
	if err := c.do(ctx, http.MethodPost, path, env, &resp); err != nil {
		return err
	}
	if !resp.OK {
		return &wallet.TransportError{Op: path, Err: errors.New("call is not acknowledged")}
	}
	return nil
}

func (c *Client) fetchAddresses(ctx context.Context) (wallet.Addresses, error) {
	var addrs wallet.Addresses
	if err := c.do(ctx, http.MethodGet, rpc.PathAddresses, nil, &addrs); err != nil {
		return addrs, err
	}
	if addrs.Owner == "" || addrs.Purse == "" {
		return addrs, &wallet.TransportError{Op: rpc.PathAddresses, Err: errors.New("incomplete addresses")}
	}
	return addrs, nil
}

func (c *Client) txCall(ctx context.Context, path string, tx *wire.MsgTx, parents txmodels.Parents,
	locks []txmodels.Lock) (*wire.MsgTx, error) {
	env, err := rpc.NewTxEnvelope(tx, parents, locks)
	if err != nil {
		return nil, wallet.NewError(wallet.CodeInvalidDraft, "%v", err)
	}

	var resp rpc.TxResponse
	if err := c.do(ctx, http.MethodPost, path, env, &resp); err != nil {
		return nil, err
	}
	if resp.RawTx == "" {
		return nil, &wallet.TransportError{Op: path, Err: errors.New("empty rawtx")}
	}

	result, err := txutils.DecodeTx(resp.RawTx)
	if err != nil {
		return nil, &wallet.TransportError{Op: path, Err: err}
	}
	return result, nil
}

// do performs one call. Business errors come back as *wallet.Error, anything
// else as *wallet.TransportError.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "unable to encode request")
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.URL+path, reqBody)
	if err != nil {
		return &wallet.TransportError{Op: path, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &wallet.TransportError{Op: path, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponse))
	if err != nil {
		return &wallet.TransportError{Op: path, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return c.decodeError(path, resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, result); err != nil {
		return &wallet.TransportError{Op: path, Err: errors.Wrap(err, "malformed response")}
	}
	return nil
}

func (c *Client) decodeError(path string, status int, data []byte) error {
	var resp rpc.ErrorResponse
	if err := json.Unmarshal(data, &resp); err != nil || resp.Error == nil {
		return &wallet.TransportError{Op: path, Err: errors.Errorf("unexpected status %d", status)}
	}

	code := resp.Error.Code
	if !rpc.IsKnownCode(code) || rpc.StatusCode(code) != status {
		return &wallet.TransportError{Op: path,
			Err: errors.Errorf("status %d with error %q: %s", status, code, resp.Error.Message)}
	}
	if code == rpc.CodeRateLimited {
		return &wallet.TransportError{Op: path, Err: errors.New(resp.Error.Message)}
	}

	log.Debug().Str("path", path).Str("code", string(code)).Msg("Remote wallet refused the call")
	return &wallet.Error{Code: code, Message: resp.Error.Message}
}
