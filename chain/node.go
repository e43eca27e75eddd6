// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"context"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"
	"github.com/btcsuite/btcd/wire"
	"github.com/pkg/errors"
)

// NodeRPC describes connection to a btcd compatible node.
type NodeRPC struct {
	Host       string `yaml:"host"`
	User       string `yaml:"user"`
	Pass       string `yaml:"pass"`
	DisableTLS bool   `yaml:"disable_tls"`
}

// NodeChain relays transactions through the JSON-RPC interface of a node.
type NodeChain struct {
	rpc *rpcclient.Client
}

func NewNodeChain(cfg NodeRPC) (*NodeChain, error) {
	if cfg.Host == "" {
		return nil, errors.New("node rpc host is not set")
	}

	client, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         cfg.Host,
		User:         cfg.User,
		Pass:         cfg.Pass,
		DisableTLS:   cfg.DisableTLS,
		HTTPPostMode: true,
	}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "unable to init rpc client")
	}
	return &NodeChain{rpc: client}, nil
}

func (n *NodeChain) RPC() *rpcclient.Client { return n.rpc }

func (n *NodeChain) Broadcast(ctx context.Context, tx *wire.MsgTx) (*chainhash.Hash, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hash, err := n.rpc.SendRawTransactionAsync(tx, false).Receive()
	if err != nil {
		return nil, errors.Wrap(ErrRejected, err.Error())
	}
	log.Debug().Str("tx", hash.String()).Msg("transaction relayed to node")
	return hash, nil
}

func (n *NodeChain) FetchTx(ctx context.Context, hash chainhash.Hash) (*wire.MsgTx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tx, err := n.rpc.GetRawTransactionAsync(&hash).Receive()
	if err != nil {
		return nil, errors.Wrapf(ErrTxNotFound, "%s: %v", hash, err)
	}
	return tx.MsgTx(), nil
}

func (n *NodeChain) Shutdown() {
	n.rpc.Shutdown()
}
