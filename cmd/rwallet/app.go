// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"gitlab.com/jaxnet/rwallet/chain"
	"gitlab.com/jaxnet/rwallet/config"
	"gitlab.com/jaxnet/rwallet/conformance"
	"gitlab.com/jaxnet/rwallet/network/rpc"
	"gitlab.com/jaxnet/rwallet/network/rpcclient"
	"gitlab.com/jaxnet/rwallet/storage"
	"gitlab.com/jaxnet/rwallet/txmodels"
	"gitlab.com/jaxnet/rwallet/txutils"
	"gitlab.com/jaxnet/rwallet/wallet"
)

// selfTestFunding is minted to the purse of the in-memory conformance wallet.
var selfTestFunding = []int64{100000, 100000, 100000}

type App struct {
	config  config.Config
	loggers map[string]zerolog.Logger
	log     zerolog.Logger
}

func (app *App) InitFlags() []cli.Flag {
	flags := getFlags()
	return []cli.Flag{
		flags[flagConfig],
		flags[flagDataDir],
		flags[flagOwnerSecret],
		flags[flagPurseSecret],
		flags[flagWalletURL],
	}
}

func (app *App) InitCfg(c *cli.Context) error {
	path := c.String(flagConfig)
	app.config = config.Default()
	if _, err := os.Stat(path); err == nil || c.IsSet(flagConfig) {
		cfg, err := config.Load(path)
		if err != nil {
			return cli.Exit(err, 1)
		}
		app.config = cfg
	}

	if dataDir := c.String(flagDataDir); dataDir != "" {
		app.config.Wallet.DataDir = dataDir
	}
	if secret := c.String(flagOwnerSecret); secret != "" {
		app.config.Wallet.OwnerSecret = secret
	}
	if secret := c.String(flagPurseSecret); secret != "" {
		app.config.Wallet.PurseSecret = secret
	}
	if url := c.String(flagWalletURL); url != "" {
		app.config.Client.URL = url
	}

	var err error
	app.loggers, err = config.SetupLoggers(app.config.Log)
	if err != nil {
		return cli.Exit(errors.Wrap(err, "unable to init logger"), 1)
	}
	app.log = app.loggers[config.LogUnitMain]
	return nil
}

func (app *App) keys() (owner, purse *txutils.KeyData, err error) {
	params := app.config.NetParams()
	owner, err = txutils.NewKeyData(app.config.Wallet.OwnerSecret, params)
	if err != nil {
		return nil, nil, errors.Wrap(err, "invalid owner secret")
	}
	purse, err = txutils.NewKeyData(app.config.Wallet.PurseSecret, params)
	if err != nil {
		return nil, nil, errors.Wrap(err, "invalid purse secret")
	}
	return owner, purse, nil
}

func (app *App) openRepo() (*storage.UTXORepo, error) {
	repo, err := storage.NewUTXORepo(app.config.Wallet.DataDir, app.loggers[config.LogUnitSTRG])
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// localWallet restores the purse from the repo, every later change of the
// UTXO set is written back to it.
func (app *App) localWallet(repo *storage.UTXORepo) (*wallet.Local, error) {
	ownerKey, purseKey, err := app.keys()
	if err != nil {
		return nil, err
	}

	index := txmodels.NewUTXOIndex()
	if _, err = repo.Load(index); err != nil {
		return nil, errors.Wrap(err, "unable to load utxo set")
	}

	purse := wallet.NewLocalPurse(purseKey, index, app.config.PurseConfig()).WithStore(repo)
	total, available := index.Balance()
	app.log.Info().Str("owner", ownerKey.Address.EncodeAddress()).
		Str("purse", purse.Address()).
		Int64("balance", total).
		Int64("available", available).
		Msg("Wallet is ready")
	return wallet.NewLocal(wallet.NewLocalOwner(ownerKey), purse), nil
}

func (app *App) serveCmd(*cli.Context) error {
	repo, err := app.openRepo()
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer repo.Close()

	local, err := app.localWallet(repo)
	if err != nil {
		return cli.Exit(err, 1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-interruptListener(app.log)
		cancel()
	}()

	if err = rpc.NewServer(app.config.Server, local).Run(ctx); err != nil {
		return cli.Exit(err, 1)
	}
	return nil
}

func (app *App) addressesCmd(c *cli.Context) error {
	client, err := rpcclient.Connect(c.Context, app.config.Client)
	if err != nil {
		return cli.Exit(errors.Wrap(err, "unable to connect to wallet"), 1)
	}

	addrs, err := client.Addresses(c.Context)
	if err != nil {
		return cli.Exit(err, 1)
	}
	return printJSON(addrs)
}

func (app *App) importUTXOCmd(c *cli.Context) error {
	rows, err := storage.NewCSVStorage(c.String(flagDataFile)).FetchData()
	if err != nil {
		return cli.Exit(errors.Wrap(err, "unable to read UTXO"), 1)
	}

	repo, err := app.openRepo()
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer repo.Close()

	if err = repo.Import(rows); err != nil {
		return cli.Exit(errors.Wrap(err, "unable to import UTXO"), 1)
	}
	fmt.Printf("Imported %d UTXOs, %s\n", len(rows), btcutil.Amount(rows.GetSum()))
	return nil
}

func (app *App) exportUTXOCmd(c *cli.Context) error {
	repo, err := app.openRepo()
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer repo.Close()

	rows, err := repo.Rows()
	if err != nil {
		return cli.Exit(errors.Wrap(err, "unable to read UTXO"), 1)
	}
	if err = storage.NewCSVStorage(c.String(flagDataFile)).SaveRows(rows); err != nil {
		return cli.Exit(errors.Wrap(err, "unable to save UTXO"), 1)
	}
	fmt.Printf("Exported %d UTXOs, %s\n", len(rows), btcutil.Amount(rows.GetSum()))
	return nil
}

func (app *App) trackUTXOCmd(c *cli.Context) error {
	hash, err := chainhash.NewHashFromStr(c.String(flagTxHash))
	if err != nil {
		return cli.Exit(errors.Wrap(err, "invalid tx hash"), 1)
	}

	node, err := chain.NewNodeChain(app.config.Node)
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer node.Shutdown()

	tx, err := node.FetchTx(c.Context, *hash)
	if err != nil {
		return cli.Exit(err, 1)
	}

	repo, err := app.openRepo()
	if err != nil {
		return cli.Exit(err, 1)
	}
	defer repo.Close()

	local, err := app.localWallet(repo)
	if err != nil {
		return cli.Exit(err, 1)
	}
	n, err := local.Purse().Track(tx)
	if err != nil {
		return cli.Exit(errors.Wrap(err, "unable to track tx"), 1)
	}
	fmt.Printf("Tracked %d purse outputs of %s\n", n, hash)
	return nil
}

func (app *App) conformanceCmd(c *cli.Context) error {
	env := conformance.Env{
		Params:     app.config.NetParams(),
		Batch:      app.config.BatchConfig(),
		MinFeeRate: app.config.Wallet.FeeRate,
	}

	if c.Bool(flagSelfTest) {
		local, mock, err := app.selfTestWallet(!c.Bool(flagBacking))
		if err != nil {
			return cli.Exit(err, 1)
		}
		env.Wallet, env.Chain = local, mock
	} else {
		client, err := rpcclient.Connect(c.Context, app.config.Client)
		if err != nil {
			return cli.Exit(errors.Wrap(err, "unable to connect to wallet"), 1)
		}
		node, err := chain.NewNodeChain(app.config.Node)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer node.Shutdown()
		env.Wallet, env.Chain = client, node
	}

	report, err := conformance.Run(c.Context, env, conformance.Options{SupportsBacking: c.Bool(flagBacking)})
	if err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Println(report.String())
	if !report.Passed() {
		return cli.Exit(fmt.Sprintf("%d scenarios did not pass", len(report.Failed())), 1)
	}
	return nil
}

// selfTestWallet builds an in-memory wallet funded on a mock chain.
func (app *App) selfTestWallet(decline bool) (*wallet.Local, *chain.Mockchain, error) {
	params := app.config.NetParams()
	ownerKey, err := txutils.GenerateKey(params)
	if err != nil {
		return nil, nil, err
	}
	purseKey, err := txutils.GenerateKey(params)
	if err != nil {
		return nil, nil, err
	}

	cfg := app.config.PurseConfig()
	if decline {
		cfg.Backing = wallet.BackingDeclined
	}
	local := wallet.NewLocal(wallet.NewLocalOwner(ownerKey), wallet.NewLocalPurse(purseKey, nil, cfg))

	mock := chain.NewMockchain(params)
	funding, err := mock.Fund(local.Purse().Address(), selfTestFunding...)
	if err != nil {
		return nil, nil, err
	}
	if _, err = local.Purse().Track(funding); err != nil {
		return nil, nil, err
	}
	return local, mock, nil
}

func (app *App) decodeTxCmd(c *cli.Context) error {
	tx, err := txutils.DecodeTx(c.String(flagTxBody))
	if err != nil {
		return cli.Exit(err, 1)
	}

	fmt.Printf("Hash: %s\nSize: %d\nEstimated signed size: %d\n",
		tx.TxHash(), tx.SerializeSize(), txutils.EstimateSignedSize(tx))
	for i, out := range tx.TxOut {
		lock := txmodels.LockFromScript(out.PkScript, app.config.NetParams())
		fmt.Printf("Out %d: %s -> %s\n", i, btcutil.Amount(out.Value), lock)
	}
	spew.Dump(tx)
	return nil
}

func (app *App) keygenCmd(*cli.Context) error {
	key, err := txutils.GenerateKey(app.config.NetParams())
	if err != nil {
		return cli.Exit(err, 1)
	}
	wif, err := key.WIF()
	if err != nil {
		return cli.Exit(err, 1)
	}

	return printJSON(map[string]string{
		"address": key.Address.EncodeAddress(),
		"secret":  key.Secret(),
		"wif":     wif,
	})
}

func (app *App) initConfigCmd(c *cli.Context) error {
	path := c.String(flagConfig)
	if _, err := os.Stat(path); err == nil {
		return cli.Exit(fmt.Sprintf("%s already exists", path), 1)
	}
	if err := config.WriteDefault(path); err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Printf("Default configuration is written to %s\n", path)
	return nil
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return cli.Exit(err, 1)
	}
	fmt.Println(string(data))
	return nil
}
