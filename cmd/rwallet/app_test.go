// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/jaxnet/rwallet/config"
	"gitlab.com/jaxnet/rwallet/conformance"
	"gitlab.com/jaxnet/rwallet/corelog"
	"gitlab.com/jaxnet/rwallet/storage"
	"gitlab.com/jaxnet/rwallet/txutils"
)

func newTestApp(t *testing.T) *App {
	cfg := config.Default()
	cfg.Wallet.DataDir = t.TempDir()
	return &App{config: cfg, log: corelog.Disabled, loggers: map[string]zerolog.Logger{
		config.LogUnitSTRG: corelog.Disabled,
	}}
}

func TestSelfTestConformance(t *testing.T) {
	app := newTestApp(t)
	for _, backing := range []bool{true, false} {
		local, mock, err := app.selfTestWallet(!backing)
		require.NoError(t, err)

		report, err := conformance.Run(context.Background(), conformance.Env{
			Wallet: local,
			Chain:  mock,
			Params: app.config.NetParams(),
			Batch:  app.config.BatchConfig(),
		}, conformance.Options{SupportsBacking: backing})
		require.NoError(t, err)
		assert.True(t, report.Passed(), report.String())
	}
}

func TestLocalWalletRestore(t *testing.T) {
	app := newTestApp(t)
	owner, err := txutils.GenerateKey(app.config.NetParams())
	require.NoError(t, err)
	purse, err := txutils.GenerateKey(app.config.NetParams())
	require.NoError(t, err)
	app.config.Wallet.OwnerSecret = owner.Secret()
	app.config.Wallet.PurseSecret = purse.Secret()

	self, mock, err := app.selfTestWallet(false)
	require.NoError(t, err)
	funding, ok := mock.Last()
	require.True(t, ok)
	rows := self.Purse().Index().RowsCopy()
	require.Len(t, rows, len(selfTestFunding))

	csv := filepath.Join(t.TempDir(), "utxo.csv")
	require.NoError(t, storage.NewCSVStorage(csv).SaveRows(rows))

	repo, err := app.openRepo()
	require.NoError(t, err)
	fetched, err := storage.NewCSVStorage(csv).FetchData()
	require.NoError(t, err)
	require.NoError(t, repo.Import(fetched))

	local, err := app.localWallet(repo)
	require.NoError(t, err)
	total, _ := local.Purse().Index().Balance()
	assert.Equal(t, rows.GetSum(), total)
	assert.Equal(t, funding.TxHash().String(), local.Purse().Index().RowsCopy()[0].TxHash)
	require.NoError(t, repo.Close())

	app.config.Wallet.PurseSecret = "zz"
	repo, err = app.openRepo()
	require.NoError(t, err)
	defer repo.Close()
	_, err = app.localWallet(repo)
	assert.Error(t, err)
}
