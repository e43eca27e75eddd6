// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package config

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
	"gitlab.com/jaxnet/rwallet/batch"
	"gitlab.com/jaxnet/rwallet/chain"
	"gitlab.com/jaxnet/rwallet/corelog"
	"gitlab.com/jaxnet/rwallet/network/rpc"
	"gitlab.com/jaxnet/rwallet/network/rpcclient"
	"gitlab.com/jaxnet/rwallet/txutils"
	"gitlab.com/jaxnet/rwallet/wallet"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFilename = "rwallet.yaml"
	defaultDataDirname    = "data"
)

// WalletConfig describes the local wallet served by the daemon.
type WalletConfig struct {
	// OwnerSecret and PurseSecret are hex-encoded private keys or WIF.
	OwnerSecret      string               `yaml:"owner_secret"`
	PurseSecret      string               `yaml:"purse_secret"`
	FeeRate          int64                `yaml:"fee_rate"`
	DustAmount       int64                `yaml:"dust_amount"`
	BackingThreshold int64                `yaml:"backing_threshold"`
	Backing          wallet.BackingPolicy `yaml:"backing"`
	ReservationTTL   time.Duration        `yaml:"reservation_ttl"`
	// DataDir keeps the purse UTXO set. Empty keeps it in memory.
	DataDir string `yaml:"data_dir"`
}

type Config struct {
	Net    string               `yaml:"net"`
	Wallet WalletConfig         `yaml:"wallet"`
	Server rpc.Config           `yaml:"server"`
	Client rpcclient.ConnConfig `yaml:"client"`
	Node   chain.NodeRPC        `yaml:"node"`
	Log    corelog.Config       `yaml:"log"`
}

func Default() Config {
	purse := wallet.DefaultPurseConfig()
	return Config{
		Net: "regtest",
		Wallet: WalletConfig{
			FeeRate:          purse.FeeRate,
			DustAmount:       purse.DustAmount,
			BackingThreshold: txutils.DustAmount,
			Backing:          purse.Backing,
			ReservationTTL:   purse.ReservationTTL,
			DataDir:          defaultDataDirname,
		},
		Server: rpc.Config{}.Default(),
		Client: rpcclient.ConnConfig{}.Default(),
		Log:    corelog.Config{}.Default(),
	}
}

// Load reads the yaml file at path over the defaults. Fields missing in the
// file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	rawFile, err := ioutil.ReadFile(cleanAndExpandPath(path))
	if err != nil {
		return cfg, errors.Wrap(err, "Unable to read configuration")
	}

	if err = yaml.Unmarshal(rawFile, &cfg); err != nil {
		return cfg, errors.Wrap(err, "Unable to decode configuration")
	}
	cfg.Wallet.DataDir = cleanAndExpandPath(cfg.Wallet.DataDir)
	cfg.Log.Directory = cleanAndExpandPath(cfg.Log.Directory)

	return cfg, cfg.Validate()
}

func (cfg *Config) Validate() error {
	if _, err := NetParams(cfg.Net); err != nil {
		return err
	}
	if _, err := cfg.Log.ParseLevel(); err != nil {
		return errors.Wrap(err, "log: invalid level")
	}
	if !cfg.Wallet.Backing.Valid() {
		return errors.Errorf("wallet: unknown backing policy %q", cfg.Wallet.Backing)
	}
	if cfg.Wallet.FeeRate < txutils.MinFeeRate {
		return errors.Errorf("wallet: fee_rate must be at least %d", txutils.MinFeeRate)
	}
	if cfg.Wallet.DustAmount <= 0 {
		return errors.New("wallet: dust_amount must be positive")
	}
	if cfg.Wallet.BackingThreshold < cfg.Wallet.DustAmount {
		return errors.New("wallet: backing_threshold is below dust_amount")
	}
	if cfg.Wallet.ReservationTTL <= 0 {
		return errors.New("wallet: reservation_ttl must be positive")
	}
	return cfg.Server.Validate()
}

func (cfg *Config) NetParams() *chaincfg.Params {
	params, _ := NetParams(cfg.Net)
	return params
}

func (cfg *Config) PurseConfig() wallet.PurseConfig {
	return wallet.PurseConfig{
		FeeRate:        cfg.Wallet.FeeRate,
		DustAmount:     cfg.Wallet.DustAmount,
		Backing:        cfg.Wallet.Backing,
		ReservationTTL: cfg.Wallet.ReservationTTL,
	}
}

func (cfg *Config) BatchConfig() batch.Config {
	return batch.Config{
		DustAmount:       cfg.Wallet.DustAmount,
		BackingThreshold: cfg.Wallet.BackingThreshold,
	}
}

// WriteDefault stores the default configuration at path, so it can be used
// as a template.
func WriteDefault(path string) error {
	cfg := Default()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err = os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return ioutil.WriteFile(path, data, 0600)
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			path = strings.Replace(path, "~", home, 1)
		}
	}
	return filepath.Clean(os.ExpandEnv(path))
}
