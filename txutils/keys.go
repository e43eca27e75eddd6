// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package txutils

import (
	"encoding/hex"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/pkg/errors"
	"gitlab.com/jaxnet/rwallet/txmodels"
)

type KeyData struct {
	PrivateKey    *btcec.PrivateKey
	Address       *btcutil.AddressPubKeyHash
	AddressPubKey *btcutil.AddressPubKey

	net *chaincfg.Params
}

func GenerateKey(networkCfg *chaincfg.Params) (*KeyData, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed to make privKey")
	}
	return newKeyData(key, networkCfg)
}

// NewKeyData accepts either a hex encoded private key or a WIF string.
func NewKeyData(secret string, networkCfg *chaincfg.Params) (*KeyData, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("secret key is empty")
	}

	if privateKeyBytes, err := hex.DecodeString(secret); err == nil {
		if len(privateKeyBytes) != btcec.PrivKeyBytesLen {
			return nil, errors.Errorf("private key must be %d bytes", btcec.PrivKeyBytesLen)
		}
		privateKey, _ := btcec.PrivKeyFromBytes(privateKeyBytes)
		return newKeyData(privateKey, networkCfg)
	}

	wif, err := btcutil.DecodeWIF(secret)
	if err != nil {
		return nil, errors.Wrap(err, "unable to decode private key from hex or WIF")
	}
	if !wif.IsForNet(networkCfg) {
		return nil, errors.Errorf("WIF is not for %s", networkCfg.Name)
	}
	return newKeyData(wif.PrivKey, networkCfg)
}

func newKeyData(key *btcec.PrivateKey, networkCfg *chaincfg.Params) (*KeyData, error) {
	addressPubKey, err := btcutil.NewAddressPubKey(key.PubKey().SerializeCompressed(), networkCfg)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create address pub key")
	}

	return &KeyData{
		PrivateKey:    key,
		AddressPubKey: addressPubKey,
		Address:       addressPubKey.AddressPubKeyHash(),
		net:           networkCfg,
	}, nil
}

// GetKey matches txscript.KeyDB.
func (kd *KeyData) GetKey(address btcutil.Address) (*btcec.PrivateKey, bool, error) {
	if address.EncodeAddress() == kd.Address.EncodeAddress() {
		return kd.PrivateKey, true, nil
	}

	return nil, false, errors.Errorf("no key for %s", address.EncodeAddress())
}

func (kd *KeyData) Lock() txmodels.Lock {
	return txmodels.Lock(kd.Address.EncodeAddress())
}

func (kd *KeyData) PKScript() ([]byte, error) {
	return kd.Lock().Script(kd.net)
}

func (kd *KeyData) Secret() string {
	return hex.EncodeToString(kd.PrivateKey.Serialize())
}

func (kd *KeyData) WIF() (string, error) {
	wif, err := btcutil.NewWIF(kd.PrivateKey, kd.net, true)
	if err != nil {
		return "", err
	}
	return wif.String(), nil
}

func (kd *KeyData) Net() *chaincfg.Params {
	return kd.net
}
