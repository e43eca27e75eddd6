/*
 * Copyright (c) 2020 The JaxNetwork developers
 * Use of this source code is governed by an ISC
 * license that can be found in the LICENSE file.
 */

package storage

import (
	"fmt"
	"path"

	"github.com/btcsuite/btcd/wire"
	"github.com/dgraph-io/badger/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gitlab.com/jaxnet/rwallet/txmodels"
)

const utxoPrefix = "utxo/"

// UTXORepo keeps the purse UTXO set in badger, one key per output.
type UTXORepo struct {
	db     *badger.DB
	logger zerolog.Logger
}

// NewUTXORepo opens the repo under dataDir. An empty dataDir keeps
// everything in memory.
func NewUTXORepo(dataDir string, logger zerolog.Logger) (*UTXORepo, error) {
	opts := badger.DefaultOptions(path.Join(dataDir, "utxo"))
	if dataDir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "unable to open utxo db")
	}
	return &UTXORepo{db: db, logger: logger}, nil
}

func utxoKey(op wire.OutPoint) []byte {
	return []byte(fmt.Sprintf("%s%s:%d", utxoPrefix, op.Hash, op.Index))
}

func (repo *UTXORepo) Save(utxo txmodels.UTXO) error {
	op, err := utxo.OutPoint()
	if err != nil {
		return err
	}
	data, err := utxo.MarshalBinary()
	if err != nil {
		return errors.Wrap(err, "unable to marshal utxo")
	}

	return repo.db.Update(func(txn *badger.Txn) error {
		return txn.Set(utxoKey(op), data)
	})
}

func (repo *UTXORepo) Remove(op wire.OutPoint) error {
	return repo.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(utxoKey(op))
	})
}

// Rows returns every stored output.
func (repo *UTXORepo) Rows() (txmodels.UTXORows, error) {
	rows := make(txmodels.UTXORows, 0)
	err := repo.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		iter := txn.NewIterator(opts)
		defer iter.Close()

		prefix := []byte(utxoPrefix)
		for iter.Seek(prefix); iter.ValidForPrefix(prefix); iter.Next() {
			var utxo txmodels.UTXO
			err := iter.Item().Value(func(val []byte) error {
				return utxo.UnmarshalBinary(val)
			})
			if err != nil {
				return errors.Wrapf(err, "unable to read %s", iter.Item().Key())
			}
			rows = append(rows, utxo)
		}
		return nil
	})
	return rows, err
}

// Load fills index with the stored outputs.
func (repo *UTXORepo) Load(index *txmodels.UTXOIndex) (int, error) {
	rows, err := repo.Rows()
	if err != nil {
		return 0, err
	}
	for _, utxo := range rows {
		if err := index.AddUTXO(utxo); err != nil {
			return 0, err
		}
	}

	repo.logger.Info().Int("count", len(rows)).Int64("value", rows.GetSum()).Msg("UTXO set loaded")
	return len(rows), nil
}

// Import stores rows, typically read from a csv dump.
func (repo *UTXORepo) Import(rows txmodels.UTXORows) error {
	wb := repo.db.NewWriteBatch()
	defer wb.Cancel()

	for _, utxo := range rows {
		op, err := utxo.OutPoint()
		if err != nil {
			return err
		}
		data, err := utxo.MarshalBinary()
		if err != nil {
			return err
		}
		if err = wb.Set(utxoKey(op), data); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (repo *UTXORepo) Close() error {
	return repo.db.Close()
}

type badgerLogger struct {
	zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.Logger.Error().Msgf(format, args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Logger.Warn().Msgf(format, args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.Logger.Debug().Msgf(format, args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.Logger.Trace().Msgf(format, args...)
}
