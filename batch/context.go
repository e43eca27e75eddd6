// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package batch

import (
	"sync"

	"github.com/rs/zerolog"
	"gitlab.com/jaxnet/rwallet/corelog"
	"gitlab.com/jaxnet/rwallet/wallet"
)

// Context collects mutations between Begin and End.
type Context struct {
	id     string
	caller string

	mu   sync.Mutex
	muts []Mutation
	open bool
}

func (bc *Context) ID() string     { return bc.id }
func (bc *Context) Caller() string { return bc.caller }

// Add records mutations. It fails once the batch is closed.
func (bc *Context) Add(muts ...Mutation) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if !bc.open {
		return wallet.ErrNotOpen
	}
	bc.muts = append(bc.muts, muts...)
	return nil
}

func (bc *Context) Len() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.muts)
}

func (bc *Context) close() []Mutation {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	bc.open = false
	muts := bc.muts
	bc.muts = nil
	return muts
}

var log = corelog.Disabled

// DisableLog disables all library log output.
func DisableLog() {
	log = corelog.Disabled
}

// UseLogger uses a specified Logger to output package logging info.
func UseLogger(logger zerolog.Logger) {
	log = logger
}
