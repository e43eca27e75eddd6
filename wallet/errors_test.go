// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wallet

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorIs(t *testing.T) {
	err := errors.Wrap(NewError(CodeStaleParents, "input %d", 2), "sign")
	assert.ErrorIs(t, err, ErrStaleParents)
	assert.NotErrorIs(t, err, ErrInvalidParents)
	assert.Equal(t, CodeStaleParents, CodeOf(err))
	assert.Contains(t, err.Error(), "stale_parents: input 2")
}

func TestTransportError(t *testing.T) {
	err := errors.WithStack(&TransportError{Op: "pay", Err: context.DeadlineExceeded})
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, CodeTransportError, CodeOf(err))

	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, CodeInternal, CodeOf(nil))
}

func TestBackingPolicy(t *testing.T) {
	assert.True(t, BackingSupported.Valid())
	assert.True(t, BackingDeclined.Valid())
	assert.False(t, BackingPolicy("maybe").Valid())
}
