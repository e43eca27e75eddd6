// Copyright (c) 2020 The JaxNetwork developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package batch

import (
	"github.com/btcsuite/btcd/wire"
	"gitlab.com/jaxnet/rwallet/txmodels"
)

// Object is a piece of application state anchored to one transaction output.
type Object struct {
	ID    string
	Owner txmodels.Lock
	State []byte
	// Satoshis is the declared backing value.
	Satoshis int64
	// Location is the output currently holding the object, nil until the
	// first broadcast.
	Location *wire.OutPoint
}

func (o Object) clone() Object {
	res := o
	if o.State != nil {
		res.State = append([]byte(nil), o.State...)
	}
	if o.Location != nil {
		loc := *o.Location
		res.Location = &loc
	}
	return res
}

type MutationKind string

const (
	KindDeploy MutationKind = "deploy"
	KindUpdate MutationKind = "update"
	KindBack   MutationKind = "back"
)

// Mutation is a change of one object recorded inside a batch.
type Mutation struct {
	Kind     MutationKind
	ObjectID string
	State    []byte
	Satoshis int64
}

// Deploy creates a new object owned by the wallet owner.
func Deploy(id string, state []byte) Mutation {
	return Mutation{Kind: KindDeploy, ObjectID: id, State: state}
}

// Update replaces the object state.
func Update(id string, state []byte) Mutation {
	return Mutation{Kind: KindUpdate, ObjectID: id, State: state}
}

// Back sets the backing value of the object, zero releases it.
func Back(id string, satoshis int64) Mutation {
	return Mutation{Kind: KindBack, ObjectID: id, Satoshis: satoshis}
}
