// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package collection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	apierrors "github.com/cubefs/objectstore/errors"
	"github.com/cubefs/objectstore/objectmap"
	"github.com/cubefs/objectstore/spos"
	"github.com/cubefs/objectstore/testutil/memkv"
	"github.com/cubefs/objectstore/txn"
)

func newTestTx() (*txn.Tx, *objectmap.Map) {
	store := memkv.New(objectmap.AllColumns...)
	gom := objectmap.New(store)
	return txn.New(gom, gom.NewBatch(), spos.Position{OpSeq: 1}), gom
}

func TestCreateRejectsDuplicate(t *testing.T) {
	tx, _ := newTestTx()
	ctx := context.Background()

	require.NoError(t, Create(ctx, tx, "coll"))
	require.True(t, apierrors.Is(Create(ctx, tx, "coll"), apierrors.ErrAlreadyExists))
}

func TestDestroyRejectsNonEmpty(t *testing.T) {
	tx, gom := newTestTx()
	ctx := context.Background()

	require.NoError(t, Create(ctx, tx, "coll"))
	require.NoError(t, tx.SubmitTransaction(ctx))

	tx2 := txn.New(gom, gom.NewBatch(), spos.Position{OpSeq: 2})
	_, err := tx2.LookupCachedHeader(ctx, "coll", "obj", true)
	require.NoError(t, err)
	require.NoError(t, tx2.SubmitTransaction(ctx))

	tx3 := txn.New(gom, gom.NewBatch(), spos.Position{OpSeq: 3})
	require.True(t, apierrors.Is(Destroy(ctx, gom, tx3, "coll"), apierrors.ErrNotEmpty))
}

func TestDestroySucceedsWhenMembersMarkedDeleted(t *testing.T) {
	tx, gom := newTestTx()
	ctx := context.Background()

	require.NoError(t, Create(ctx, tx, "coll"))
	h, err := tx.LookupCachedHeader(ctx, "coll", "obj", true)
	require.NoError(t, err)
	require.NoError(t, tx.ClearBuffer(ctx, h))

	require.NoError(t, Destroy(ctx, gom, tx, "coll"))
}

func TestRemoveRecursiveClearsMembersAndCollection(t *testing.T) {
	tx, gom := newTestTx()
	ctx := context.Background()

	require.NoError(t, Create(ctx, tx, "coll"))
	for _, oid := range []objectmap.ObjectID{"a", "b", "c"} {
		_, err := tx.LookupCachedHeader(ctx, "coll", oid, true)
		require.NoError(t, err)
	}
	require.NoError(t, tx.SubmitTransaction(ctx))

	tx2 := txn.New(gom, gom.NewBatch(), spos.Position{OpSeq: 2})
	require.NoError(t, RemoveRecursive(ctx, gom, tx2, "coll"))
	require.NoError(t, tx2.SubmitTransaction(ctx))

	objs, _, err := gom.ListObjects(ctx, "coll", "", 10)
	require.NoError(t, err)
	require.Empty(t, objs)

	_, err = gom.LookupHeader(ctx, objectmap.MetaCollection, objectmap.MetaObject("coll"))
	require.True(t, apierrors.Is(err, apierrors.ErrNotFound))
}

func TestMoveRenameChangesIdentity(t *testing.T) {
	tx, gom := newTestTx()
	ctx := context.Background()

	require.NoError(t, Create(ctx, tx, "coll"))
	require.NoError(t, MoveRename(ctx, tx, "coll", "renamed"))
	require.NoError(t, tx.SubmitTransaction(ctx))

	_, err := gom.LookupHeader(ctx, objectmap.MetaCollection, objectmap.MetaObject("coll"))
	require.True(t, apierrors.Is(err, apierrors.ErrNotFound))

	_, err = gom.LookupHeader(ctx, objectmap.MetaCollection, objectmap.MetaObject("renamed"))
	require.NoError(t, err)
}
