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

package decode

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
	return txn.New(gom, gom.NewBatch(), spos.Zero), gom
}

func TestApplyWriteAndTruncate(t *testing.T) {
	tx, gom := newTestTx()
	ctx := context.Background()

	txObj := NewBuilder().
		MkColl("coll").
		Write("coll", "obj", 0, []byte("hello world")).
		Truncate("coll", "obj", 5).
		Build()

	require.NoError(t, Apply(ctx, gom, tx, txObj))
	require.NoError(t, tx.SubmitTransaction(ctx))

	h, err := gom.LookupHeader(ctx, "coll", "obj")
	require.NoError(t, err)
	require.EqualValues(t, 5, h.MaxSize)
}

func TestApplyRemoveTolerantOfMissing(t *testing.T) {
	tx, gom := newTestTx()
	ctx := context.Background()

	txObj := NewBuilder().Remove("coll", "missing").Build()
	require.NoError(t, Apply(ctx, gom, tx, txObj))
}

func TestApplyCloneOfMissingSourceIsFatal(t *testing.T) {
	tx, gom := newTestTx()
	ctx := context.Background()

	txObj := NewBuilder().MkColl("coll").Clone("coll", "missing", "dst").Build()
	err := Apply(ctx, gom, tx, txObj)
	require.Error(t, err)
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, OpClone, fe.Op)
}

func TestApplyCollRenameIsUnsupported(t *testing.T) {
	tx, gom := newTestTx()
	ctx := context.Background()

	txObj := NewBuilder().MkColl("coll").CollRename("coll", "newcoll").Build()
	err := Apply(ctx, gom, tx, txObj)
	require.Error(t, err)
	var fe *FatalError
	require.ErrorAs(t, err, &fe)
	require.True(t, apierrors.Is(fe.Err, apierrors.ErrUnsupported))
}

func TestApplyCollAddCopiesIntoDestination(t *testing.T) {
	tx, gom := newTestTx()
	ctx := context.Background()

	txObj := NewBuilder().
		MkColl("src").
		MkColl("dst").
		Write("src", "obj", 0, []byte("payload")).
		CollAdd("dst", "src", "obj").
		Build()
	require.NoError(t, Apply(ctx, gom, tx, txObj))
	require.NoError(t, tx.SubmitTransaction(ctx))

	h, err := gom.LookupHeader(ctx, "dst", "obj")
	require.NoError(t, err)
	require.EqualValues(t, 7, h.MaxSize)

	_, err = gom.LookupHeader(ctx, "src", "obj")
	require.NoError(t, err)
}

func TestApplyCollMoveRenameChangesIdentity(t *testing.T) {
	tx, gom := newTestTx()
	ctx := context.Background()

	txObj := NewBuilder().
		MkColl("src").
		MkColl("dst").
		Touch("src", "obj").
		CollMoveRename("dst", "src", "obj", "newobj").
		Build()
	require.NoError(t, Apply(ctx, gom, tx, txObj))
	require.NoError(t, tx.SubmitTransaction(ctx))

	_, err := gom.LookupHeader(ctx, "src", "obj")
	require.True(t, apierrors.Is(err, apierrors.ErrNotFound))

	_, err = gom.LookupHeader(ctx, "dst", "newobj")
	require.NoError(t, err)
}

func TestApplySplitCollectionIsNoOp(t *testing.T) {
	tx, gom := newTestTx()
	ctx := context.Background()

	txObj := NewBuilder().MkColl("coll").SplitCollection("coll", 2, 1, "dst").Build()
	require.NoError(t, Apply(ctx, gom, tx, txObj))
	require.NoError(t, tx.SubmitTransaction(ctx))

	_, err := gom.LookupHeader(ctx, objectmap.MetaCollection, objectmap.MetaObject("dst"))
	require.True(t, apierrors.Is(err, apierrors.ErrNotFound))
}

func TestApplyOmapSetAndClear(t *testing.T) {
	tx, gom := newTestTx()
	ctx := context.Background()

	txObj := NewBuilder().
		MkColl("coll").
		Touch("coll", "obj").
		OmapSetKeys("coll", "obj", map[string][]byte{"a": []byte("1")}).
		OmapSetHeader("coll", "obj", []byte("hdr")).
		Build()
	require.NoError(t, Apply(ctx, gom, tx, txObj))
	require.NoError(t, tx.SubmitTransaction(ctx))

	h, err := gom.LookupHeader(ctx, "coll", "obj")
	require.NoError(t, err)
	keys, err := gom.GetKeys(ctx, h, objectmap.CFOmap)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, keys)

	tx2 := txn.New(gom, gom.NewBatch(), spos.Position{OpSeq: 1})
	txObj2 := NewBuilder().OmapClear("coll", "obj").Build()
	require.NoError(t, Apply(ctx, gom, tx2, txObj2))
	require.NoError(t, tx2.SubmitTransaction(ctx))

	keys, err = gom.GetKeys(ctx, h, objectmap.CFOmap)
	require.NoError(t, err)
	require.Empty(t, keys)
}
