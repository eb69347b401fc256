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

package strip_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/objectstore/objectmap"
	"github.com/cubefs/objectstore/spos"
	"github.com/cubefs/objectstore/strip"
	"github.com/cubefs/objectstore/testutil/memkv"
	"github.com/cubefs/objectstore/txn"
)

func newTx() (*objectmap.Map, *memkv.Store, *txn.Tx) {
	store := memkv.New(objectmap.AllColumns...)
	gom := objectmap.New(store)
	tx := txn.New(gom, store.NewWriteBatch(), spos.Position{OpSeq: 1})
	return gom, store, tx
}

func header(ctx context.Context, t *testing.T, tx *txn.Tx, oid objectmap.ObjectID) *objectmap.Header {
	h, err := tx.LookupCachedHeader(ctx, "c1", oid, true)
	require.NoError(t, err)
	h.StripSize = 4
	return h
}

// Boundary scenario 1 from the testable-properties list.
func TestWriteThenReadWholeStripe(t *testing.T) {
	ctx := context.Background()
	_, _, tx := newTx()
	h := header(ctx, t, tx, "o1")

	require.NoError(t, strip.Write(ctx, tx, h, 0, []byte("AAAA")))
	data, err := strip.Read(ctx, tx, h, 0, 4)
	require.NoError(t, err)
	require.Equal(t, "AAAA", string(data))
	require.True(t, h.Bits.Get(0))
	require.Equal(t, uint64(4), h.MaxSize)
}

// Boundary scenario 2: partial write into a fresh object zero-fills the
// untouched prefix of the stripe.
func TestWritePartialIntoFreshStripe(t *testing.T) {
	ctx := context.Background()
	_, _, tx := newTx()
	h := header(ctx, t, tx, "o1")

	require.NoError(t, strip.Write(ctx, tx, h, 2, []byte("BB")))
	data, err := strip.Read(ctx, tx, h, 0, 4)
	require.NoError(t, err)
	require.Equal(t, "\x00\x00BB", string(data))
}

// Boundary scenario 3: a write past a hole leaves the hole reading as zero.
func TestWriteLeavesGapAsZero(t *testing.T) {
	ctx := context.Background()
	_, _, tx := newTx()
	h := header(ctx, t, tx, "o1")

	require.NoError(t, strip.Write(ctx, tx, h, 0, []byte("AAAA")))
	require.NoError(t, strip.Write(ctx, tx, h, 6, []byte("CC")))

	data, err := strip.Read(ctx, tx, h, 0, 8)
	require.NoError(t, err)
	require.Equal(t, "AAAA\x00\x00CC", string(data))
	require.Equal(t, uint64(8), h.MaxSize)
}

// Boundary scenario 4: shrinking truncate keeps the partial boundary
// stripe and erases fully-removed stripes.
func TestTruncateShrinkKeepsBoundaryStripe(t *testing.T) {
	ctx := context.Background()
	_, _, tx := newTx()
	h := header(ctx, t, tx, "o1")

	require.NoError(t, strip.Write(ctx, tx, h, 0, []byte("AAAABBBB")))
	require.NoError(t, strip.Truncate(ctx, tx, h, 3))

	require.Equal(t, uint64(3), h.MaxSize)
	data, err := strip.Read(ctx, tx, h, 0, 3)
	require.NoError(t, err)
	require.Equal(t, "AAA", string(data))
	require.False(t, h.Bits.Get(1))
	require.True(t, h.Bits.Get(0))
}

// Boundary scenario 5: clone isolation.
func TestCloneIsolation(t *testing.T) {
	ctx := context.Background()
	_, store, tx := newTx()
	h := header(ctx, t, tx, "src")
	require.NoError(t, strip.Write(ctx, tx, h, 0, []byte("AAAA")))
	require.NoError(t, tx.SubmitTransaction(ctx))

	tx2 := txn.New(objectmap.New(store), store.NewWriteBatch(), spos.Position{OpSeq: 2})
	src, err := tx2.LookupCachedHeader(ctx, "c1", "src", false)
	require.NoError(t, err)
	_, dst, err := strip.Clone(ctx, tx2, src, "c1", "dst")
	require.NoError(t, err)
	require.NoError(t, strip.Write(ctx, tx2, dst, 0, []byte("XXXX")))
	require.NoError(t, tx2.SubmitTransaction(ctx))

	srcData, err := strip.Read(ctx, tx2, src, 0, 4)
	require.NoError(t, err)
	require.Equal(t, "AAAA", string(srcData))

	dstData, err := strip.Read(ctx, tx2, dst, 0, 4)
	require.NoError(t, err)
	require.Equal(t, "XXXX", string(dstData))
}
