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

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/objectstore/decode"
	apierrors "github.com/cubefs/objectstore/errors"
	"github.com/cubefs/objectstore/objectmap"
	"github.com/cubefs/objectstore/util/limiter"

	"github.com/cubefs/objectstore/testutil/memkv"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	kv := memkv.New(objectmap.AllColumns...)
	s := newFromKV(kv, 2, limiter.LimitConfig{})
	t.Cleanup(func() { s.pipeline.Close() })
	return s
}

func queueAndWait(t *testing.T, s *Store, txs ...decode.Transaction) {
	t.Helper()
	done := make(chan error, 1)
	s.QueueTransactions(nil, txs, nil, func(err error) { done <- err }, nil)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for queued transaction")
	}
}

func TestMkfsAndLockFsid(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Mkfs(dir))
	require.True(t, apierrors.Is(Mkfs(dir), apierrors.ErrAlreadyExists))

	fsid, f, err := lockFsid(dir + "/fsid")
	require.NoError(t, err)
	require.NotEmpty(t, fsid)
	defer f.Close()

	_, _, err = lockFsid(dir + "/fsid")
	require.True(t, apierrors.Is(err, apierrors.ErrBusy))
}

func TestStatExistsRead(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "coll", "obj")
	require.NoError(t, err)
	require.False(t, ok)

	tx := decode.NewBuilder().
		MkColl("coll").
		Write("coll", "obj", 0, []byte("hello world")).
		Build()
	queueAndWait(t, s, tx)

	ok, err = s.Exists(ctx, "coll", "obj")
	require.NoError(t, err)
	require.True(t, ok)

	st, err := s.Stat(ctx, "coll", "obj")
	require.NoError(t, err)
	require.EqualValues(t, 11, st.Size)
	require.EqualValues(t, 1, st.Blocks)

	data, err := s.Read(ctx, "coll", "obj", 0, 11)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), data)
}

func TestFiemapMergesAdjacentStripes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stripSize := objectmap.NewHeader("coll", "obj").StripSize
	payload := make([]byte, stripSize*2)
	tx := decode.NewBuilder().
		MkColl("coll").
		Write("coll", "obj", 0, payload).
		Build()
	queueAndWait(t, s, tx)

	extents, err := s.Fiemap(ctx, "coll", "obj", 0, stripSize*2)
	require.NoError(t, err)
	require.Len(t, extents, 1)
	require.EqualValues(t, 0, extents[0].Offset)
	require.EqualValues(t, stripSize*2, extents[0].Length)
}

func TestAttrsAndOmap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx := decode.NewBuilder().
		MkColl("coll").
		Touch("coll", "obj").
		SetAttr("coll", "obj", "k1", []byte("v1")).
		OmapSetKeys("coll", "obj", map[string][]byte{"a": []byte("1")}).
		OmapSetHeader("coll", "obj", []byte("omap-header")).
		Build()
	queueAndWait(t, s, tx)

	v, err := s.Getattr(ctx, "coll", "obj", "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	keys, err := s.OmapGetKeys(ctx, "coll", "obj")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, keys)

	hdr, err := s.OmapGetHeader(ctx, "coll", "obj")
	require.NoError(t, err)
	require.Equal(t, []byte("omap-header"), hdr)
}

func TestCollectionListing(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tx := decode.NewBuilder().
		MkColl("coll").
		Touch("coll", "a").
		Touch("coll", "b").
		Touch("coll", "c").
		Build()
	queueAndWait(t, s, tx)

	exists, err := s.CollectionExists(ctx, "coll")
	require.NoError(t, err)
	require.True(t, exists)

	empty, err := s.CollectionEmpty(ctx, "coll")
	require.NoError(t, err)
	require.False(t, empty)

	objs, next, err := s.CollectionList(ctx, "coll", "", 2)
	require.NoError(t, err)
	require.Equal(t, []objectmap.ObjectID{"a", "b"}, objs)
	require.Equal(t, objectmap.ObjectID("b"), next)

	all, err := s.CollectionListRange(ctx, "coll", "", "", 1)
	require.NoError(t, err)
	require.Equal(t, []objectmap.ObjectID{"a", "b", "c"}, all)
}

func TestStatfsReportsLimiterStatus(t *testing.T) {
	s := newTestStore(t)
	stats, err := s.Statfs(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, stats.Limiter.ReadRunning)
}
