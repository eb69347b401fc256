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

package pipeline_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cubefs/objectstore/decode"
	"github.com/cubefs/objectstore/objectmap"
	"github.com/cubefs/objectstore/pipeline"
	"github.com/cubefs/objectstore/testutil/memkv"
)

func newPipeline(workers int) (*pipeline.Pipeline, *objectmap.Map) {
	store := memkv.New(objectmap.AllColumns...)
	gom := objectmap.New(store)
	return pipeline.New(gom, workers, nil), gom
}

func waitOn(t *testing.T, c chan error) error {
	select {
	case err := <-c:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion callback")
		return nil
	}
}

func TestSubmitAppliesTransaction(t *testing.T) {
	p, gom := newPipeline(2)
	defer p.Close()

	seq := pipeline.NewOpSequencer()
	txn := decode.NewBuilder().MkColl("coll").Write("coll", "obj", 0, []byte("hello")).Build()

	readable := make(chan error, 1)
	ondisk := make(chan error, 1)
	p.Submit(seq, &pipeline.Op{
		Transactions: []decode.Transaction{txn},
		OnReadable:   func(err error) { readable <- err },
		OnDisk:       func(err error) { ondisk <- err },
	})

	require.NoError(t, waitOn(t, readable))
	require.NoError(t, waitOn(t, ondisk))

	h, err := gom.LookupHeader(context.Background(), "coll", "obj")
	require.NoError(t, err)
	require.EqualValues(t, 5, h.MaxSize)
}

func TestSubmitPreservesPerSequencerOrder(t *testing.T) {
	p, gom := newPipeline(4)
	defer p.Close()

	seq := pipeline.NewOpSequencer()
	const n = 20
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		b := decode.NewBuilder()
		if i == 0 {
			b.MkColl("coll")
		}
		b.Write("coll", "obj", uint64(i), []byte{byte(i)})
		p.Submit(seq, &pipeline.Op{
			Transactions: []decode.Transaction{b.Build()},
			OnReadable:   func(err error) { done <- err },
		})
	}
	for i := 0; i < n; i++ {
		require.NoError(t, waitOn(t, done))
	}

	h, err := gom.LookupHeader(context.Background(), "coll", "obj")
	require.NoError(t, err)
	require.EqualValues(t, n, h.MaxSize)
}

func TestSubmitFinishRejectsOutOfOrder(t *testing.T) {
	m := pipeline.NewSubmitManager()
	op := m.SubmitStart()
	require.Panics(t, func() { m.SubmitFinish(op + 1) })
}
