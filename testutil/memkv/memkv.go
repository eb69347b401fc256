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

// Package memkv is an in-memory implementation of kvstore.Store, used by
// package tests across the module so they can exercise real KV semantics
// (column families, prefix iteration, atomic write batches) without a
// cgo/rocksdb build.
package memkv

import (
	"context"
	"sort"
	"sync"

	"github.com/cubefs/objectstore/common/kvstore"
)

var _ kvstore.Store = (*Store)(nil)

type column map[string][]byte

type Store struct {
	mu   sync.RWMutex
	cols map[kvstore.CF]column
}

// New returns an empty in-memory store with the given column families
// already created.
func New(cols ...kvstore.CF) *Store {
	s := &Store{cols: make(map[kvstore.CF]column)}
	for _, c := range cols {
		s.cols[c] = make(column)
	}
	return s
}

func (s *Store) NewSnapshot() kvstore.Snapshot { return noopSnapshot{} }

func (s *Store) CreateColumn(col kvstore.CF) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cols[col]; !ok {
		s.cols[col] = make(column)
	}
	return nil
}

func (s *Store) GetAllColumns() []kvstore.CF {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]kvstore.CF, 0, len(s.cols))
	for c := range s.cols {
		out = append(out, c)
	}
	return out
}

func (s *Store) CheckColumns(col kvstore.CF) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.cols[col]
	return ok
}

func (s *Store) Get(ctx context.Context, col kvstore.CF, key []byte, _ kvstore.ReadOption) (kvstore.ValueGetter, error) {
	raw, err := s.GetRaw(ctx, col, key, nil)
	if err != nil {
		return nil, err
	}
	return valueGetter(raw), nil
}

func (s *Store) GetRaw(ctx context.Context, col kvstore.CF, key []byte, _ kvstore.ReadOption) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cols[col]
	if !ok {
		return nil, kvstore.ErrNotFound
	}
	v, ok := c[string(key)]
	if !ok {
		return nil, kvstore.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *Store) MultiGet(ctx context.Context, col kvstore.CF, keys [][]byte, _ kvstore.ReadOption) ([]kvstore.ValueGetter, error) {
	out := make([]kvstore.ValueGetter, len(keys))
	for i, k := range keys {
		raw, err := s.GetRaw(ctx, col, k, nil)
		if err != nil {
			out[i] = nil
			continue
		}
		out[i] = valueGetter(raw)
	}
	return out, nil
}

func (s *Store) SetRaw(ctx context.Context, col kvstore.CF, key, value []byte, _ kvstore.WriteOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cols[col]
	if !ok {
		c = make(column)
		s.cols[col] = c
	}
	c[string(key)] = append([]byte(nil), value...)
	return nil
}

func (s *Store) Delete(ctx context.Context, col kvstore.CF, key []byte, _ kvstore.WriteOption) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cols[col]; ok {
		delete(c, string(key))
	}
	return nil
}

func (s *Store) List(ctx context.Context, col kvstore.CF, prefix []byte, marker []byte, _ kvstore.ReadOption) kvstore.ListReader {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.cols[col]
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	start := string(prefix)
	if len(marker) > 0 {
		start = string(marker)
	}
	idx := 0
	for idx < len(keys) && keys[idx] < start {
		idx++
	}
	return &listReader{store: s, col: col, keys: keys, idx: idx}
}

func (s *Store) Write(ctx context.Context, batch kvstore.WriteBatch, _ kvstore.WriteOption) error {
	b := batch.(*writeBatch)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range b.ops {
		c, ok := s.cols[op.col]
		if !ok {
			c = make(column)
			s.cols[op.col] = c
		}
		switch op.kind {
		case opPut:
			c[string(op.key)] = append([]byte(nil), op.value...)
		case opDelete:
			delete(c, string(op.key))
		case opDeleteRange:
			for k := range c {
				if k >= string(op.key) && (op.value == nil || k < string(op.value)) {
					delete(c, k)
				}
			}
		}
	}
	return nil
}

func (s *Store) Read(ctx context.Context, cols []kvstore.CF, keys [][]byte, _ kvstore.ReadOption) ([]kvstore.ValueGetter, error) {
	out := make([]kvstore.ValueGetter, len(keys))
	for i := range keys {
		col := cols[0]
		if i < len(cols) {
			col = cols[i]
		}
		raw, err := s.GetRaw(ctx, col, keys[i], nil)
		if err != nil {
			out[i] = nil
			continue
		}
		out[i] = valueGetter(raw)
	}
	return out, nil
}

func (s *Store) GetOptionHelper() kvstore.OptionHelper { return noopOptionHelper{} }
func (s *Store) NewReadOption() kvstore.ReadOption     { return noopReadOption{} }
func (s *Store) NewWriteOption() kvstore.WriteOption   { return noopWriteOption{} }
func (s *Store) NewWriteBatch() kvstore.WriteBatch     { return &writeBatch{} }
func (s *Store) FlushCF(ctx context.Context, col kvstore.CF) error { return nil }
func (s *Store) Stats(ctx context.Context) (kvstore.Stats, error)  { return kvstore.Stats{}, nil }
func (s *Store) Close()                                             {}
