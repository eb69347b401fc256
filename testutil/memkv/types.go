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

package memkv

import (
	"bytes"
	"io"

	"github.com/cubefs/objectstore/common/kvstore"
)

type valueGetter []byte

func (v valueGetter) Value() []byte { return v }
func (v valueGetter) Read(b []byte) (int, error) {
	return bytes.NewReader(v).Read(b)
}
func (v valueGetter) Size() int { return len(v) }
func (v valueGetter) Close()    {}

var _ io.Reader = valueGetter(nil)

type keyGetter string

func (k keyGetter) Key() []byte { return []byte(k) }
func (k keyGetter) Close()      {}

type listReader struct {
	store *Store
	col   kvstore.CF
	keys  []string
	idx   int
}

func (l *listReader) ReadNext() (kvstore.KeyGetter, kvstore.ValueGetter, error) {
	if l.idx >= len(l.keys) {
		return nil, nil, nil
	}
	k := l.keys[l.idx]
	l.idx++
	l.store.mu.RLock()
	v := l.store.cols[l.col][k]
	l.store.mu.RUnlock()
	return keyGetter(k), valueGetter(append([]byte(nil), v...)), nil
}

func (l *listReader) ReadNextCopy() ([]byte, []byte, error) {
	k, v, err := l.ReadNext()
	if err != nil || k == nil {
		return nil, nil, err
	}
	return k.Key(), v.Value(), nil
}

func (l *listReader) ReadPrev() (kvstore.KeyGetter, kvstore.ValueGetter, error) {
	if l.idx <= 0 {
		return nil, nil, kvstore.ErrNotFound
	}
	l.idx--
	k := l.keys[l.idx]
	l.store.mu.RLock()
	v := l.store.cols[l.col][k]
	l.store.mu.RUnlock()
	return keyGetter(k), valueGetter(append([]byte(nil), v...)), nil
}

func (l *listReader) ReadPrevCopy() ([]byte, []byte, error) {
	k, v, err := l.ReadPrev()
	if err != nil || k == nil {
		return nil, nil, err
	}
	return k.Key(), v.Value(), nil
}

func (l *listReader) ReadLast() (kvstore.KeyGetter, kvstore.ValueGetter, error) {
	if len(l.keys) == 0 {
		return nil, nil, kvstore.ErrNotFound
	}
	l.idx = len(l.keys) - 1
	return l.ReadNext()
}

func (l *listReader) SeekToLast() { l.idx = len(l.keys) - 1 }

func (l *listReader) SeekForPrev(key []byte) error {
	i := 0
	for i < len(l.keys) && l.keys[i] <= string(key) {
		i++
	}
	l.idx = i - 1
	return nil
}

func (l *listReader) SeekTo(key []byte) {
	i := 0
	for i < len(l.keys) && l.keys[i] < string(key) {
		i++
	}
	l.idx = i
}

func (l *listReader) SetFilterKey(key []byte) {}

func (l *listReader) Close() {}

const (
	opPut = iota
	opDelete
	opDeleteRange
)

type writeOp struct {
	kind  int
	col   kvstore.CF
	key   []byte
	value []byte
}

type writeBatch struct {
	ops []writeOp
}

func (b *writeBatch) Put(col kvstore.CF, key, value []byte) {
	b.ops = append(b.ops, writeOp{kind: opPut, col: col, key: key, value: value})
}

func (b *writeBatch) Delete(col kvstore.CF, key []byte) {
	b.ops = append(b.ops, writeOp{kind: opDelete, col: col, key: key})
}

func (b *writeBatch) DeleteRange(col kvstore.CF, startKey, endKey []byte) {
	b.ops = append(b.ops, writeOp{kind: opDeleteRange, col: col, key: startKey, value: endKey})
}

func (b *writeBatch) Data() []byte    { return nil }
func (b *writeBatch) From(data []byte) {}
func (b *writeBatch) Close()          {}

type noopSnapshot struct{}

func (noopSnapshot) Close() {}

type noopReadOption struct{}

func (noopReadOption) SetSnapShot(kvstore.Snapshot) {}
func (noopReadOption) Close()                       {}

type noopWriteOption struct{}

func (noopWriteOption) SetSync(bool)      {}
func (noopWriteOption) DisableWAL(bool)   {}
func (noopWriteOption) Close()            {}

type noopOptionHelper struct{}

func (noopOptionHelper) GetOption() kvstore.Option                               { return kvstore.Option{} }
func (noopOptionHelper) SetMaxBackgroundJobs(int) error                          { return nil }
func (noopOptionHelper) SetMaxBackgroundCompactions(int) error                   { return nil }
func (noopOptionHelper) SetMaxSubCompactions(int) error                          { return nil }
func (noopOptionHelper) SetMaxOpenFiles(int) error                               { return nil }
func (noopOptionHelper) SetMaxWriteBufferNumber(int) error                       { return nil }
func (noopOptionHelper) SetWriteBufferSize(int) error                            { return nil }
func (noopOptionHelper) SetArenaBlockSize(int) error                             { return nil }
func (noopOptionHelper) SetTargetFileSizeBase(uint64) error                      { return nil }
func (noopOptionHelper) SetMaxBytesForLevelBase(uint64) error                    { return nil }
func (noopOptionHelper) SetLevel0SlowdownWritesTrigger(int) error                { return nil }
func (noopOptionHelper) SetLevel0StopWritesTrigger(int) error                    { return nil }
func (noopOptionHelper) SetSoftPendingCompactionBytesLimit(uint64) error         { return nil }
func (noopOptionHelper) SetHardPendingCompactionBytesLimit(uint64) error         { return nil }
func (noopOptionHelper) SetBlockSize(int) error                                  { return nil }
func (noopOptionHelper) SetFIFOCompactionMaxTableFileSize(int) error             { return nil }
func (noopOptionHelper) SetFIFOCompactionAllow(bool) error                       { return nil }
func (noopOptionHelper) SetIOWriteRateLimiter(int64) error                       { return nil }
