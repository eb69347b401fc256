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

package objectmap

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/cubefs/objectstore/common/kvstore"
	apierrors "github.com/cubefs/objectstore/errors"
)

// Map is the Generic Object Map: the external-collaborator contract the
// core's buffered-transaction and sequencer layers use to look up, create,
// clone and rename per-object headers. It owns no locking beyond what is
// needed to make its own calls safe to use concurrently; ordering guarantees
// for a given object's mutations are the caller's responsibility.
type Map struct {
	store kvstore.Store
	inUse *inUse

	// lookupGroup collapses concurrent LookupHeader calls for the same
	// (cid, oid) into one backend read, which matters on the cold path
	// where many goroutines can race to first-touch the same object.
	lookupGroup singleflight.Group
}

// New wraps store as a Map. store must already have every CF in AllColumns
// created; callers typically do this once at mkfs/mount time.
func New(store kvstore.Store) *Map {
	return &Map{store: store, inUse: newInUse()}
}

// NewBatch returns a fresh write batch against the backing store, for a
// caller building up one buffered transaction's worth of mutations before
// calling SubmitTransaction.
func (m *Map) NewBatch() kvstore.WriteBatch {
	return m.store.NewWriteBatch()
}

func (m *Map) groupKey(cid CollectionID, oid ObjectID) string {
	return string(cid) + "\x00" + string(oid)
}

// LookupHeader returns the header for (cid, oid), or ErrNotFound if no such
// object exists.
func (m *Map) LookupHeader(ctx context.Context, cid CollectionID, oid ObjectID) (*Header, error) {
	key := EncodeKey(cid, oid)
	v, err, _ := m.lookupGroup.Do(m.groupKey(cid, oid), func() (interface{}, error) {
		raw, err := m.store.GetRaw(ctx, CFHeaders, key, nil)
		if err != nil {
			if apierrors.Is(err, kvstore.ErrNotFound) {
				return nil, apierrors.ErrNotFound
			}
			return nil, err
		}
		h := &Header{CID: cid, OID: oid, Prefix: key}
		if uerr := h.Unmarshal(raw); uerr != nil {
			return nil, uerr
		}
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Header).Clone(), nil
}

// LookupCreateHeader returns the existing header for (cid, oid), or stages
// the creation of a fresh one in batch if none exists yet. The returned
// header is always safe for the caller to mutate and pass back to SetHeader.
func (m *Map) LookupCreateHeader(ctx context.Context, cid CollectionID, oid ObjectID, batch kvstore.WriteBatch) (*Header, error) {
	h, err := m.LookupHeader(ctx, cid, oid)
	if err == nil {
		return h, nil
	}
	if !apierrors.Is(err, apierrors.ErrNotFound) {
		return nil, err
	}
	h = NewHeader(cid, oid)
	if batch != nil {
		batch.Put(CFHeaders, h.Prefix, h.Marshal())
	}
	return h, nil
}

// SetHeader stages the write of header's current contents into batch.
func (m *Map) SetHeader(ctx context.Context, header *Header, batch kvstore.WriteBatch) error {
	batch.Put(CFHeaders, header.Prefix, header.Marshal())
	return nil
}

// prefixUpperBound returns the first key that sorts strictly after every key
// with prefix p, for use as the exclusive end of a DeleteRange covering all
// of p's sub-namespace. p must not consist entirely of 0xff bytes; object
// prefixes are length-prefixed segments so this never occurs in practice.
func prefixUpperBound(p []byte) []byte {
	end := append([]byte(nil), p...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xff {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}

// Clear erases header's row and every entry in CFStrip, CFXattr, CFOmap and
// CFOmapHeader scoped to header's prefix, staging all of it into batch. It
// does not erase the CFHeaders row itself when keep is true, which callers
// use for truncate-to-zero style resets that must keep the object existing.
func (m *Map) Clear(ctx context.Context, header *Header, keep bool, batch kvstore.WriteBatch) error {
	upper := prefixUpperBound(header.Prefix)
	for _, cf := range []kvstore.CF{CFStrip, CFXattr, CFOmap, CFOmapHeader} {
		batch.DeleteRange(cf, header.Prefix, upper)
	}
	if !keep {
		batch.Delete(CFHeaders, header.Prefix)
	}
	return nil
}

// subKey concatenates header's prefix with key raw, with no length prefix on
// key: unlike EncodeKey, key here is always the last component of the KV
// key for this (header, cf) pair, so there is nothing after it that a
// variable length could alias against. Leaving it unprefixed is what keeps
// lexicographic scans over user keys (omap range queries) matching the
// caller's own string ordering.
func subKey(header *Header, key string) []byte {
	buf := make([]byte, len(header.Prefix)+len(key))
	copy(buf, header.Prefix)
	copy(buf[len(header.Prefix):], key)
	return buf
}

// GetValues returns the values for the given keys in cf, scoped to header.
// Keys with no entry are simply absent from the result, matching the
// tolerant-of-missing-keys contract used by attribute and omap reads.
func (m *Map) GetValues(ctx context.Context, header *Header, cf kvstore.CF, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		raw, err := m.store.GetRaw(ctx, cf, subKey(header, k), nil)
		if err != nil {
			if apierrors.Is(err, kvstore.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out[k] = raw
	}
	return out, nil
}

// SetKeys stages values into cf under header, one Put per key.
func (m *Map) SetKeys(ctx context.Context, header *Header, cf kvstore.CF, values map[string][]byte, batch kvstore.WriteBatch) error {
	for k, v := range values {
		batch.Put(cf, subKey(header, k), v)
	}
	return nil
}

// RmKeys stages the removal of keys from cf under header. Missing keys are
// not an error: removing an attribute or omap key that is already absent is
// a no-op, matching the decoder's NotFound-tolerant policy for remove-like
// ops.
func (m *Map) RmKeys(ctx context.Context, header *Header, cf kvstore.CF, keys []string, batch kvstore.WriteBatch) error {
	for _, k := range keys {
		batch.Delete(cf, subKey(header, k))
	}
	return nil
}

// RmKeyRange stages the removal of every key in [start, end) from cf under
// header.
func (m *Map) RmKeyRange(ctx context.Context, header *Header, cf kvstore.CF, start, end string, batch kvstore.WriteBatch) error {
	batch.DeleteRange(cf, subKey(header, start), subKey(header, end))
	return nil
}

// GetKeys lists every key present in cf under header.
func (m *Map) GetKeys(ctx context.Context, header *Header, cf kvstore.CF) ([]string, error) {
	values, err := m.Get(ctx, header, cf)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	return keys, nil
}

// Get returns every key/value pair present in cf under header.
func (m *Map) Get(ctx context.Context, header *Header, cf kvstore.CF) (map[string][]byte, error) {
	out := make(map[string][]byte)
	upper := prefixUpperBound(header.Prefix)
	lr := m.store.List(ctx, cf, header.Prefix, nil, nil)
	defer lr.Close()
	for {
		key, value, err := lr.ReadNextCopy()
		if err != nil || key == nil {
			break
		}
		if upper != nil && string(key) >= string(upper) {
			break
		}
		k := string(key[len(header.Prefix):])
		out[k] = value
	}
	return out, nil
}

// CheckKeys reports which of keys are present in cf under header.
func (m *Map) CheckKeys(ctx context.Context, header *Header, cf kvstore.CF, keys []string) ([]string, error) {
	present := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, err := m.store.GetRaw(ctx, cf, subKey(header, k), nil); err == nil {
			present = append(present, k)
		} else if !apierrors.Is(err, kvstore.ErrNotFound) {
			return nil, err
		}
	}
	return present, nil
}

// CopyObjectData copies every entry under src's prefix in CFStrip, CFXattr,
// CFOmap and CFOmapHeader to the same relative keys under dst's prefix,
// staging the writes into batch. This is logical duplication by value, not
// copy-on-write: the contract visible to callers (independent objects after
// the operation completes) is the same either way, and a plain copy keeps
// the buffered-transaction and GOM layers free of shared-storage bookkeeping.
func (m *Map) CopyObjectData(ctx context.Context, src, dst *Header, batch kvstore.WriteBatch) error {
	for _, cf := range []kvstore.CF{CFStrip, CFXattr, CFOmap, CFOmapHeader} {
		values, err := m.Get(ctx, src, cf)
		if err != nil {
			return err
		}
		for k, v := range values {
			batch.Put(cf, subKey(dst, k), v)
		}
	}
	return nil
}

// Clone duplicates origin's data into a new object (cid, oid), returning the
// refreshed origin header and the new object's header. The in-use guard
// blocks a second concurrent clone/rename of the same origin; it does not
// block an ordinary write racing in from outside this Map instance, which
// callers must still serialize at collection granularity.
func (m *Map) Clone(ctx context.Context, origin *Header, cid CollectionID, oid ObjectID, batch kvstore.WriteBatch) (*Header, *Header, error) {
	if !m.inUse.TryAcquire(origin.CID, origin.OID) {
		return nil, nil, apierrors.ErrBusy
	}
	defer m.inUse.Release(origin.CID, origin.OID)

	target := NewHeader(cid, oid)
	target.StripSize = origin.StripSize
	target.MaxSize = origin.MaxSize
	target.Bits = append(Bitmap(nil), origin.Bits...)
	target.Spos = origin.Spos

	if err := m.CopyObjectData(ctx, origin, target, batch); err != nil {
		return nil, nil, err
	}
	if err := m.SetHeader(ctx, target, batch); err != nil {
		return nil, nil, err
	}
	return origin, target, nil
}

// Rename moves header from its current (cid, oid) identity to a new one:
// the data is copied under the new prefix and the old prefix's rows are
// cleared. Rename only ever targets an identity with no existing header;
// the caller is expected to have already checked for a conflicting
// destination before calling this.
func (m *Map) Rename(ctx context.Context, header *Header, cid CollectionID, oid ObjectID, batch kvstore.WriteBatch) (*Header, error) {
	if !m.inUse.TryAcquire(header.CID, header.OID) {
		return nil, apierrors.ErrBusy
	}
	defer m.inUse.Release(header.CID, header.OID)

	renamed := NewHeader(cid, oid)
	renamed.StripSize = header.StripSize
	renamed.MaxSize = header.MaxSize
	renamed.Bits = append(Bitmap(nil), header.Bits...)
	renamed.Spos = header.Spos

	if err := m.CopyObjectData(ctx, header, renamed, batch); err != nil {
		return nil, err
	}
	if err := m.Clear(ctx, header, false, batch); err != nil {
		return nil, err
	}
	if err := m.SetHeader(ctx, renamed, batch); err != nil {
		return nil, err
	}
	return renamed, nil
}

// ListObjects returns up to max object ids in cid starting at start
// (exclusive, use "" for the beginning), in ascending key order (shorter oids
// first, equal-length oids bytewise), plus the last returned oid to pass as
// start on the next call, or "" if the listing is exhausted.
func (m *Map) ListObjects(ctx context.Context, cid CollectionID, start ObjectID, max int) ([]ObjectID, ObjectID, error) {
	prefix := EncodeCID(cid)
	var marker []byte
	if start != "" {
		marker = EncodeKey(cid, start)
	}
	lr := m.store.List(ctx, CFHeaders, prefix, marker, nil)
	defer lr.Close()

	upper := prefixUpperBound(prefix)
	objs := make([]ObjectID, 0, max)
	var next ObjectID
	for len(objs) < max {
		key, _, err := lr.ReadNextCopy()
		if err != nil || key == nil {
			break
		}
		if upper != nil && string(key) >= string(upper) {
			break
		}
		_, oid := DecodeKey(key)
		if oid == start {
			continue
		}
		objs = append(objs, oid)
	}
	if len(objs) == max && max > 0 {
		key, _, err := lr.ReadNextCopy()
		if err == nil && key != nil && (upper == nil || string(key) < string(upper)) {
			next = objs[len(objs)-1]
		}
	}
	return objs, next, nil
}

// Iterator walks a cf's sub-namespace under a header in key order.
type Iterator struct {
	lr     kvstore.ListReader
	prefix []byte
	upper  []byte
	key    string
	value  []byte
	err    error
	done   bool
}

// GetIterator returns an Iterator over cf scoped to header, positioned
// before the first entry; call Next to advance.
func (m *Map) GetIterator(ctx context.Context, header *Header, cf kvstore.CF) *Iterator {
	return &Iterator{
		lr:     m.store.List(ctx, cf, header.Prefix, nil, nil),
		prefix: header.Prefix,
		upper:  prefixUpperBound(header.Prefix),
	}
}

// Next advances the iterator, returning false once exhausted or on error.
// Check Err after Next returns false to distinguish the two.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	key, value, err := it.lr.ReadNextCopy()
	if err != nil || key == nil {
		it.done = true
		it.err = err
		return false
	}
	if it.upper != nil && string(key) >= string(it.upper) {
		it.done = true
		return false
	}
	k := string(key[len(it.prefix):])
	it.key, it.value = k, value
	return true
}

// Key returns the sub-key of the entry the last call to Next positioned on.
func (it *Iterator) Key() string { return it.key }

// Value returns the value of the entry the last call to Next positioned on.
func (it *Iterator) Value() []byte { return it.value }

// Err returns the error, if any, that ended iteration.
func (it *Iterator) Err() error { return it.err }

// Close releases the iterator's backend resources.
func (it *Iterator) Close() { it.lr.Close() }

// SubmitTransaction hands batch to the backend as a single atomic write.
// This is the point at which a buffered transaction's staged mutations
// become durable, or fail as a unit.
func (m *Map) SubmitTransaction(ctx context.Context, batch kvstore.WriteBatch) error {
	if err := m.store.Write(ctx, batch, nil); err != nil {
		return fmt.Errorf("objectmap: submit transaction: %w", err)
	}
	return nil
}
