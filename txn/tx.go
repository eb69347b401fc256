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

// Package txn implements the buffered transaction: the op-scoped
// write-through cache of headers and stripe/attr/omap buffers that lets one
// worker replay a whole transaction list without re-reading its own writes
// from the KV backend, then commits everything as one backend write batch.
package txn

import (
	"context"
	"strings"

	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/cubefs/objectstore/common/kvstore"
	apierrors "github.com/cubefs/objectstore/errors"
	"github.com/cubefs/objectstore/objectmap"
	"github.com/cubefs/objectstore/spos"
)

// cachedHeader is the BT-local view of a header: the persisted fields plus
// the deleted tombstone the spec describes as meaningful only inside a BT.
type cachedHeader struct {
	header  *objectmap.Header
	deleted bool
}

func headerKey(cid objectmap.CollectionID, oid objectmap.ObjectID) string {
	return string(cid) + "\x00" + string(oid)
}

// Tx is one buffered transaction: everything a worker needs to replay a
// pipeline op's transaction list and commit it atomically.
type Tx struct {
	Spos spos.Position

	gom   *objectmap.Map
	batch kvstore.WriteBatch

	order   []string
	headers map[string]*cachedHeader
	buffers map[string][]byte
}

// New returns a Tx bound to gom and batch, starting at spos. spos is the
// position the decoder will advance as it walks the op's transaction list.
func New(gom *objectmap.Map, batch kvstore.WriteBatch, start spos.Position) *Tx {
	return &Tx{
		Spos:    start,
		gom:     gom,
		batch:   batch,
		headers: make(map[string]*cachedHeader),
		buffers: make(map[string][]byte),
	}
}

// LookupCachedHeader returns the cached header for (cid, oid), populating
// the cache from the GOM on first touch within this Tx. Every subsequent
// call for the same (cid, oid) within this Tx returns the same instance.
func (t *Tx) LookupCachedHeader(ctx context.Context, cid objectmap.CollectionID, oid objectmap.ObjectID, createIfMissing bool) (*objectmap.Header, error) {
	k := headerKey(cid, oid)
	if c, ok := t.headers[k]; ok {
		if c.deleted {
			return nil, apierrors.ErrNotFound
		}
		return c.header, nil
	}

	var h *objectmap.Header
	var err error
	if createIfMissing {
		h, err = t.gom.LookupCreateHeader(ctx, cid, oid, t.batch)
	} else {
		h, err = t.gom.LookupHeader(ctx, cid, oid)
	}
	if err != nil {
		return nil, err
	}
	t.insert(k, &cachedHeader{header: h})
	return h, nil
}

func (t *Tx) insert(k string, c *cachedHeader) {
	if _, exists := t.headers[k]; !exists {
		t.order = append(t.order, k)
	}
	t.headers[k] = c
}

// DeletedCountInCollection returns how many headers cached in this Tx under
// cid are currently marked deleted, used by collection-destroy's emptiness
// check.
func (t *Tx) DeletedCountInCollection(cid objectmap.CollectionID) int {
	n := 0
	for _, c := range t.headers {
		if c.deleted && c.header.CID == cid {
			n++
		}
	}
	return n
}

// IsDeleted reports whether (cid, oid) is cached in this Tx and marked
// deleted.
func (t *Tx) IsDeleted(cid objectmap.CollectionID, oid objectmap.ObjectID) bool {
	c, ok := t.headers[headerKey(cid, oid)]
	return ok && c.deleted
}

// CheckSpos reports whether header's recorded position already covers
// candidate, in which case the caller must skip the mutation: it is a
// duplicate delivery under replay.
func (t *Tx) CheckSpos(header *objectmap.Header, candidate spos.Position) bool {
	return header.Spos.GreaterEqual(candidate)
}

func bufferKey(cf kvstore.CF, header *objectmap.Header, key string) string {
	return string(cf) + "\x00" + string(header.Prefix) + "\x00" + key
}

// SetBufferKeys stages values into cf under header, both into the pending
// write batch and into this Tx's buffer cache, so a later read within the
// same Tx observes them without a KV round trip.
func (t *Tx) SetBufferKeys(ctx context.Context, cf kvstore.CF, header *objectmap.Header, values map[string][]byte) error {
	if err := t.gom.SetKeys(ctx, header, cf, values, t.batch); err != nil {
		return err
	}
	for k, v := range values {
		t.buffers[bufferKey(cf, header, k)] = v
	}
	return nil
}

// RemoveBufferKeys stages the removal of keys from cf under header.
func (t *Tx) RemoveBufferKeys(ctx context.Context, cf kvstore.CF, header *objectmap.Header, keys []string) error {
	if err := t.gom.RmKeys(ctx, header, cf, keys, t.batch); err != nil {
		return err
	}
	for _, k := range keys {
		delete(t.buffers, bufferKey(cf, header, k))
	}
	return nil
}

// GetBufferedValue returns the value for key in cf under header, preferring
// this Tx's own uncommitted writes over the backend.
func (t *Tx) GetBufferedValue(ctx context.Context, cf kvstore.CF, header *objectmap.Header, key string) ([]byte, bool, error) {
	if v, ok := t.buffers[bufferKey(cf, header, key)]; ok {
		return v, true, nil
	}
	values, err := t.gom.GetValues(ctx, header, cf, []string{key})
	if err != nil {
		return nil, false, err
	}
	v, ok := values[key]
	return v, ok, nil
}

// RemoveBufferKeyRange stages the removal of every key in [start, end) from
// cf under header, and drops this Tx's buffer cache for that cf/header
// pair wholesale since the exact set of removed keys is not enumerated.
func (t *Tx) RemoveBufferKeyRange(ctx context.Context, cf kvstore.CF, header *objectmap.Header, start, end string) error {
	if err := t.gom.RmKeyRange(ctx, header, cf, start, end, t.batch); err != nil {
		return err
	}
	needle := string(cf) + "\x00" + string(header.Prefix) + "\x00"
	for key := range t.buffers {
		if strings.HasPrefix(key, needle) {
			delete(t.buffers, key)
		}
	}
	return nil
}

// ClearBufferKeys drops the cached buffer entries for keys of header in cf,
// for keys erased out-of-band, so a stale cache entry cannot be observed
// afterward. It stages nothing into the write batch.
func (t *Tx) ClearBufferKeys(header *objectmap.Header, cf kvstore.CF, keys []string) {
	for _, k := range keys {
		delete(t.buffers, bufferKey(cf, header, k))
	}
}

// ClearBuffer marks header deleted within this Tx and stages the erasure of
// every KV entry scoped to it. It is idempotent: calling it twice for the
// same header issues the clear only once.
func (t *Tx) ClearBuffer(ctx context.Context, header *objectmap.Header) error {
	k := headerKey(header.CID, header.OID)
	if c, ok := t.headers[k]; ok && c.deleted {
		return nil
	}
	if err := t.gom.Clear(ctx, header, false, t.batch); err != nil {
		return err
	}
	t.insert(k, &cachedHeader{header: header, deleted: true})
	prefix := string(header.Prefix)
	for key := range t.buffers {
		if strings.Contains(key, "\x00"+prefix+"\x00") {
			delete(t.buffers, key)
		}
	}
	return nil
}

// CloneBuffer stages a clone of oldHeader into (cid, newOid), pre-erasing
// any cached entry under the destination identity to avoid aliasing a
// stale instance, then replaces the source's cache entry with the refreshed
// post-clone origin and inserts the new target. It fails with
// ErrAlreadyExists when (cid, newOid) already has a live header.
func (t *Tx) CloneBuffer(ctx context.Context, oldHeader *objectmap.Header, cid objectmap.CollectionID, newOid objectmap.ObjectID) (*objectmap.Header, *objectmap.Header, error) {
	if _, err := t.LookupCachedHeader(ctx, cid, newOid, false); err == nil {
		return nil, nil, apierrors.ErrAlreadyExists
	} else if !apierrors.Is(err, apierrors.ErrNotFound) {
		return nil, nil, err
	}
	destKey := headerKey(cid, newOid)
	delete(t.headers, destKey)

	origin, target, err := t.gom.Clone(ctx, oldHeader, cid, newOid, t.batch)
	if err != nil {
		return nil, nil, err
	}
	t.insert(headerKey(origin.CID, origin.OID), &cachedHeader{header: origin})
	t.insert(destKey, &cachedHeader{header: target})
	return origin, target, nil
}

// RenameBuffer stages a rename of header to (cid, newOid) at position
// current, erasing the old cache entry and inserting the renamed header
// under the new identity with its Spos advanced.
func (t *Tx) RenameBuffer(ctx context.Context, header *objectmap.Header, cid objectmap.CollectionID, newOid objectmap.ObjectID, current spos.Position) (*objectmap.Header, error) {
	oldKey := headerKey(header.CID, header.OID)
	renamed, err := t.gom.Rename(ctx, header, cid, newOid, t.batch)
	if err != nil {
		return nil, err
	}
	renamed.Spos = current
	t.insert(oldKey, &cachedHeader{header: header, deleted: true})
	t.insert(headerKey(cid, newOid), &cachedHeader{header: renamed})
	return renamed, nil
}

// SubmitTransaction flushes every non-deleted, non-stale header in this
// Tx's cache to the write batch in insertion order, then submits the batch
// to the backend regardless of whether any individual save failed: already
// staged KV mutations for other headers must still make progress.
func (t *Tx) SubmitTransaction(ctx context.Context) error {
	var saveErr error
	for _, k := range t.order {
		c := t.headers[k]
		if c.deleted {
			continue
		}
		if t.CheckSpos(c.header, t.Spos) {
			continue
		}
		c.header.Spos = t.Spos
		if err := t.gom.SetHeader(ctx, c.header, t.batch); err != nil {
			log.Error("txn: save_strip_header failed", "key", k, "err", err)
			if saveErr == nil {
				saveErr = err
			}
		}
	}
	if err := t.gom.SubmitTransaction(ctx, t.batch); err != nil {
		return err
	}
	return saveErr
}
