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
	"bytes"
	"context"

	apierrors "github.com/cubefs/objectstore/errors"
	"github.com/cubefs/objectstore/metrics"
	"github.com/cubefs/objectstore/objectmap"
	"github.com/cubefs/objectstore/spos"
	"github.com/cubefs/objectstore/strip"
	"github.com/cubefs/objectstore/txn"
)

// readTx returns a Tx suitable for pure reads: its write batch is never
// dereferenced because none of the read-side strip/objectmap helpers stage
// a mutation into it.
func readTx(gom *objectmap.Map) *txn.Tx {
	return txn.New(gom, nil, spos.Zero)
}

// Stat mirrors the classic stat(2) fields a caller expects from an object:
// its logical size, the stripe width backing it, and the stripe count.
type Stat struct {
	Size    uint64
	Blksize uint64
	Blocks  uint64
	Nlink   uint32
}

// FiemapExtent is one contiguous materialized run within a fiemap query
// range; holes are omitted rather than reported with a zero-fill marker.
type FiemapExtent struct {
	Offset uint64
	Length uint64
}

// Exists reports whether (cid, oid) currently has a header.
func (s *Store) Exists(ctx context.Context, cid objectmap.CollectionID, oid objectmap.ObjectID) (bool, error) {
	_, err := s.gom.LookupHeader(ctx, cid, oid)
	if apierrors.Is(err, apierrors.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Stat returns size/stripe-geometry information for (cid, oid).
func (s *Store) Stat(ctx context.Context, cid objectmap.CollectionID, oid objectmap.ObjectID) (Stat, error) {
	h, err := s.gom.LookupHeader(ctx, cid, oid)
	if err != nil {
		return Stat{}, err
	}
	blocks := h.MaxSize / h.StripSize
	if h.MaxSize%h.StripSize != 0 {
		blocks++
	}
	return Stat{
		Size:    h.MaxSize,
		Blksize: h.StripSize,
		Blocks:  blocks,
		Nlink:   1,
	}, nil
}

// Read returns up to length bytes of (cid, oid)'s data starting at offset,
// rate-limited against the store's configured read bandwidth.
func (s *Store) Read(ctx context.Context, cid objectmap.CollectionID, oid objectmap.ObjectID, offset, length uint64) ([]byte, error) {
	if err := s.limiter.AcquireRead(); err != nil {
		return nil, err
	}
	defer s.limiter.ReleaseRead()

	h, err := s.gom.LookupHeader(ctx, cid, oid)
	if err != nil {
		return nil, err
	}
	data, err := strip.Read(ctx, readTx(s.gom), h, offset, length)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if rr := s.limiter.Reader(ctx, bytes.NewReader(nil)); rr != nil {
			_ = rr.WaitN(len(data))
		}
		metrics.KVReadBytes.Add(float64(len(data)))
	}
	return data, nil
}

// Fiemap reports the materialized-stripe extents of (cid, oid) intersecting
// [offset, offset+length), merging adjacent stripes into one extent.
func (s *Store) Fiemap(ctx context.Context, cid objectmap.CollectionID, oid objectmap.ObjectID, offset, length uint64) ([]FiemapExtent, error) {
	h, err := s.gom.LookupHeader(ctx, cid, oid)
	if err != nil {
		return nil, err
	}
	if offset > h.MaxSize {
		return nil, apierrors.ErrInvalidArgument
	}
	end := offset + length
	if length == 0 || end > h.MaxSize {
		end = h.MaxSize
	}
	if end <= offset {
		return nil, nil
	}

	var extents []FiemapExtent
	startStripe := offset / h.StripSize
	endStripe := (end - 1) / h.StripSize
	for n := startStripe; n <= endStripe; n++ {
		if !h.Bits.Get(int(n)) {
			continue
		}
		stripeStart := n * h.StripSize
		stripeEnd := stripeStart + h.StripSize
		segStart := maxU64(stripeStart, offset)
		segEnd := minU64(stripeEnd, end)
		if l := len(extents); l > 0 && extents[l-1].Offset+extents[l-1].Length == segStart {
			extents[l-1].Length += segEnd - segStart
			continue
		}
		extents = append(extents, FiemapExtent{Offset: segStart, Length: segEnd - segStart})
	}
	return extents, nil
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// Getattr returns the value of a single extended attribute.
func (s *Store) Getattr(ctx context.Context, cid objectmap.CollectionID, oid objectmap.ObjectID, key string) ([]byte, error) {
	h, err := s.gom.LookupHeader(ctx, cid, oid)
	if err != nil {
		return nil, err
	}
	values, err := s.gom.GetValues(ctx, h, objectmap.CFXattr, []string{key})
	if err != nil {
		return nil, err
	}
	v, ok := values[key]
	if !ok {
		return nil, apierrors.ErrNoData
	}
	return v, nil
}

// Getattrs returns every extended attribute on (cid, oid).
func (s *Store) Getattrs(ctx context.Context, cid objectmap.CollectionID, oid objectmap.ObjectID) (map[string][]byte, error) {
	h, err := s.gom.LookupHeader(ctx, cid, oid)
	if err != nil {
		return nil, err
	}
	return s.gom.Get(ctx, h, objectmap.CFXattr)
}

// ListCollections lists up to max collection ids starting after start.
func (s *Store) ListCollections(ctx context.Context, start objectmap.CollectionID, max int) ([]objectmap.CollectionID, objectmap.CollectionID, error) {
	oids, next, err := s.gom.ListObjects(ctx, objectmap.MetaCollection, objectmap.ObjectID(start), max)
	if err != nil {
		return nil, "", err
	}
	cids := make([]objectmap.CollectionID, len(oids))
	for i, oid := range oids {
		cids[i] = objectmap.CollectionID(oid)
	}
	return cids, objectmap.CollectionID(next), nil
}

// CollectionExists reports whether cid has a meta-collection header.
func (s *Store) CollectionExists(ctx context.Context, cid objectmap.CollectionID) (bool, error) {
	return s.Exists(ctx, objectmap.MetaCollection, objectmap.MetaObject(cid))
}

// CollectionEmpty reports whether cid currently has zero live members.
func (s *Store) CollectionEmpty(ctx context.Context, cid objectmap.CollectionID) (bool, error) {
	objs, _, err := s.gom.ListObjects(ctx, cid, "", 1)
	if err != nil {
		return false, err
	}
	return len(objs) == 0, nil
}

// CollectionList lists up to max objects in cid starting after start.
func (s *Store) CollectionList(ctx context.Context, cid objectmap.CollectionID, start objectmap.ObjectID, max int) ([]objectmap.ObjectID, objectmap.ObjectID, error) {
	return s.gom.ListObjects(ctx, cid, start, max)
}

// CollectionListRange lists every object in cid that comes after start (as
// CollectionList does) and whose oid sorts before end as a string ("" means
// no upper bound), paging internally in batches of pageSize.
func (s *Store) CollectionListRange(ctx context.Context, cid objectmap.CollectionID, start, end objectmap.ObjectID, pageSize int) ([]objectmap.ObjectID, error) {
	if pageSize <= 0 {
		pageSize = 256
	}
	var out []objectmap.ObjectID
	cursor := start
	for {
		page, next, err := s.gom.ListObjects(ctx, cid, cursor, pageSize)
		if err != nil {
			return nil, err
		}
		for _, oid := range page {
			if end != "" && oid >= end {
				continue
			}
			out = append(out, oid)
		}
		if next == "" {
			return out, nil
		}
		cursor = next
	}
}

// CollectionListPartial lists exactly one page of up to max objects in cid
// starting after start, returning the cursor to resume from.
func (s *Store) CollectionListPartial(ctx context.Context, cid objectmap.CollectionID, start objectmap.ObjectID, max int) ([]objectmap.ObjectID, objectmap.ObjectID, error) {
	return s.gom.ListObjects(ctx, cid, start, max)
}

// CollectionGetattr returns one attribute of cid's own meta-collection
// header.
func (s *Store) CollectionGetattr(ctx context.Context, cid objectmap.CollectionID, key string) ([]byte, error) {
	return s.Getattr(ctx, objectmap.MetaCollection, objectmap.MetaObject(cid), key)
}

// CollectionGetattrs returns every attribute of cid's meta-collection
// header.
func (s *Store) CollectionGetattrs(ctx context.Context, cid objectmap.CollectionID) (map[string][]byte, error) {
	return s.Getattrs(ctx, objectmap.MetaCollection, objectmap.MetaObject(cid))
}

// OmapGetHeader returns the single omap header blob for (cid, oid).
func (s *Store) OmapGetHeader(ctx context.Context, cid objectmap.CollectionID, oid objectmap.ObjectID) ([]byte, error) {
	h, err := s.gom.LookupHeader(ctx, cid, oid)
	if err != nil {
		return nil, err
	}
	values, err := s.gom.GetValues(ctx, h, objectmap.CFOmapHeader, []string{objectmap.OmapHeaderKey})
	if err != nil {
		return nil, err
	}
	v, ok := values[objectmap.OmapHeaderKey]
	if !ok {
		return nil, apierrors.ErrNoData
	}
	return v, nil
}

// OmapGetKeys returns every omap key set on (cid, oid).
func (s *Store) OmapGetKeys(ctx context.Context, cid objectmap.CollectionID, oid objectmap.ObjectID) ([]string, error) {
	h, err := s.gom.LookupHeader(ctx, cid, oid)
	if err != nil {
		return nil, err
	}
	return s.gom.GetKeys(ctx, h, objectmap.CFOmap)
}

// OmapGetValues returns the requested omap keys present on (cid, oid).
func (s *Store) OmapGetValues(ctx context.Context, cid objectmap.CollectionID, oid objectmap.ObjectID, keys []string) (map[string][]byte, error) {
	h, err := s.gom.LookupHeader(ctx, cid, oid)
	if err != nil {
		return nil, err
	}
	return s.gom.GetValues(ctx, h, objectmap.CFOmap, keys)
}

// OmapGet returns the full omap for (cid, oid).
func (s *Store) OmapGet(ctx context.Context, cid objectmap.CollectionID, oid objectmap.ObjectID) (map[string][]byte, error) {
	h, err := s.gom.LookupHeader(ctx, cid, oid)
	if err != nil {
		return nil, err
	}
	return s.gom.Get(ctx, h, objectmap.CFOmap)
}

// OmapCheckKeys reports, for each of keys, whether it is present in (cid,
// oid)'s omap.
func (s *Store) OmapCheckKeys(ctx context.Context, cid objectmap.CollectionID, oid objectmap.ObjectID, keys []string) ([]string, error) {
	h, err := s.gom.LookupHeader(ctx, cid, oid)
	if err != nil {
		return nil, err
	}
	return s.gom.CheckKeys(ctx, h, objectmap.CFOmap, keys)
}

// GetOmapIterator returns a forward iterator over (cid, oid)'s omap.
func (s *Store) GetOmapIterator(ctx context.Context, cid objectmap.CollectionID, oid objectmap.ObjectID) (*objectmap.Iterator, error) {
	h, err := s.gom.LookupHeader(ctx, cid, oid)
	if err != nil {
		return nil, err
	}
	return s.gom.GetIterator(ctx, h, objectmap.CFOmap), nil
}
