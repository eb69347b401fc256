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

// Package objectmap implements the Generic Object Map: per-(collection,
// object) header lookup/create/clone/rename over a generic ordered KV
// backend, with an in-use guard that makes a second clone/rename of the same
// origin fail with ErrBusy while one is in progress.
package objectmap

import (
	"encoding/binary"

	"github.com/cubefs/objectstore/common/kvstore"
)

const (
	// CFHeaders holds one entry per (cid, oid): the encoded Header blob. Keys
	// sort by cid first and then oid, so a prefix scan over EncodeCID(cid)
	// yields every object in that collection. Each segment is length-prefixed,
	// so oids come back ordered by length first and bytewise within a length.
	CFHeaders = kvstore.CF("headers")
	// CFStrip holds one entry per materialized stripe, keyed by the owning
	// object's prefix plus the strip_object_key.
	CFStrip = kvstore.CF("strip")
	// CFXattr holds the flat attribute map.
	CFXattr = kvstore.CF("xattr")
	// CFOmap holds the sorted secondary key map.
	CFOmap = kvstore.CF("omap")
	// CFOmapHeader holds the single omap header blob per object.
	CFOmapHeader = kvstore.CF("omap_header")
)

// AllColumns lists every column family the generic object map needs created
// before it can be used against a freshly opened KV backend.
var AllColumns = []kvstore.CF{CFHeaders, CFStrip, CFXattr, CFOmap, CFOmapHeader}

// OmapHeaderKey is the single sub-key CFOmapHeader uses per object: there is
// at most one omap header blob per object, so unlike CFXattr/CFOmap it needs
// no caller-supplied key.
const OmapHeaderKey = "header"

// CollectionID is an opaque namespace identifier. Collections carry
// attributes but no data payload of their own.
type CollectionID string

// ObjectID is an opaque, totally-ordered identifier within a collection.
type ObjectID string

// MetaCollection is the distinguished collection that stores one synthetic
// object per real collection, holding that collection's own header and
// attributes. No caller-visible collection may use this identifier.
const MetaCollection = CollectionID("\x00meta\x00")

// MetaObject maps a real collection id onto the object id of its synthetic
// entry inside MetaCollection.
func MetaObject(cid CollectionID) ObjectID {
	return ObjectID(cid)
}

// encodeSegment length-prefixes s with a fixed 4-byte big-endian length so
// that two segments of different lengths never alias as prefixes of one
// another; this is what lets concatenation of encoded segments remain a
// total order and a valid scan boundary.
func encodeSegment(s string) []byte {
	buf := make([]byte, 4+len(s))
	binary.BigEndian.PutUint32(buf, uint32(len(s)))
	copy(buf[4:], s)
	return buf
}

func decodeSegment(b []byte) (s string, rest []byte) {
	if len(b) < 4 {
		return "", nil
	}
	n := binary.BigEndian.Uint32(b)
	if uint32(len(b)-4) < n {
		return "", nil
	}
	return string(b[4 : 4+n]), b[4+n:]
}

// EncodeCID returns the key prefix identifying every object in cid.
func EncodeCID(cid CollectionID) []byte {
	return encodeSegment(string(cid))
}

// EncodeKey returns the CFHeaders key for (cid, oid), which doubles as the
// stable per-object prefix used to scope the strip/xattr/omap/omap-header
// sub-namespaces for as long as the header keeps this identity.
func EncodeKey(cid CollectionID, oid ObjectID) []byte {
	key := EncodeCID(cid)
	return append(key, encodeSegment(string(oid))...)
}

// DecodeKey splits a CFHeaders key back into its (cid, oid) pair.
func DecodeKey(key []byte) (cid CollectionID, oid ObjectID) {
	c, rest := decodeSegment(key)
	o, _ := decodeSegment(rest)
	return CollectionID(c), ObjectID(o)
}
