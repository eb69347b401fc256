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
	"encoding/binary"

	apierrors "github.com/cubefs/objectstore/errors"
	"github.com/cubefs/objectstore/spos"
)

// DefaultStripSize is the stripe width assigned to a header at creation time
// when the caller does not override it.
const DefaultStripSize = uint64(4 << 20)

// Header is the per-(cid, oid) metadata record persisted as a single KV
// entry in CFHeaders. Bits is a dense presence bitmap: bit n set means
// stripe n is materialized under CFStrip, clear means the stripe is an
// implicit-zero hole.
//
// Header also carries the back-references (CID, OID) and the KV prefix used
// to scope this object's stripe/xattr/omap/omap-header sub-namespaces. The
// prefix equals EncodeKey(CID, OID) at creation time and only changes when
// the object is renamed.
type Header struct {
	CID    CollectionID
	OID    ObjectID
	Prefix []byte

	StripSize uint64
	MaxSize   uint64
	Bits      Bitmap
	Spos      spos.Position
}

// NewHeader returns an empty header for (cid, oid) with the default stripe
// size and a single all-zero bitmap bit, matching a freshly created object.
func NewHeader(cid CollectionID, oid ObjectID) *Header {
	h := &Header{
		CID:       cid,
		OID:       oid,
		Prefix:    EncodeKey(cid, oid),
		StripSize: DefaultStripSize,
	}
	h.Bits = make(Bitmap, 1)
	return h
}

// StripeCount returns the number of bitmap entries a header of this max size
// and strip size must carry: ceil(max_size/strip_size) + 1.
func StripeCount(maxSize, stripSize uint64) int {
	return int((maxSize+stripSize-1)/stripSize) + 1
}

// Resize grows or shrinks the bitmap to match the current MaxSize/StripSize,
// preserving existing bits and zero-filling any newly added ones.
func (h *Header) Resize() {
	h.Bits.Resize(StripeCount(h.MaxSize, h.StripSize))
}

// Marshal encodes the header into a self-contained blob suitable for storage
// under CFHeaders. The encoding is a small fixed-layout binary record rather
// than a generated message: the header is never exposed on the wire, only
// read back by this package, and avoiding a reflection-based codec keeps the
// hot commit path (one encode per dirtied header per transaction) allocation
// light.
func (h *Header) Marshal() []byte {
	bits := h.Bits.Pack()
	buf := make([]byte, 8+8+8+4+4+4+len(bits))
	off := 0
	binary.BigEndian.PutUint64(buf[off:], h.StripSize)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], h.MaxSize)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], h.Spos.OpSeq)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], h.Spos.TransNum)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], h.Spos.Op)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], uint32(len(h.Bits)))
	off += 4
	copy(buf[off:], bits)
	return buf
}

// Unmarshal decodes a blob produced by Marshal into h, leaving CID/OID/Prefix
// untouched (they are supplied by the caller from the lookup key, not stored
// in the blob itself).
func (h *Header) Unmarshal(data []byte) error {
	if len(data) < 36 {
		return apierrors.ErrInvalidArgument
	}
	off := 0
	h.StripSize = binary.BigEndian.Uint64(data[off:])
	off += 8
	h.MaxSize = binary.BigEndian.Uint64(data[off:])
	off += 8
	h.Spos.OpSeq = binary.BigEndian.Uint64(data[off:])
	off += 8
	h.Spos.TransNum = binary.BigEndian.Uint32(data[off:])
	off += 4
	h.Spos.Op = binary.BigEndian.Uint32(data[off:])
	off += 4
	nbits := binary.BigEndian.Uint32(data[off:])
	off += 4
	h.Bits = UnpackBitmap(data[off:], int(nbits))
	return nil
}

// Clone returns a deep copy of h, used when the buffered transaction needs
// to hand out an independent header instance for a cloned or renamed object.
func (h *Header) Clone() *Header {
	clone := *h
	clone.Prefix = append([]byte(nil), h.Prefix...)
	clone.Bits = append(Bitmap(nil), h.Bits...)
	return &clone
}
