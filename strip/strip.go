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

package strip

import (
	"context"
	"encoding/binary"

	apierrors "github.com/cubefs/objectstore/errors"
	"github.com/cubefs/objectstore/objectmap"
	"github.com/cubefs/objectstore/txn"
)

// stripObjectKey is the sub-key of stripe n under CFStrip, a fixed 8-byte
// big-endian encoding so stripes within one object sort in stripe order
// under a prefix scan.
func stripObjectKey(n uint64) string {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	return string(buf)
}

// Read copies into a fresh buffer the bytes covering [offset, offset+length)
// of header's data stream, clamped to the object's current max size, with
// holes synthesized as zero.
func Read(ctx context.Context, tx *txn.Tx, header *objectmap.Header, offset, length uint64) ([]byte, error) {
	if offset > header.MaxSize {
		return nil, apierrors.ErrInvalidArgument
	}
	if length == 0 || offset+length > header.MaxSize {
		length = header.MaxSize - offset
	}
	if length == 0 {
		return []byte{}, nil
	}

	extents := PlanExtents(offset, length, header.StripSize)
	out := make([]byte, 0, length)
	for _, e := range extents {
		if !header.Bits.Get(int(e.StripeNo)) {
			out = append(out, make([]byte, e.Length)...)
			continue
		}
		value, ok, err := tx.GetBufferedValue(ctx, objectmap.CFStrip, header, stripObjectKey(e.StripeNo))
		if err != nil {
			return nil, err
		}
		if !ok {
			out = append(out, make([]byte, e.Length)...)
			continue
		}
		out = append(out, value[e.IntraOffset:e.IntraOffset+e.Length]...)
	}
	return out, nil
}

// Write splices data into header's data stream at offset, allocating and
// merging stripes as necessary and growing max_size/bits if the write
// extends past the current end.
func Write(ctx context.Context, tx *txn.Tx, header *objectmap.Header, offset uint64, data []byte) error {
	length := uint64(len(data))
	if length == 0 {
		return nil
	}

	end := offset + length
	if end > header.MaxSize {
		header.MaxSize = end
		header.Resize()
	}

	extents := PlanExtents(offset, length, header.StripSize)
	values := make(map[string][]byte, len(extents))
	consumed := uint64(0)
	for _, e := range extents {
		key := stripObjectKey(e.StripeNo)
		var stripe []byte
		full := e.IntraOffset == 0 && e.Length == header.StripSize

		if header.Bits.Get(int(e.StripeNo)) {
			if full {
				stripe = make([]byte, header.StripSize)
			} else {
				existing, ok, err := tx.GetBufferedValue(ctx, objectmap.CFStrip, header, key)
				if err != nil {
					return err
				}
				if ok {
					stripe = append([]byte(nil), existing...)
				} else {
					stripe = make([]byte, header.StripSize)
				}
			}
		} else {
			stripe = make([]byte, header.StripSize)
			header.Bits.Set(int(e.StripeNo), true)
		}

		copy(stripe[e.IntraOffset:e.IntraOffset+e.Length], data[consumed:consumed+e.Length])
		values[key] = stripe
		consumed += e.Length
	}

	return tx.SetBufferKeys(ctx, objectmap.CFStrip, header, values)
}

// Truncate resizes header's data stream to size, removing wholly-removed
// stripes and zero-padding a boundary stripe that is now only partially
// covered. Growing truncate only extends max_size/bits; the newly exposed
// range stays sparse.
func Truncate(ctx context.Context, tx *txn.Tx, header *objectmap.Header, size uint64) error {
	if size >= header.MaxSize {
		header.MaxSize = size
		header.Resize()
		return nil
	}

	oldMax := header.MaxSize
	extents := PlanExtents(size, oldMax-size, header.StripSize)
	var removeKeys []string
	for i, e := range extents {
		if i == 0 && e.IntraOffset != 0 {
			key := stripObjectKey(e.StripeNo)
			if header.Bits.Get(int(e.StripeNo)) {
				existing, ok, err := tx.GetBufferedValue(ctx, objectmap.CFStrip, header, key)
				if err != nil {
					return err
				}
				stripe := make([]byte, header.StripSize)
				if ok {
					copy(stripe, existing[:e.IntraOffset])
				}
				if err := tx.SetBufferKeys(ctx, objectmap.CFStrip, header, map[string][]byte{key: stripe}); err != nil {
					return err
				}
			}
			continue
		}
		if header.Bits.Get(int(e.StripeNo)) {
			removeKeys = append(removeKeys, stripObjectKey(e.StripeNo))
			header.Bits.Set(int(e.StripeNo), false)
		}
	}
	if len(removeKeys) > 0 {
		if err := tx.RemoveBufferKeys(ctx, objectmap.CFStrip, header, removeKeys); err != nil {
			return err
		}
	}

	header.MaxSize = size
	header.Resize()
	return nil
}

// Remove tombstones header within this Tx: on commit the backend erases
// every KV entry scoped to it instead of saving the header blob.
func Remove(ctx context.Context, tx *txn.Tx, header *objectmap.Header) error {
	return tx.ClearBuffer(ctx, header)
}

// Clone duplicates header's data stream into (cid, oid) as an independent
// object, returning the refreshed source header and the new header.
func Clone(ctx context.Context, tx *txn.Tx, header *objectmap.Header, cid objectmap.CollectionID, oid objectmap.ObjectID) (*objectmap.Header, *objectmap.Header, error) {
	return tx.CloneBuffer(ctx, header, cid, oid)
}

// CloneRange copies [srcOff, srcOff+length) of src's data stream to dstOff
// in dst's data stream. It is defined as exactly Read(src) then
// Write(dst), and obeys those two primitives' semantics precisely,
// including max_size growth on dst.
func CloneRange(ctx context.Context, tx *txn.Tx, src, dst *objectmap.Header, srcOff, length, dstOff uint64) error {
	data, err := Read(ctx, tx, src, srcOff, length)
	if err != nil {
		return err
	}
	return Write(ctx, tx, dst, dstOff, data)
}
