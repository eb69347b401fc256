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

package decode

import (
	"context"
	"fmt"

	"github.com/cubefs/objectstore/collection"
	apierrors "github.com/cubefs/objectstore/errors"
	"github.com/cubefs/objectstore/metrics"
	"github.com/cubefs/objectstore/objectmap"
	"github.com/cubefs/objectstore/strip"
	"github.com/cubefs/objectstore/txn"
)

// FatalError marks a condition the spec requires the pipeline to treat as
// unrecoverable: an unexpected error partway through applying a
// transaction, where rolling back is not possible because earlier ops in
// the same transaction may have already staged writes into the batch.
// Callers (the pipeline worker) are expected to dump this and terminate
// rather than silently continue with a half-applied transaction.
type FatalError struct {
	Op  OpCode
	Cid string
	Oid string
	Err error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("decode: fatal error applying %s(cid=%q oid=%q): %v", e.Op, e.Cid, e.Oid, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

func fatal(op OpCode, cid, oid string, err error) error {
	return &FatalError{Op: op, Cid: cid, Oid: oid, Err: err}
}

// classify applies the decoder's error-tolerance policy from the error
// taxonomy: NotFound is swallowed on remove-like ops, fatal on clone ops;
// NoData is swallowed on attribute reads; NoSpace and anything else
// unexpected is always fatal.
func classify(op OpCode, cid, oid string, err error) error {
	if err == nil {
		return nil
	}
	if apierrors.Is(err, apierrors.ErrNoSpace) {
		return fatal(op, cid, oid, err)
	}
	if op.isClone() && apierrors.Is(err, apierrors.ErrNotFound) {
		return fatal(op, cid, oid, err)
	}
	if apierrors.Tolerable(err, op.removeLike(), op.attrRead()) {
		return nil
	}
	return fatal(op, cid, oid, err)
}

// Apply walks transaction's op stream and replays each instruction into tx,
// advancing tx.Spos by one NextOp step after every instruction that
// succeeds or whose error is tolerated. The first error that is not
// tolerated is returned at once, without advancing tx.Spos.
func Apply(ctx context.Context, gom *objectmap.Map, tx *txn.Tx, transaction Transaction) error {
	r := &reader{data: transaction.data}
	for !r.done() {
		op, err := r.opCode()
		if err != nil {
			return fatal(op, "", "", err)
		}
		metrics.TransactionsDecoded.WithLabelValues(op.String()).Inc()
		if err := dispatch(ctx, gom, tx, op, r); err != nil {
			return err
		}
		tx.Spos = tx.Spos.NextOp()
	}
	return nil
}

func dispatch(ctx context.Context, gom *objectmap.Map, tx *txn.Tx, op OpCode, r *reader) error {
	switch op {
	case OpNop, OpTrimCache, OpStartSync:
		return skipOperands(op, r)

	case OpTouch:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		_, err = tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), true)
		return classify(op, cid, oid, err)

	case OpWrite:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		offset, err := r.u64()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		data, err := r.bytes()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), true)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		return classify(op, cid, oid, strip.Write(ctx, tx, h, offset, data))

	case OpZero:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		offset, err := r.u64()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		length, err := r.u64()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), true)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		return classify(op, cid, oid, strip.Write(ctx, tx, h, offset, make([]byte, length)))

	case OpTruncate:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		size, err := r.u64()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), false)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		return classify(op, cid, oid, strip.Truncate(ctx, tx, h, size))

	case OpRemove:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), false)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		return classify(op, cid, oid, strip.Remove(ctx, tx, h))

	case OpSetAttr:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		key, err := r.str()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		value, err := r.bytes()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), true)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		return classify(op, cid, oid, tx.SetBufferKeys(ctx, objectmap.CFXattr, h, map[string][]byte{key: value}))

	case OpSetAttrs:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		n, err := r.u64()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		values := make(map[string][]byte, n)
		for i := uint64(0); i < n; i++ {
			key, err := r.str()
			if err != nil {
				return fatal(op, cid, oid, err)
			}
			value, err := r.bytes()
			if err != nil {
				return fatal(op, cid, oid, err)
			}
			values[key] = value
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), true)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		return classify(op, cid, oid, tx.SetBufferKeys(ctx, objectmap.CFXattr, h, values))

	case OpRmAttr:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		key, err := r.str()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), false)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		return classify(op, cid, oid, tx.RemoveBufferKeys(ctx, objectmap.CFXattr, h, []string{key}))

	case OpRmAttrs:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		n, err := r.u64()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		keys := make([]string, n)
		for i := range keys {
			k, err := r.str()
			if err != nil {
				return fatal(op, cid, oid, err)
			}
			keys[i] = k
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), false)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		return classify(op, cid, oid, tx.RemoveBufferKeys(ctx, objectmap.CFXattr, h, keys))

	case OpClone:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		newOid, err := r.str()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), false)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		_, _, err = strip.Clone(ctx, tx, h, objectmap.CollectionID(cid), objectmap.ObjectID(newOid))
		return classify(op, cid, oid, err)

	case OpCloneRange, OpCloneRange2:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		dstOid, err := r.str()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		srcOff, err := r.u64()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		length, err := r.u64()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		dstOff, err := r.u64()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		src, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), false)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		dst, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(dstOid), true)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		return classify(op, cid, oid, strip.CloneRange(ctx, tx, src, dst, srcOff, length, dstOff))

	case OpMkColl:
		cid, err := r.str()
		if err != nil {
			return fatal(op, "", "", err)
		}
		return classify(op, cid, "", collection.Create(ctx, tx, objectmap.CollectionID(cid)))

	case OpRmColl:
		cid, err := r.str()
		if err != nil {
			return fatal(op, "", "", err)
		}
		return classify(op, cid, "", collection.Destroy(ctx, gom, tx, objectmap.CollectionID(cid)))

	case OpCollAdd:
		cid, srcCid, oid, err := tripleStr(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(srcCid), objectmap.ObjectID(oid), false)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		_, _, err = tx.CloneBuffer(ctx, h, objectmap.CollectionID(cid), objectmap.ObjectID(oid))
		return classify(op, cid, oid, err)

	case OpCollRemove:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), false)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		return classify(op, cid, oid, tx.ClearBuffer(ctx, h))

	case OpCollMove:
		cid, srcCid, oid, err := tripleStr(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(srcCid), objectmap.ObjectID(oid), false)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		_, err = tx.RenameBuffer(ctx, h, objectmap.CollectionID(cid), objectmap.ObjectID(oid), tx.Spos)
		return classify(op, cid, oid, err)

	case OpCollMoveRename:
		cid, srcCid, oid, err := tripleStr(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		newOid, err := r.str()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(srcCid), objectmap.ObjectID(oid), false)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		_, err = tx.RenameBuffer(ctx, h, objectmap.CollectionID(cid), objectmap.ObjectID(newOid), tx.Spos)
		return classify(op, cid, oid, err)

	case OpCollSetAttr:
		cid, err := r.str()
		if err != nil {
			return fatal(op, "", "", err)
		}
		key, err := r.str()
		if err != nil {
			return fatal(op, cid, "", err)
		}
		value, err := r.bytes()
		if err != nil {
			return fatal(op, cid, "", err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.MetaCollection, objectmap.MetaObject(objectmap.CollectionID(cid)), true)
		if err != nil {
			return classify(op, cid, "", err)
		}
		return classify(op, cid, "", tx.SetBufferKeys(ctx, objectmap.CFXattr, h, map[string][]byte{key: value}))

	case OpCollRmAttr:
		cid, err := r.str()
		if err != nil {
			return fatal(op, "", "", err)
		}
		key, err := r.str()
		if err != nil {
			return fatal(op, cid, "", err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.MetaCollection, objectmap.MetaObject(objectmap.CollectionID(cid)), false)
		if err != nil {
			return classify(op, cid, "", err)
		}
		return classify(op, cid, "", tx.RemoveBufferKeys(ctx, objectmap.CFXattr, h, []string{key}))

	case OpCollRename:
		cid, err := r.str()
		if err != nil {
			return fatal(op, "", "", err)
		}
		if _, err := r.str(); err != nil {
			return fatal(op, cid, "", err)
		}
		return fatal(op, cid, "", apierrors.ErrUnsupported)

	case OpOmapClear:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), false)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		keys, err := gom.GetKeys(ctx, h, objectmap.CFOmap)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		if err := tx.RemoveBufferKeys(ctx, objectmap.CFOmap, h, keys); err != nil {
			return classify(op, cid, oid, err)
		}
		return classify(op, cid, oid, tx.RemoveBufferKeys(ctx, objectmap.CFOmapHeader, h, []string{objectmap.OmapHeaderKey}))

	case OpOmapSetKeys:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		n, err := r.u64()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		values := make(map[string][]byte, n)
		for i := uint64(0); i < n; i++ {
			key, err := r.str()
			if err != nil {
				return fatal(op, cid, oid, err)
			}
			value, err := r.bytes()
			if err != nil {
				return fatal(op, cid, oid, err)
			}
			values[key] = value
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), true)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		return classify(op, cid, oid, tx.SetBufferKeys(ctx, objectmap.CFOmap, h, values))

	case OpOmapRmKeys:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		n, err := r.u64()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		keys := make([]string, n)
		for i := range keys {
			k, err := r.str()
			if err != nil {
				return fatal(op, cid, oid, err)
			}
			keys[i] = k
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), false)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		return classify(op, cid, oid, tx.RemoveBufferKeys(ctx, objectmap.CFOmap, h, keys))

	case OpOmapRmKeyRange:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		start, err := r.str()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		end, err := r.str()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), false)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		return classify(op, cid, oid, tx.RemoveBufferKeyRange(ctx, objectmap.CFOmap, h, start, end))

	case OpOmapSetHeader:
		cid, oid, err := cidOid(r)
		if err != nil {
			return fatal(op, "", "", err)
		}
		value, err := r.bytes()
		if err != nil {
			return fatal(op, cid, oid, err)
		}
		h, err := tx.LookupCachedHeader(ctx, objectmap.CollectionID(cid), objectmap.ObjectID(oid), true)
		if err != nil {
			return classify(op, cid, oid, err)
		}
		return classify(op, cid, oid, tx.SetBufferKeys(ctx, objectmap.CFOmapHeader, h, map[string][]byte{objectmap.OmapHeaderKey: value}))

	case OpSplitCollection:
		// Reserved: the first variant's meaning is ambiguous in the
		// upstream source this spec was distilled from; accepted as a
		// no-op per that open question's resolution.
		if _, err := r.str(); err != nil {
			return fatal(op, "", "", err)
		}
		if _, err := r.u64(); err != nil {
			return fatal(op, "", "", err)
		}
		if _, err := r.u64(); err != nil {
			return fatal(op, "", "", err)
		}
		_, err := r.str()
		return err

	case OpSplitCollection2:
		cid, err := r.str()
		if err != nil {
			return fatal(op, "", "", err)
		}
		if _, err := r.u64(); err != nil {
			return fatal(op, cid, "", err)
		}
		if _, err := r.u64(); err != nil {
			return fatal(op, cid, "", err)
		}
		destCid, err := r.str()
		if err != nil {
			return fatal(op, cid, "", err)
		}
		return classify(op, cid, "", collection.MoveRename(ctx, tx, objectmap.CollectionID(cid), objectmap.CollectionID(destCid)))

	default:
		return fatal(op, "", "", apierrors.ErrInvalidArgument)
	}
}

func cidOid(r *reader) (string, string, error) {
	cid, err := r.str()
	if err != nil {
		return "", "", err
	}
	oid, err := r.str()
	if err != nil {
		return cid, "", err
	}
	return cid, oid, nil
}

func tripleStr(r *reader) (string, string, string, error) {
	a, err := r.str()
	if err != nil {
		return "", "", "", err
	}
	b, err := r.str()
	if err != nil {
		return a, "", "", err
	}
	c, err := r.str()
	if err != nil {
		return a, b, "", err
	}
	return a, b, c, nil
}

func skipOperands(op OpCode, r *reader) error {
	switch op {
	case OpTrimCache:
		_, _, err := cidOid(r)
		return err
	default:
		return nil
	}
}
