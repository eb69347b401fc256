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
	"google.golang.org/protobuf/encoding/protowire"

	apierrors "github.com/cubefs/objectstore/errors"
)

// Transaction is one opaque, wire-ordered op stream: a sequence of
// instructions, each a varint op code followed by that op's operands in
// the exact order the corresponding case in Apply consumes them.
type Transaction struct {
	data []byte
}

// Builder assembles a Transaction instruction by instruction. Callers that
// produce transactions programmatically (tests, and any in-process caller
// of queue_transactions) use this instead of hand-rolling the wire format.
type Builder struct {
	buf []byte
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) op(code OpCode) *Builder {
	b.buf = protowire.AppendVarint(b.buf, uint64(code))
	return b
}

func (b *Builder) str(s string) *Builder {
	b.buf = protowire.AppendBytes(b.buf, []byte(s))
	return b
}

func (b *Builder) bytes(v []byte) *Builder {
	b.buf = protowire.AppendBytes(b.buf, v)
	return b
}

func (b *Builder) u64(v uint64) *Builder {
	b.buf = protowire.AppendVarint(b.buf, v)
	return b
}

func (b *Builder) Nop() *Builder { return b.op(OpNop) }

func (b *Builder) Touch(cid, oid string) *Builder {
	return b.op(OpTouch).str(cid).str(oid)
}

func (b *Builder) Write(cid, oid string, offset uint64, data []byte) *Builder {
	return b.op(OpWrite).str(cid).str(oid).u64(offset).bytes(data)
}

func (b *Builder) Zero(cid, oid string, offset, length uint64) *Builder {
	return b.op(OpZero).str(cid).str(oid).u64(offset).u64(length)
}

func (b *Builder) TrimCache(cid, oid string) *Builder {
	return b.op(OpTrimCache).str(cid).str(oid)
}

func (b *Builder) Truncate(cid, oid string, size uint64) *Builder {
	return b.op(OpTruncate).str(cid).str(oid).u64(size)
}

func (b *Builder) Remove(cid, oid string) *Builder {
	return b.op(OpRemove).str(cid).str(oid)
}

func (b *Builder) SetAttr(cid, oid, key string, value []byte) *Builder {
	return b.op(OpSetAttr).str(cid).str(oid).str(key).bytes(value)
}

func (b *Builder) SetAttrs(cid, oid string, attrs map[string][]byte) *Builder {
	b.op(OpSetAttrs).str(cid).str(oid).u64(uint64(len(attrs)))
	for k, v := range attrs {
		b.str(k).bytes(v)
	}
	return b
}

func (b *Builder) RmAttr(cid, oid, key string) *Builder {
	return b.op(OpRmAttr).str(cid).str(oid).str(key)
}

func (b *Builder) RmAttrs(cid, oid string, keys []string) *Builder {
	b.op(OpRmAttrs).str(cid).str(oid).u64(uint64(len(keys)))
	for _, k := range keys {
		b.str(k)
	}
	return b
}

func (b *Builder) Clone(cid, oid, newOid string) *Builder {
	return b.op(OpClone).str(cid).str(oid).str(newOid)
}

func (b *Builder) CloneRange(cid, oid, dstOid string, srcOff, length, dstOff uint64) *Builder {
	return b.op(OpCloneRange).str(cid).str(oid).str(dstOid).u64(srcOff).u64(length).u64(dstOff)
}

func (b *Builder) CloneRange2(cid, oid, dstOid string, srcOff, length, dstOff uint64) *Builder {
	return b.op(OpCloneRange2).str(cid).str(oid).str(dstOid).u64(srcOff).u64(length).u64(dstOff)
}

func (b *Builder) MkColl(cid string) *Builder { return b.op(OpMkColl).str(cid) }
func (b *Builder) RmColl(cid string) *Builder { return b.op(OpRmColl).str(cid) }

func (b *Builder) CollAdd(cid, srcCid, oid string) *Builder {
	return b.op(OpCollAdd).str(cid).str(srcCid).str(oid)
}

func (b *Builder) CollRemove(cid, oid string) *Builder {
	return b.op(OpCollRemove).str(cid).str(oid)
}

func (b *Builder) CollMove(cid, srcCid, oid string) *Builder {
	return b.op(OpCollMove).str(cid).str(srcCid).str(oid)
}

func (b *Builder) CollMoveRename(cid, srcCid, oid, newOid string) *Builder {
	return b.op(OpCollMoveRename).str(cid).str(srcCid).str(oid).str(newOid)
}

func (b *Builder) CollSetAttr(cid, key string, value []byte) *Builder {
	return b.op(OpCollSetAttr).str(cid).str(key).bytes(value)
}

func (b *Builder) CollRmAttr(cid, key string) *Builder {
	return b.op(OpCollRmAttr).str(cid).str(key)
}

func (b *Builder) StartSync() *Builder { return b.op(OpStartSync) }

func (b *Builder) CollRename(cid, newCid string) *Builder {
	return b.op(OpCollRename).str(cid).str(newCid)
}

func (b *Builder) OmapClear(cid, oid string) *Builder {
	return b.op(OpOmapClear).str(cid).str(oid)
}

func (b *Builder) OmapSetKeys(cid, oid string, values map[string][]byte) *Builder {
	b.op(OpOmapSetKeys).str(cid).str(oid).u64(uint64(len(values)))
	for k, v := range values {
		b.str(k).bytes(v)
	}
	return b
}

func (b *Builder) OmapRmKeys(cid, oid string, keys []string) *Builder {
	b.op(OpOmapRmKeys).str(cid).str(oid).u64(uint64(len(keys)))
	for _, k := range keys {
		b.str(k)
	}
	return b
}

func (b *Builder) OmapRmKeyRange(cid, oid, start, end string) *Builder {
	return b.op(OpOmapRmKeyRange).str(cid).str(oid).str(start).str(end)
}

func (b *Builder) OmapSetHeader(cid, oid string, header []byte) *Builder {
	return b.op(OpOmapSetHeader).str(cid).str(oid).bytes(header)
}

func (b *Builder) SplitCollection(cid string, bits, match uint64, destCid string) *Builder {
	return b.op(OpSplitCollection).str(cid).u64(bits).u64(match).str(destCid)
}

func (b *Builder) SplitCollection2(cid string, bits, match uint64, destCid string) *Builder {
	return b.op(OpSplitCollection2).str(cid).u64(bits).u64(match).str(destCid)
}

func (b *Builder) Build() Transaction { return Transaction{data: b.buf} }

// reader walks a Transaction's op stream, consuming each operand in order.
type reader struct {
	data []byte
}

func (r *reader) done() bool { return len(r.data) == 0 }

func (r *reader) opCode() (OpCode, error) {
	v, n := protowire.ConsumeVarint(r.data)
	if n < 0 {
		return 0, apierrors.ErrInvalidArgument
	}
	r.data = r.data[n:]
	return OpCode(v), nil
}

func (r *reader) str() (string, error) {
	b, err := r.bytes()
	return string(b), err
}

func (r *reader) bytes() ([]byte, error) {
	v, n := protowire.ConsumeBytes(r.data)
	if n < 0 {
		return nil, apierrors.ErrInvalidArgument
	}
	r.data = r.data[n:]
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	v, n := protowire.ConsumeVarint(r.data)
	if n < 0 {
		return 0, apierrors.ErrInvalidArgument
	}
	r.data = r.data[n:]
	return v, nil
}
