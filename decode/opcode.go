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

// Package decode walks the opaque transaction op stream produced by the
// upper-layer protocol and dispatches each instruction to the buffered
// transaction and strip engine primitives that actually perform it.
package decode

// OpCode identifies one instruction in a transaction's op stream. The full
// set below is fixed by the wire grammar. TRIMCACHE is a deprecated no-op
// that only consumes its operands. COLL_MOVE is deprecated in favour of
// COLL_MOVE_RENAME, but it is still applied as a move of the object into the
// new collection under the same oid. COLL_RENAME is recognized but always
// rejected as unsupported.
type OpCode uint64

const (
	OpNop OpCode = iota
	OpTouch
	OpWrite
	OpZero
	OpTrimCache
	OpTruncate
	OpRemove
	OpSetAttr
	OpSetAttrs
	OpRmAttr
	OpRmAttrs
	OpClone
	OpCloneRange
	OpCloneRange2
	OpMkColl
	OpRmColl
	OpCollAdd
	OpCollRemove
	OpCollMove
	OpCollMoveRename
	OpCollSetAttr
	OpCollRmAttr
	OpStartSync
	OpCollRename
	OpOmapClear
	OpOmapSetKeys
	OpOmapRmKeys
	OpOmapRmKeyRange
	OpOmapSetHeader
	OpSplitCollection
	OpSplitCollection2
)

var opNames = map[OpCode]string{
	OpNop:              "NOP",
	OpTouch:            "TOUCH",
	OpWrite:            "WRITE",
	OpZero:             "ZERO",
	OpTrimCache:        "TRIMCACHE",
	OpTruncate:         "TRUNCATE",
	OpRemove:           "REMOVE",
	OpSetAttr:          "SETATTR",
	OpSetAttrs:         "SETATTRS",
	OpRmAttr:           "RMATTR",
	OpRmAttrs:          "RMATTRS",
	OpClone:            "CLONE",
	OpCloneRange:       "CLONERANGE",
	OpCloneRange2:      "CLONERANGE2",
	OpMkColl:           "MKCOLL",
	OpRmColl:           "RMCOLL",
	OpCollAdd:          "COLL_ADD",
	OpCollRemove:       "COLL_REMOVE",
	OpCollMove:         "COLL_MOVE",
	OpCollMoveRename:   "COLL_MOVE_RENAME",
	OpCollSetAttr:      "COLL_SETATTR",
	OpCollRmAttr:       "COLL_RMATTR",
	OpStartSync:        "STARTSYNC",
	OpCollRename:       "COLL_RENAME",
	OpOmapClear:        "OMAP_CLEAR",
	OpOmapSetKeys:      "OMAP_SETKEYS",
	OpOmapRmKeys:       "OMAP_RMKEYS",
	OpOmapRmKeyRange:   "OMAP_RMKEYRANGE",
	OpOmapSetHeader:    "OMAP_SETHEADER",
	OpSplitCollection:  "SPLIT_COLLECTION",
	OpSplitCollection2: "SPLIT_COLLECTION2",
}

func (c OpCode) String() string {
	if n, ok := opNames[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// removeLike reports whether c tolerates NotFound the way REMOVE does.
func (c OpCode) removeLike() bool {
	switch c {
	case OpRemove, OpRmAttr, OpRmAttrs, OpRmColl, OpCollRemove, OpCollRmAttr,
		OpOmapRmKeys, OpOmapRmKeyRange:
		return true
	}
	return false
}

// isClone reports whether c is one of the clone-family ops, for which
// NotFound on the source is fatal rather than tolerated.
func (c OpCode) isClone() bool {
	switch c {
	case OpClone, OpCloneRange, OpCloneRange2:
		return true
	}
	return false
}

// attrRead marks ops for which NoData is tolerated. None of the write-side
// op codes are attribute reads, so it always reports false and the decoder
// never tolerates NoData.
func (c OpCode) attrRead() bool { return false }
