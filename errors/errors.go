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

// Package errors defines the error taxonomy shared by every subsystem of the
// object store core: strip engine, buffered transaction, op pipeline, and the
// generic object map. Every fallible operation returns one of these sentinels
// (or wraps one via cubefs's blobstore errors.Info) rather than a bespoke
// error type, so that callers can classify failures with errors.Is.
package errors

import (
	stderrors "errors"

	"github.com/cubefs/cubefs/blobstore/util/errors"
)

// Info wraps err with additional context without losing its identity, so
// errors.Is(Info(ErrNotFound, "..."), ErrNotFound) still holds.
var Info = errors.Info

var (
	// ErrNotFound covers a missing collection, object, or attribute. Tolerated
	// on REMOVE-like ops.
	ErrNotFound = stderrors.New("objectstore: not found")
	// ErrAlreadyExists is returned by create-collection, and by an object
	// clone or collection-add whose destination object is already present.
	ErrAlreadyExists = stderrors.New("objectstore: already exists")
	// ErrInvalidArgument covers a read beyond max_size, a malformed cid/oid,
	// or a transaction op stream that fails to decode.
	ErrInvalidArgument = stderrors.New("objectstore: invalid argument")
	// ErrNotEmpty is returned by destroy-collection when live members remain.
	ErrNotEmpty = stderrors.New("objectstore: collection not empty")
	// ErrNoData marks a missing xattr/omap entry. Tolerated on attribute reads.
	ErrNoData = stderrors.New("objectstore: no data")
	// ErrBusy is returned when the on-disk fsid lock is held by another process.
	ErrBusy = stderrors.New("objectstore: store busy")
	// ErrIO is surfaced from the KV backend or filesystem. There is no
	// fail-on-EIO setting: the decoder treats it like any other error it does
	// not tolerate, as fatal, and read paths return it to the caller.
	ErrIO = stderrors.New("objectstore: io error")
	// ErrNoSpace is always fatal: partial application of a transaction risks
	// corrupting on-disk state, so the decoder aborts the process on sight.
	ErrNoSpace = stderrors.New("objectstore: no space")
	// ErrUnsupported marks collection rename, which the core explicitly
	// refuses to implement.
	ErrUnsupported = stderrors.New("objectstore: unsupported operation")
)

// Is reports whether err or any error it wraps matches target.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// Tolerable reports whether err is expected and safe to swallow for the given
// op kind, per the propagation policy in the transaction decoder: ErrNotFound
// is tolerated on remove-like ops, ErrNoData is tolerated on attribute reads.
// Both are fatal on clone variants, handled separately by the caller.
func Tolerable(err error, removeLike, attrRead bool) bool {
	if removeLike && Is(err, ErrNotFound) {
		return true
	}
	if attrRead && Is(err, ErrNoData) {
		return true
	}
	return false
}
