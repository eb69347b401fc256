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

// Package collection implements create/destroy/move-rename for collections,
// which are modeled as headers living in the generic object map's
// meta-collection rather than as a bespoke KV structure.
package collection

import (
	"context"

	"github.com/cubefs/cubefs/blobstore/util/log"

	apierrors "github.com/cubefs/objectstore/errors"
	"github.com/cubefs/objectstore/objectmap"
	"github.com/cubefs/objectstore/txn"
)

// listBatchSize is how many objects a recursive collection remove lists and
// removes per round.
const listBatchSize = 256

// Create inserts a header for cid in the meta-collection, failing with
// ErrAlreadyExists if one is already present.
func Create(ctx context.Context, tx *txn.Tx, cid objectmap.CollectionID) error {
	if _, err := tx.LookupCachedHeader(ctx, objectmap.MetaCollection, objectmap.MetaObject(cid), false); err == nil {
		return apierrors.ErrAlreadyExists
	} else if !apierrors.Is(err, apierrors.ErrNotFound) {
		return err
	}
	_, err := tx.LookupCachedHeader(ctx, objectmap.MetaCollection, objectmap.MetaObject(cid), true)
	return err
}

// Destroy clears cid's meta-collection header, but only if cid is empty:
// every real object currently listed under cid must already be marked
// deleted within this same Tx.
func Destroy(ctx context.Context, gom *objectmap.Map, tx *txn.Tx, cid objectmap.CollectionID) error {
	header, err := tx.LookupCachedHeader(ctx, objectmap.MetaCollection, objectmap.MetaObject(cid), false)
	if err != nil {
		return err
	}

	deletedCount := tx.DeletedCountInCollection(cid)
	objs, _, err := gom.ListObjects(ctx, cid, "", deletedCount+1)
	if err != nil {
		return err
	}
	for _, oid := range objs {
		if !tx.IsDeleted(cid, oid) {
			return apierrors.ErrNotEmpty
		}
	}

	return tx.ClearBuffer(ctx, header)
}

// MoveRename renames cid's meta-collection header to newCid via the
// underlying object rename primitive.
func MoveRename(ctx context.Context, tx *txn.Tx, cid, newCid objectmap.CollectionID) error {
	header, err := tx.LookupCachedHeader(ctx, objectmap.MetaCollection, objectmap.MetaObject(cid), false)
	if err != nil {
		return err
	}
	_, err = tx.RenameBuffer(ctx, header, objectmap.MetaCollection, objectmap.MetaObject(newCid), tx.Spos)
	return err
}

// RemoveRecursive deletes every object in cid in batches of listBatchSize,
// then clears cid's own header. Unlike Destroy, it does not require the
// caller to have already marked members deleted.
func RemoveRecursive(ctx context.Context, gom *objectmap.Map, tx *txn.Tx, cid objectmap.CollectionID) error {
	var start objectmap.ObjectID
	for {
		objs, next, err := gom.ListObjects(ctx, cid, start, listBatchSize)
		if err != nil {
			return err
		}
		for _, oid := range objs {
			h, err := tx.LookupCachedHeader(ctx, cid, oid, false)
			if err != nil {
				if apierrors.Is(err, apierrors.ErrNotFound) {
					continue
				}
				return err
			}
			if err := tx.ClearBuffer(ctx, h); err != nil {
				return err
			}
		}
		if next == "" {
			break
		}
		start = next
	}

	header, err := tx.LookupCachedHeader(ctx, objectmap.MetaCollection, objectmap.MetaObject(cid), false)
	if err != nil {
		return err
	}
	if err := tx.ClearBuffer(ctx, header); err != nil {
		return err
	}
	log.Info("collection: recursive remove complete", "cid", cid)
	return nil
}
