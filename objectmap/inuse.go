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

import "sync"

// inUse tracks, per (cid, oid), whether a clone or rename currently holds
// exclusive access to the origin header. It does not serialize ordinary
// reads and writes against each other -- that coordination happens one
// level up, at the pipeline sequencer's apply_lock -- it exists only to give
// clone/rename a window during which no other goroutine inside this process
// can begin a conflicting clone/rename of the same origin.
//
// This only narrows the hazard documented in the core's open design notes:
// a concurrent mutator already mid-transaction when clone/rename starts can
// still observe a transient state, because the apply_lock boundary is a
// whole transaction, not a single header. Callers are expected to serialize
// at collection (placement-group) granularity for full correctness.
type inUse struct {
	mu      sync.Mutex
	holders map[string]struct{}
}

func newInUse() *inUse {
	return &inUse{holders: make(map[string]struct{})}
}

func inUseKey(cid CollectionID, oid ObjectID) string {
	return string(cid) + "\x00" + string(oid)
}

// TryAcquire marks (cid, oid) as being cloned/renamed. It returns false if
// another clone/rename on the same origin is already in flight.
func (u *inUse) TryAcquire(cid CollectionID, oid ObjectID) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	key := inUseKey(cid, oid)
	if _, busy := u.holders[key]; busy {
		return false
	}
	u.holders[key] = struct{}{}
	return true
}

// Release clears the in-use marker for (cid, oid).
func (u *inUse) Release(cid CollectionID, oid ObjectID) {
	u.mu.Lock()
	defer u.mu.Unlock()
	delete(u.holders, inUseKey(cid, oid))
}
