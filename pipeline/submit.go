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

// Package pipeline assigns every incoming op a globally ordered number,
// fans it out to a per-caller sequencer, and drains sequencers with a fixed
// worker pool that replays each op's transaction list through a buffered
// transaction and commits it.
package pipeline

import "sync"

// SubmitManager hands out strictly increasing op numbers and holds the
// caller's enqueue critical section open between SubmitStart and
// SubmitFinish, so enqueue order into a sequencer always matches op-number
// order: a second caller's SubmitStart cannot return until the first
// caller's matching SubmitFinish runs.
type SubmitManager struct {
	mu          sync.Mutex
	opSeq       uint64
	opSubmitted uint64
}

// NewSubmitManager returns a SubmitManager with its counters at zero.
func NewSubmitManager() *SubmitManager {
	return &SubmitManager{}
}

// SubmitStart acquires the manager's mutex and returns the next op number.
// The caller must enqueue the op onto its sequencer and then call
// SubmitFinish with the same number before any other caller's SubmitStart
// can proceed.
func (m *SubmitManager) SubmitStart() uint64 {
	m.mu.Lock()
	m.opSeq++
	return m.opSeq
}

// SubmitFinish closes the critical section opened by SubmitStart. op must
// be exactly opSubmitted+1; passing any other value indicates a caller
// skipped or duplicated a SubmitStart/SubmitFinish pair and is a
// programming error in the submit path, not a runtime condition BT/decode
// would ever produce.
func (m *SubmitManager) SubmitFinish(op uint64) {
	if op != m.opSubmitted+1 {
		panic("pipeline: SubmitFinish called out of order")
	}
	m.opSubmitted = op
	m.mu.Unlock()
}
