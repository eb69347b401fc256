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

package pipeline

import (
	"container/list"
	"sync"
	"sync/atomic"

	"github.com/cubefs/objectstore/decode"
)

// Op is one caller-submitted unit of work: an ordered list of transactions
// to replay under a single op number, plus the three completion callbacks
// the worker fires at different points in the commit pipeline. Number is
// assigned by SubmitManager.SubmitStart before the op is enqueued.
type Op struct {
	Number       uint64
	Transactions []decode.Transaction

	// OnReadableSync fires inline on the worker goroutine immediately
	// after commit, before apply_lock is released. It must not block.
	OnReadableSync func(err error)
	// OnReadable fires on a dedicated finisher goroutine after
	// OnReadableSync.
	OnReadable func(err error)
	// OnDisk fires on a dedicated finisher goroutine once the backend
	// has acknowledged durability. It is skipped entirely when the
	// commit result was an error: a negative result has nothing durable
	// to report.
	OnDisk func(err error)
}

// OpSequencer is one caller's FIFO of pending ops, serialized by applyLock:
// a worker must hold applyLock for the whole duration of applying the head
// op, so ops within one sequencer always execute and commit in enqueue
// order even though distinct sequencers run concurrently across workers.
type OpSequencer struct {
	applyLock sync.Mutex

	// scheduled gates how many worker-pool tasks are actively dispatching
	// this sequencer: at most one at a time. Submit and the dispatch loop
	// CAS it between 0 and 1 so a burst of concurrent Submit calls never
	// schedules more than one drain task regardless of how many ops
	// arrive while one is already running.
	scheduled int32

	mu      sync.Mutex
	pending *list.List
}

// NewOpSequencer returns an empty OpSequencer.
func NewOpSequencer() *OpSequencer {
	return &OpSequencer{pending: list.New()}
}

// Enqueue appends op to the tail of the sequencer's FIFO.
func (s *OpSequencer) Enqueue(op *Op) {
	s.mu.Lock()
	s.pending.PushBack(op)
	s.mu.Unlock()
}

// Peek returns the head op without removing it, or nil if empty.
func (s *OpSequencer) Peek() *Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.pending.Front(); e != nil {
		return e.Value.(*Op)
	}
	return nil
}

// Dequeue removes the head op. The caller must already hold applyLock and
// have just finished applying the op returned by the matching Peek.
func (s *OpSequencer) Dequeue() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.pending.Front(); e != nil {
		s.pending.Remove(e)
	}
}

// Empty reports whether the sequencer currently has no pending ops.
func (s *OpSequencer) Empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.Len() == 0
}
