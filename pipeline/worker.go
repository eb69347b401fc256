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
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/cubefs/cubefs/blobstore/util/log"
	"github.com/cubefs/cubefs/blobstore/util/taskpool"

	"github.com/cubefs/objectstore/common/kvstore"
	"github.com/cubefs/objectstore/decode"
	"github.com/cubefs/objectstore/metrics"
	"github.com/cubefs/objectstore/objectmap"
	"github.com/cubefs/objectstore/spos"
	"github.com/cubefs/objectstore/txn"
	"github.com/cubefs/objectstore/util/limiter"
)

// finisherQueueSize bounds how many completions can be in flight on one
// finisher goroutine before callers submitting new ops start to feel
// backpressure from a stalled callback.
const finisherQueueSize = 4096

// Pipeline ties the submit manager, a fixed worker pool, and the two
// completion finishers together around one generic object map. It is the
// top-level entry point store uses to actually run queued transactions.
type Pipeline struct {
	gom *objectmap.Map

	submit  *SubmitManager
	pool    taskpool.TaskPool
	limiter limiter.Limiter

	readable chan func()
	ondisk   chan func()
	done     chan struct{}
}

// New returns a Pipeline with workers worker goroutines draining sequencers
// concurrently. gom is shared read/write across every worker: ordering
// within one object is guaranteed only by the caller routing all ops on
// that object through the same OpSequencer. lim throttles the byte rate and
// concurrency of every commit this pipeline issues against the backend; a
// nil lim disables throttling.
func New(gom *objectmap.Map, workers int, lim limiter.Limiter) *Pipeline {
	if lim == nil {
		lim = limiter.NewLimiter(limiter.LimitConfig{})
	}
	p := &Pipeline{
		gom:      gom,
		submit:   NewSubmitManager(),
		pool:     taskpool.New(workers, workers),
		limiter:  lim,
		readable: make(chan func(), finisherQueueSize),
		ondisk:   make(chan func(), finisherQueueSize),
		done:     make(chan struct{}),
	}
	go p.drain(p.readable)
	go p.drain(p.ondisk)
	return p
}

func (p *Pipeline) drain(c chan func()) {
	for {
		select {
		case f := <-c:
			f()
		case <-p.done:
			return
		}
	}
}

// Close stops the completion finishers. It does not wait for in-flight
// worker-pool tasks; callers should stop submitting new ops first.
func (p *Pipeline) Close() {
	close(p.done)
}

// Submit assigns op its number under the submit manager and enqueues it
// onto seq. The op number is assigned and the op enqueued while the submit
// manager's mutex is held, so concurrent Submit calls on distinct
// sequencers can never interleave in a way that lets a later-numbered op
// land on the wire before an earlier-numbered one. At most one worker ever
// drains a given sequencer at a time; a burst of Submit calls on the same
// sequencer schedules exactly one drain task, which applies every op
// enqueued by the time it finishes.
func (p *Pipeline) Submit(seq *OpSequencer, op *Op) {
	op.Number = p.submit.SubmitStart()
	seq.Enqueue(op)
	p.submit.SubmitFinish(op.Number)

	if atomic.CompareAndSwapInt32(&seq.scheduled, 0, 1) {
		if !p.pool.TryRun(func() { p.drainSequencer(seq) }) {
			go p.drainSequencer(seq)
		}
	}
}

// drainSequencer applies every op queued on seq, holding seq.applyLock for
// the duration of each pass. On reaching an empty queue it releases
// scheduling and exits, unless an op snuck in between the last Peek and
// the release, in which case it reclaims scheduling and loops rather than
// leaving that op stranded.
func (p *Pipeline) drainSequencer(seq *OpSequencer) {
	for {
		seq.applyLock.Lock()
		for {
			op := seq.Peek()
			if op == nil {
				break
			}
			p.applyOp(op)
			seq.Dequeue()
		}
		seq.applyLock.Unlock()

		atomic.StoreInt32(&seq.scheduled, 0)
		if seq.Empty() {
			return
		}
		if !atomic.CompareAndSwapInt32(&seq.scheduled, 0, 1) {
			return
		}
	}
}

func (p *Pipeline) applyOp(op *Op) {
	started := time.Now()
	ctx := context.Background()
	batch := p.gom.NewBatch()
	tx := txn.New(p.gom, batch, spos.Position{OpSeq: op.Number, TransNum: 0, Op: 0})

	var applyErr error
	for i, transaction := range op.Transactions {
		tx.Spos = spos.Position{OpSeq: op.Number, TransNum: uint32(i), Op: 0}
		if err := decode.Apply(ctx, p.gom, tx, transaction); err != nil {
			applyErr = err
			break
		}
	}

	var result error
	if applyErr != nil {
		if fatalErr, ok := applyErr.(*decode.FatalError); ok {
			metrics.FatalDecodeErrors.Inc()
			dumpFatal(op, fatalErr)
		}
		result = applyErr
	} else if err := p.throttleCommit(ctx, batch); err != nil {
		result = err
	} else if err := tx.SubmitTransaction(ctx); err != nil {
		result = err
	}

	metrics.OpApplyDuration.Observe(time.Since(started).Seconds())
	if result == nil {
		metrics.OpsApplied.WithLabelValues("ok").Inc()
	} else {
		metrics.OpsApplied.WithLabelValues("error").Inc()
	}

	if op.OnReadableSync != nil {
		op.OnReadableSync(result)
	}
	if op.OnReadable != nil {
		p.readable <- func() { op.OnReadable(result) }
	}
	if result == nil && op.OnDisk != nil {
		p.ondisk <- func() { op.OnDisk(result) }
	}
}

// throttleCommit bounds the byte rate and concurrency of one op's pending
// commit against the configured write limits before handing batch to the
// backend, mirroring the read-side throttling store.Read applies to a
// stripe fetch.
func (p *Pipeline) throttleCommit(ctx context.Context, batch kvstore.WriteBatch) error {
	if err := p.limiter.AcquireWrite(); err != nil {
		return err
	}
	defer p.limiter.ReleaseWrite()

	n := len(batch.Data())
	if n == 0 {
		return nil
	}
	if lw := p.limiter.Writer(ctx, io.Discard); lw != nil {
		if err := lw.WaitN(n); err != nil {
			return err
		}
	}
	metrics.KVWriteBytes.Add(float64(n))
	return nil
}

// dumpFatal logs a structured dump of the op that produced a fatal decoder
// error and terminates the process: partial application of a transaction
// risks leaving on-disk state inconsistent, and the only safe recovery is
// a restart that replays from the last durable position.
func dumpFatal(op *Op, err *decode.FatalError) {
	log.Error(fmt.Sprintf(
		"pipeline: fatal error applying op, terminating: op_number=%d op=%s cid=%q oid=%q err=%v",
		op.Number, err.Op, err.Cid, err.Oid, err.Err,
	))
	os.Exit(1)
}
