/*
 *
 * Copyright 2023 CubeFS authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

/*

# objectstore: an object storage backend over a generic KV engine

objectstore implements the part of a distributed filesystem's object storage
backend that sits directly on top of an ordered key-value engine: collections
of objects, each with a byte-addressable data stream, a flat attribute map,
and a sorted secondary key map ("omap") with its own header blob.

## Why a KV-backed object store?

1, a single ordered KV engine (column families, atomic multi-key write
batches, prefix iteration) is enough to express byte-range storage, attrs,
and a sorted secondary index, without a bespoke on-disk format.

2, every mutation funnels through one entry point, queue_transactions, which
makes the commit path auditable and easy to make idempotent under replay.

3, separating "where bytes for a byte range live" (the strip engine) from
"how a batch of heterogeneous ops becomes one atomic commit" (the buffered
transaction) from "in what order do commits happen" (the sequencer pipeline)
keeps each piece small enough to reason about on its own.

## Data model

* Collection (cid), a namespace with attributes but no data payload of its
  own. A distinguished meta-collection holds one synthetic object per real
  collection, carrying that collection's header and attributes.

* Object (cid, oid), addressed by a header that tracks strip_size, max_size,
  a sparse presence bitmap over fixed-size stripes, and the SequencerPosition
  of its last applied mutation.

* Five KV namespaces per object: stripe data, flat attrs, sorted omap, the
  omap header, and (for the meta-collection) collection attrs.

## Architecture

objectstore has three tightly coupled subsystems:

* Strip Engine (package strip) -- turns byte-range reads/writes/truncates
  into fixed-size stripe-key operations against a sparse presence bitmap.

* Buffered Transaction (package txn) -- caches in-flight header and stripe
  mutations for the lifetime of one pipeline op so that later operations in
  the same op observe earlier ones, then commits as one KV write batch.

* Sequencer / Op Pipeline (package pipeline) -- assigns each op a
  monotonically increasing number under a submit mutex, preserves per-caller
  FIFO order via a worker pool, and fans out on-readable/on-disk completions.

Two supporting packages round out the core: objectmap, the generic
per-(collection, object) header map over the KV engine that strip and txn
both depend on; and decode, which walks the opaque transaction op stream
produced by the upper-layer protocol and dispatches to txn primitives.

Everything above the transaction stream -- the protocol that produces it,
and cluster-level replication and recovery -- lives outside this module.
The module does carry Prometheus counters (package metrics) and a minimal
daemon entry point (cmd/objectstored).

*/
package objectstore
