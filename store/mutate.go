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

package store

import (
	"github.com/cubefs/objectstore/decode"
	"github.com/cubefs/objectstore/pipeline"
)

// QueueTransactions is the single mutation entry point: every write against
// the store, whatever its shape, flows through here as an opaque list of
// decoder transactions. If seq is nil, the transactions run under a
// private one-shot sequencer with no ordering relationship to any other
// caller. The three callbacks mirror the pipeline's own completion model
// and may be nil.
func (s *Store) QueueTransactions(seq *pipeline.OpSequencer, transactions []decode.Transaction, onReadableSync, onReadable, onDisk func(error)) {
	if seq == nil {
		seq = pipeline.NewOpSequencer()
	}
	s.pipeline.Submit(seq, &pipeline.Op{
		Transactions:   transactions,
		OnReadableSync: onReadableSync,
		OnReadable:     onReadable,
		OnDisk:         onDisk,
	})
}
