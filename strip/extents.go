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

// Package strip translates byte-range reads, writes, and truncations into
// operations on fixed-size stripe keys, maintaining the sparse presence
// bitmap that tracks which stripes actually exist in the KV backend.
package strip

// Extent is one planned piece of work within a single stripe: intra-stripe
// offset and length covering part (or all) of that stripe.
type Extent struct {
	StripeNo    uint64
	IntraOffset uint64
	Length      uint64
}

// PlanExtents covers [offset, offset+length) with an ordered sequence of
// per-stripe extents. The first extent may be partial on the left, the last
// may be partial on the right, and any extents in between are full stripes.
// PlanExtents emits nothing for length==0, and otherwise the sum of the
// returned extents' Length fields always equals length.
func PlanExtents(offset, length, stripSize uint64) []Extent {
	if length == 0 {
		return nil
	}

	var extents []Extent
	end := offset + length
	pos := offset
	for pos < end {
		stripeNo := pos / stripSize
		intraOffset := pos % stripSize
		stripeEnd := (stripeNo + 1) * stripSize
		segEnd := end
		if stripeEnd < segEnd {
			segEnd = stripeEnd
		}
		extents = append(extents, Extent{
			StripeNo:    stripeNo,
			IntraOffset: intraOffset,
			Length:      segEnd - pos,
		})
		pos = segEnd
	}
	return extents
}
