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

package strip

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPlanExtentsEmpty(t *testing.T) {
	require.Nil(t, PlanExtents(0, 0, 4))
}

func TestPlanExtentsWithinOneStripe(t *testing.T) {
	extents := PlanExtents(2, 2, 4)
	require.Equal(t, []Extent{{StripeNo: 0, IntraOffset: 2, Length: 2}}, extents)
}

func TestPlanExtentsSpanningMultipleStripes(t *testing.T) {
	extents := PlanExtents(2, 8, 4)
	require.Equal(t, []Extent{
		{StripeNo: 0, IntraOffset: 2, Length: 2},
		{StripeNo: 1, IntraOffset: 0, Length: 4},
		{StripeNo: 2, IntraOffset: 0, Length: 2},
	}, extents)

	var sum uint64
	for _, e := range extents {
		sum += e.Length
	}
	require.Equal(t, uint64(8), sum)
}

func TestPlanExtentsAlignedFullStripes(t *testing.T) {
	extents := PlanExtents(0, 8, 4)
	require.Equal(t, []Extent{
		{StripeNo: 0, IntraOffset: 0, Length: 4},
		{StripeNo: 1, IntraOffset: 0, Length: 4},
	}, extents)
}
