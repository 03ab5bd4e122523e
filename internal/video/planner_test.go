package video

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanChunksShortVideo(t *testing.T) {
	ranges := PlanChunks(5400, 6600, 5)
	require.Len(t, ranges, 1)
	assert.Equal(t, 0.0, ranges[0].Start)
	assert.Equal(t, 5400.0, ranges[0].End)
}

func TestPlanChunksSplitsWithOverlap(t *testing.T) {
	// 181 minutes against a 110 minute limit: two even chunks of 5430s
	// with the internal boundary widened by 5s on each side.
	ranges := PlanChunks(10860, 6600, 5)
	require.Len(t, ranges, 2)

	assert.Equal(t, 0.0, ranges[0].Start)
	assert.InDelta(t, 5435, ranges[0].End, 0.001)
	assert.InDelta(t, 5425, ranges[1].Start, 0.001)
	assert.Equal(t, 10860.0, ranges[1].End)
}

func TestPlanChunksEvenDistribution(t *testing.T) {
	// Slightly over two limits: three chunks, none a tiny remainder.
	ranges := PlanChunks(13500, 6600, 5)
	require.Len(t, ranges, 3)

	for i, r := range ranges {
		assert.Greaterf(t, r.Duration(), 4000.0, "chunk %d too short", i)
		assert.LessOrEqualf(t, r.Duration(), 6600.0, "chunk %d exceeds limit", i)
	}
}

func TestPlanChunksProperties(t *testing.T) {
	cases := []struct {
		duration, maxChunk, overlap float64
	}{
		{7200, 6600, 5},
		{20000, 6600, 5},
		{6601, 6600, 5},
		{100000, 6600, 30},
		{6600, 6600, 5},
	}

	for _, tc := range cases {
		ranges := PlanChunks(tc.duration, tc.maxChunk, tc.overlap)
		require.NotEmpty(t, ranges)

		assert.Equal(t, 0.0, ranges[0].Start)
		assert.Equal(t, tc.duration, ranges[len(ranges)-1].End)

		expected := int(math.Ceil(tc.duration / tc.maxChunk))
		assert.Len(t, ranges, expected)

		for i := 1; i < len(ranges); i++ {
			// Consecutive chunks overlap, never gap.
			assert.LessOrEqual(t, ranges[i].Start, ranges[i-1].End,
				"gap between chunk %d and %d for duration %.0f", i-1, i, tc.duration)
			assert.Greater(t, ranges[i].Start, ranges[i-1].Start)
		}
		for i, r := range ranges {
			assert.Greaterf(t, r.Duration(), 0.0, "chunk %d empty", i)
		}
	}
}

func TestPlanChunksDegenerateInputs(t *testing.T) {
	assert.Nil(t, PlanChunks(0, 6600, 5))
	assert.Nil(t, PlanChunks(-10, 6600, 5))

	// Overlap swallowing whole chunks falls back to a single range.
	ranges := PlanChunks(100, 40, 50)
	require.Len(t, ranges, 1)
	assert.Equal(t, 100.0, ranges[0].End)

	// Negative overlap is treated as zero.
	ranges = PlanChunks(200, 100, -5)
	require.Len(t, ranges, 2)
	assert.Equal(t, 100.0, ranges[0].End)
	assert.Equal(t, 100.0, ranges[1].Start)
}
