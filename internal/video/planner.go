package video

import "math"

// ChunkRange is a planned [Start, End) slice of a video, in seconds.
type ChunkRange struct {
	Start float64
	End   float64
}

func (r ChunkRange) Duration() float64 {
	return r.End - r.Start
}

// PlanChunks computes the time ranges a video must be cut into so that
// every piece fits under maxChunk seconds. Videos at or under the limit
// come back as a single full range. Longer videos are split into
// ceil(duration/maxChunk) evenly sized chunks (so the last chunk is
// never a short remainder), with every internal boundary widened by
// overlap seconds on both sides: each chunk except the first starts
// overlap earlier, each chunk except the last ends overlap later.
// Content straddling a cut therefore always appears whole in at least
// one chunk.
func PlanChunks(duration, maxChunk, overlap float64) []ChunkRange {
	if duration <= 0 {
		return nil
	}
	if duration <= maxChunk || maxChunk <= 0 {
		return []ChunkRange{{Start: 0, End: duration}}
	}

	count := int(math.Ceil(duration / maxChunk))
	nominal := duration / float64(count)

	// Overlap must never exceed a chunk's own span; degenerate inputs
	// get the single full range instead of inverted boundaries.
	if overlap >= nominal {
		return []ChunkRange{{Start: 0, End: duration}}
	}
	if overlap < 0 {
		overlap = 0
	}

	ranges := make([]ChunkRange, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * nominal
		end := float64(i+1) * nominal
		if i > 0 {
			start -= overlap
		}
		if i < count-1 {
			end += overlap
		}
		if start < 0 {
			start = 0
		}
		if end > duration {
			end = duration
		}
		ranges = append(ranges, ChunkRange{Start: start, End: end})
	}
	return ranges
}
