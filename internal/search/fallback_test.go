package search

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackPhotoScoring(t *testing.T) {
	env := newTestEnv(t)
	fallback := NewFallback(env.media)
	now := time.Now().UTC()

	env.seedPhoto(t, "alice", "sunset_beach_2024.jpg", nil, nil, now)
	env.seedPhoto(t, "alice", "IMG_4502.jpg", []string{"sunset", "holiday"}, nil, now)
	env.seedPhoto(t, "alice", "mountains.jpg", nil, nil, now)

	photos, _, err := fallback.SearchByText(context.Background(), "sunset", 10, 10, "", "")
	require.NoError(t, err)
	require.Len(t, photos, 2)

	// Filename match (0.5) outranks tag match (0.3).
	assert.Equal(t, "sunset_beach_2024.jpg", photos[0].Filename)
	assert.InDelta(t, 0.5, photos[0].Score, 1e-9)
	assert.Equal(t, "IMG_4502.jpg", photos[1].Filename)
	assert.InDelta(t, 0.3, photos[1].Score, 1e-9)
}

func TestFallbackVideoScoringAndSpan(t *testing.T) {
	env := newTestEnv(t)
	fallback := NewFallback(env.media)

	env.seedVideo(t, "alice", "beach_day.mp4", "Beach volleyball", []string{"beach"}, 3600)

	_, videos, err := fallback.SearchByText(context.Background(), "beach", 10, 10, "", "")
	require.NoError(t, err)
	require.Len(t, videos, 1)

	// Filename 0.4 + title 0.4 + tag 0.2, capped at 1.0.
	assert.InDelta(t, 1.0, videos[0].Score, 1e-9)

	// A metadata hit spans the whole video.
	assert.Equal(t, 0.0, videos[0].StartTime)
	assert.Equal(t, 3600.0, videos[0].EndTime)
	assert.Empty(t, videos[0].SegmentID)
}

func TestFallbackScoreCap(t *testing.T) {
	env := newTestEnv(t)
	fallback := NewFallback(env.media)
	now := time.Now().UTC()

	// Three keywords all hitting filename and tags would sum to 2.4
	// uncapped.
	env.seedPhoto(t, "alice", "red_car_race.jpg", []string{"red", "car", "race"}, nil, now)

	photos, _, err := fallback.SearchByText(context.Background(), "red car race", 10, 10, "", "")
	require.NoError(t, err)
	require.Len(t, photos, 1)
	assert.Equal(t, 1.0, photos[0].Score)
}

func TestFallbackMatchingIsCaseInsensitiveSubstring(t *testing.T) {
	env := newTestEnv(t)
	fallback := NewFallback(env.media)
	now := time.Now().UTC()

	env.seedPhoto(t, "alice", "Sunset_Beach.JPG", nil, nil, now)

	photos, _, err := fallback.SearchByText(context.Background(), "SUNSET", 10, 10, "", "")
	require.NoError(t, err)
	require.Len(t, photos, 1)
}

func TestFallbackIgnoresIndexStatus(t *testing.T) {
	env := newTestEnv(t)
	fallback := NewFallback(env.media)
	now := time.Now().UTC()

	// A pending photo with no vector is still findable by name.
	env.seedPhoto(t, "alice", "sunset.jpg", nil, nil, now)

	photos, _, err := fallback.SearchByText(context.Background(), "sunset", 10, 10, "", "")
	require.NoError(t, err)
	assert.Len(t, photos, 1)
}

func TestFallbackEmptyQuery(t *testing.T) {
	env := newTestEnv(t)
	fallback := NewFallback(env.media)

	photos, videos, err := fallback.SearchByText(context.Background(), "   ", 10, 10, "", "")
	require.NoError(t, err)
	assert.Empty(t, photos)
	assert.Empty(t, videos)
}

func TestExtractKeywords(t *testing.T) {
	assert.Equal(t, []string{"sunset", "beach"}, extractKeywords("Sunset BEACH sunset"))
	assert.Nil(t, extractKeywords("   "))
}
