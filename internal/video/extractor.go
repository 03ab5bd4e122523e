package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Extractor cuts a time range out of a source video into an independent
// playable file. It tries a lossless stream copy first and only
// re-encodes when the container rejects copying at the requested cut
// points.
type Extractor struct {
	ffmpegPath string
	timeout    time.Duration
	logger     *zap.Logger
}

func NewExtractor(timeout time.Duration, logger *zap.Logger) (*Extractor, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Extractor{ffmpegPath: path, timeout: timeout, logger: logger}, nil
}

// Extract writes the [start, end) slice of src to dst. On any failure
// the partially written output is removed so no orphaned files remain.
func (e *Extractor) Extract(ctx context.Context, src string, start, end float64, dst string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err := e.run(ctx, src, start, end, dst, true)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrExtractionTimeout) {
		return err
	}

	// Stream copy rejected (keyframe alignment, codec constraints);
	// fall back to a re-encode of just this range.
	e.logger.Info("stream copy rejected, re-encoding chunk",
		zap.String("src", src),
		zap.Float64("start", start),
		zap.Float64("end", end))

	if err := e.run(ctx, src, start, end, dst, false); err != nil {
		if errors.Is(err, ErrExtractionTimeout) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrEncodeFailed, err)
	}
	return nil
}

func (e *Extractor) run(ctx context.Context, src string, start, end float64, dst string, streamCopy bool) error {
	args := []string{
		"-y",
		"-ss", fmt.Sprintf("%.3f", start),
		"-to", fmt.Sprintf("%.3f", end),
		"-i", src,
	}
	if streamCopy {
		args = append(args, "-c", "copy", "-avoid_negative_ts", "make_zero")
	} else {
		args = append(args, "-c:v", "libx264", "-preset", "veryfast", "-c:a", "aac")
	}
	args = append(args, dst)

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(dst)
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %v", ErrExtractionTimeout, ctx.Err())
		}
		return fmt.Errorf("ffmpeg: %v: %s", err, lastLine(stderr.String()))
	}

	// ffmpeg can exit zero yet write nothing when the cut is empty.
	info, err := os.Stat(dst)
	if err != nil || info.Size() == 0 {
		os.Remove(dst)
		return fmt.Errorf("ffmpeg produced no output for [%.2f, %.2f)", start, end)
	}
	return nil
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
