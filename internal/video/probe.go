package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ProbeResult holds the container-level facts the ingestion pipeline
// needs: total duration and enough stream info to decide whether a
// lossless stream copy is possible.
type ProbeResult struct {
	Duration float64
	Format   string
	Streams  []StreamInfo
}

type StreamInfo struct {
	Index     int
	CodecType string // "video" or "audio"
	CodecName string
}

func (p *ProbeResult) HasVideoStream() bool {
	for _, s := range p.Streams {
		if s.CodecType == "video" {
			return true
		}
	}
	return false
}

// Prober shells out to ffprobe for container inspection.
type Prober struct {
	ffprobePath string
	logger      *zap.Logger
}

func NewProber(logger *zap.Logger) (*Prober, error) {
	path, err := exec.LookPath("ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found in PATH: %w", err)
	}
	return &Prober{ffprobePath: path, logger: logger}, nil
}

type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		Index     int    `json:"index"`
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
	} `json:"streams"`
}

// Probe returns duration and stream metadata for the file at path.
// Corrupt or unsupported containers yield ErrDurationUnavailable.
func (p *Prober) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnreadable, err)
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		p.logger.Warn("ffprobe failed",
			zap.String("path", path),
			zap.String("stderr", strings.TrimSpace(stderr.String())),
			zap.Error(err))
		return nil, fmt.Errorf("%w: ffprobe: %v", ErrDurationUnavailable, err)
	}

	var out ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("%w: parse ffprobe output: %v", ErrDurationUnavailable, err)
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64)
	if err != nil || duration <= 0 {
		return nil, fmt.Errorf("%w: no usable duration in container %q", ErrDurationUnavailable, out.Format.FormatName)
	}

	result := &ProbeResult{
		Duration: duration,
		Format:   out.Format.FormatName,
	}
	for _, s := range out.Streams {
		result.Streams = append(result.Streams, StreamInfo{
			Index:     s.Index,
			CodecType: s.CodecType,
			CodecName: s.CodecName,
		})
	}
	return result, nil
}
