package video

import "errors"

var (
	// ErrDurationUnavailable means the container could not be probed;
	// the item must not be embedded and gets marked failed.
	ErrDurationUnavailable = errors.New("video duration unavailable")

	ErrSourceUnreadable  = errors.New("source video unreadable")
	ErrExtractionTimeout = errors.New("chunk extraction timed out")
	ErrEncodeFailed      = errors.New("chunk re-encode failed")
)
