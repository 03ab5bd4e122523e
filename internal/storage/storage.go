package storage

import "io"

// FileInfo describes an incoming blob.
type FileInfo struct {
	Filename    string
	ContentType string
	Size        int64
}

// Storage is the durable blob boundary: save a stream under a new
// locator, read it back, delete it. Locators are opaque to callers.
type Storage interface {
	Save(r io.Reader, info FileInfo) (string, error)
	Open(locator string) (io.ReadSeekCloser, error)
	Delete(locator string) error

	// LocalPath resolves a locator to an absolute filesystem path for
	// tools that must address the blob directly (ffmpeg, ffprobe).
	LocalPath(locator string) (string, error)

	// AllocateChunk reserves a locator for a derived chunk file next to
	// its parent blob and returns both locator and absolute path.
	AllocateChunk(parentLocator string, chunkIndex int) (locator string, path string, err error)
}
