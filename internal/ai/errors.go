package ai

import "errors"

var (
	// ErrQuotaExceeded maps provider 429 responses. Never retried
	// inline: ingestion leaves the item pending for a later pass and
	// query-time callers fall back to metadata search.
	ErrQuotaExceeded = errors.New("embedding provider quota exceeded")

	// ErrInvalidInput maps hard 4xx rejections (unsupported format,
	// duration still over the limit). The item is marked failed.
	ErrInvalidInput = errors.New("embedding provider rejected input")

	ErrProviderTimeout = errors.New("embedding provider timed out")

	// ErrProviderUnavailable maps 5xx responses and transport failures
	// that survived the retry loop. Like quota and timeout, it means
	// the provider cannot answer right now, not that the input is bad.
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
)

// IsProviderUnavailable reports whether err is the kind of provider
// failure that should trigger the metadata fallback at query time
// rather than surfacing to the caller.
func IsProviderUnavailable(err error) bool {
	return errors.Is(err, ErrQuotaExceeded) ||
		errors.Is(err, ErrProviderTimeout) ||
		errors.Is(err, ErrProviderUnavailable)
}
