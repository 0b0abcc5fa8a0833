package videos

import "errors"

var (
	// ErrProviderUnavailable indicates the metadata provider is not configured.
	ErrProviderUnavailable = errors.New("video metadata provider unavailable")
	// ErrEnricherClosed is returned by Enqueue after Shutdown.
	ErrEnricherClosed = errors.New("metadata enricher closed")
)
