package videos

import "context"

// Metadata captures the details ReelNotes records for a linked video.
type Metadata struct {
	Title     string
	Thumbnail string
	Duration  float64
}

// Provider returns metadata for the supplied video URL.
type Provider interface {
	Lookup(ctx context.Context, url string) (Metadata, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, url string) (Metadata, error)

// Lookup calls f.
func (f ProviderFunc) Lookup(ctx context.Context, url string) (Metadata, error) {
	return f(ctx, url)
}
