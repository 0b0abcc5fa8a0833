package videos

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestYTDLPProviderLookup(t *testing.T) {
	provider := NewYTDLPProvider("yt-dlp", time.Second)
	provider.Run = func(ctx context.Context, binary string, args ...string) ([]byte, error) {
		if binary != "yt-dlp" {
			t.Fatalf("unexpected binary %q", binary)
		}
		wantArgs := []string{"--dump-single-json", "--no-warnings", "--no-playlist", "--skip-download", "https://example.com"}
		if len(args) != len(wantArgs) {
			t.Fatalf("unexpected args length: got %d want %d", len(args), len(wantArgs))
		}
		for i, arg := range wantArgs {
			if args[i] != arg {
				t.Fatalf("unexpected arg at %d: got %q want %q", i, args[i], arg)
			}
		}
		return []byte(`{"title":"Example","thumbnail":"thumb.jpg","duration":93.5}`), nil
	}

	meta, err := provider.Lookup(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if meta.Title != "Example" || meta.Thumbnail != "thumb.jpg" || meta.Duration != 93.5 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

func TestYTDLPProviderFallsBackToThumbnailList(t *testing.T) {
	provider := NewYTDLPProvider("", time.Second)
	provider.Run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte(`{"thumbnails":[{"url":"small.jpg"},{"url":"large.jpg"}]}`), nil
	}

	meta, err := provider.Lookup(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if meta.Thumbnail != "large.jpg" {
		t.Fatalf("expected last listed thumbnail, got %q", meta.Thumbnail)
	}
	if provider.Binary != "yt-dlp" {
		t.Fatalf("expected default binary, got %q", provider.Binary)
	}
}

func TestYTDLPProviderLookupEmptyPayload(t *testing.T) {
	provider := NewYTDLPProvider("yt-dlp", time.Second)
	provider.Run = func(ctx context.Context, binary string, args ...string) ([]byte, error) {
		return []byte(`{"title":"Only a title"}`), nil
	}

	if _, err := provider.Lookup(context.Background(), "https://example.com"); err == nil {
		t.Fatal("expected error for empty metadata")
	}
}

func TestYTDLPProviderLookupFailures(t *testing.T) {
	provider := NewYTDLPProvider("yt-dlp", time.Second)
	boom := errors.New("exit status 1")
	provider.Run = func(context.Context, string, ...string) ([]byte, error) {
		return nil, boom
	}
	if _, err := provider.Lookup(context.Background(), "https://example.com"); !errors.Is(err, boom) {
		t.Fatalf("expected runner error to be wrapped, got %v", err)
	}

	provider.Run = func(context.Context, string, ...string) ([]byte, error) {
		return []byte("not json"), nil
	}
	if _, err := provider.Lookup(context.Background(), "https://example.com"); err == nil {
		t.Fatal("expected parse error")
	}

	var nilProvider *YTDLPProvider
	if _, err := nilProvider.Lookup(context.Background(), "https://example.com"); !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestYTDLPProviderAppliesTimeout(t *testing.T) {
	provider := NewYTDLPProvider("yt-dlp", 5*time.Millisecond)
	provider.Run = func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	if _, err := provider.Lookup(context.Background(), "https://example.com"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
