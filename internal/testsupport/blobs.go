package testsupport

import (
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/reelnotes/backend/internal/storage"
)

// Blobs is an in-memory object store.
type Blobs struct {
	mu      sync.Mutex
	objects map[string]blob

	// Fail, when set, is returned by every call.
	Fail error
}

type blob struct {
	data        []byte
	contentType string
	modified    time.Time
}

// NewBlobs returns an empty store.
func NewBlobs() *Blobs {
	return &Blobs{objects: make(map[string]blob)}
}

// Put stores the body under key.
func (b *Blobs) Put(_ context.Context, key string, body io.Reader, contentType string) (string, error) {
	if b.Fail != nil {
		return "", b.Fail
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	b.mu.Lock()
	b.objects[key] = blob{data: data, contentType: contentType, modified: time.Now().UTC()}
	b.mu.Unlock()
	return "https://blobs.test/" + key, nil
}

// PresignGet returns a fake signed URL.
func (b *Blobs) PresignGet(_ context.Context, key string) (string, error) {
	if b.Fail != nil {
		return "", b.Fail
	}
	return "https://blobs.test/" + key + "?signature=test", nil
}

// List returns objects under prefix ordered by key.
func (b *Blobs) List(_ context.Context, prefix string) ([]storage.Object, error) {
	if b.Fail != nil {
		return nil, b.Fail
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []storage.Object{}
	for key, obj := range b.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.Object{Key: key, Size: int64(len(obj.data)), LastModified: obj.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes key.
func (b *Blobs) Delete(_ context.Context, key string) error {
	if b.Fail != nil {
		return b.Fail
	}
	b.mu.Lock()
	delete(b.objects, key)
	b.mu.Unlock()
	return nil
}

// DeletePrefix removes everything under prefix.
func (b *Blobs) DeletePrefix(_ context.Context, prefix string) (int, error) {
	if b.Fail != nil {
		return 0, b.Fail
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for key := range b.objects {
		if strings.HasPrefix(key, prefix) {
			delete(b.objects, key)
			removed++
		}
	}
	return removed, nil
}

// Exists reports whether key is stored.
func (b *Blobs) Exists(_ context.Context, key string) (bool, error) {
	if b.Fail != nil {
		return false, b.Fail
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok, nil
}

// Data returns the stored bytes for key.
func (b *Blobs) Data(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	obj, ok := b.objects[key]
	return obj.data, ok
}

// Keys lists every stored key in order.
func (b *Blobs) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.objects))
	for key := range b.objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

var _ storage.Blobs = (*Blobs)(nil)
