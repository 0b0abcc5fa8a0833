package httpserver

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestShutdownEndsRequestContexts(t *testing.T) {
	started := make(chan struct{})
	ended := make(chan struct{})
	handler := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	srv := New(0, handler, nil)
	ctx := srv.inner.BaseContext(nil)
	go func() {
		close(started)
		<-ctx.Done()
		close(ended)
	}()
	<-started

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("request base context was not cancelled")
	}

	if err := srv.Start(); !errors.Is(err, http.ErrServerClosed) {
		t.Fatalf("expected ErrServerClosed after shutdown, got %v", err)
	}
}
