package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/reelnotes/backend/internal/apperr"
	"github.com/reelnotes/backend/internal/auth"
	"github.com/reelnotes/backend/internal/logging"
)

// Stream handles GET .../comments/stream as server-sent events. Each event
// carries the full, ordered comment list; a deleted project yields an empty
// list. The stream ends when the client disconnects.
func (h CommentHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	filter, err := filterFrom(r)
	if err != nil {
		respondError(ctx, w, err)
		return
	}

	sub, err := h.Timeline.Subscribe(ctx, auth.ActorFromContext(ctx), scopeFrom(r), filter)
	if err != nil {
		respondError(ctx, w, err)
		return
	}
	defer sub.Close()

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut long-lived streams.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug("write deadline not cleared", "error", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	events := 0
	for snapshot, err := range sub.Snapshots(ctx) {
		if err != nil {
			_ = writeEvent(w, "error", errorBody{Error: errorDetail{Status: apperr.KindOf(err), Message: apperr.MessageOf(err)}})
			_ = rc.Flush()
			logger.Warn("comment stream failed", "error", err)
			return
		}
		if err := writeEvent(w, "snapshot", commentsResponse{Comments: snapshot}); err != nil {
			logger.Debug("comment stream client gone", "error", err)
			return
		}
		if err := rc.Flush(); err != nil {
			logger.Debug("comment stream flush failed", "error", err)
			return
		}
		events++
	}
	logger.Debug("comment stream closed", "events", events)
}

func writeEvent(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
