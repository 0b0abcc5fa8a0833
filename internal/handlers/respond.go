package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/reelnotes/backend/internal/apperr"
	"github.com/reelnotes/backend/internal/logging"
)

// maxJSONBody bounds request bodies decoded as JSON.
const maxJSONBody = 1 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Status  apperr.Kind `json:"status"`
	Message string      `json:"message"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
	}
}

// respondError writes err using its apperr kind. Causes of internal failures
// are logged and never sent to the client.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	logger := logging.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Warn("request rejected", "status", status, "kind", kind, "error", err)
	}

	respondJSON(ctx, w, status, errorBody{Error: errorDetail{Status: kind, Message: apperr.MessageOf(err)}})
}

func respondKind(ctx context.Context, w http.ResponseWriter, kind apperr.Kind, message string) {
	respondError(ctx, w, apperr.New(kind, message))
}

// decodeJSON reads a JSON request body into dst. An empty body leaves dst untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Wrap(apperr.InvalidArgument, "invalid request body", err)
	}
	return nil
}
