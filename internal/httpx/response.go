// Package httpx holds the JSON envelope shared by every handler and the
// single translator from business errors to HTTP responses.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"storefront-be/internal/apperr"
	"storefront-be/internal/logger"

	"go.uber.org/zap"
)

const internalMessage = "Internal server error"

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	write(w, status, envelope{Success: true, Data: data})
}

// WriteError maps err to a status code and writes {success:false, message}.
// Unclassified errors are logged and collapsed to a generic message.
func WriteError(ctx context.Context, w http.ResponseWriter, err error) {
	appErr, ok := apperr.As(err)
	if !ok || appErr.Kind == apperr.KindInternal {
		logger.FromCtx(ctx).Error("unhandled error", zap.Error(err))
		write(w, http.StatusInternalServerError, envelope{Message: internalMessage})
		return
	}

	write(w, appErr.HTTPStatus(), envelope{Message: appErr.Message})
}

// WriteMessage writes an error envelope with an explicit status.
func WriteMessage(w http.ResponseWriter, status int, message string) {
	write(w, status, envelope{Message: message})
}

// DecodeJSON decodes the request body into dst. An empty body is allowed
// when optional is true.
func DecodeJSON(r *http.Request, dst any, optional bool) error {
	if r.Body == nil || r.Body == http.NoBody {
		if optional {
			return nil
		}
		return apperr.Validation("invalid_body", "Request body is required")
	}

	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return apperr.Validation("invalid_body", "Invalid JSON body")
	}
	return nil
}

func write(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
