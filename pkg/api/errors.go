package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/parley-hq/parley/pkg/negotiation"
	"github.com/parley-hq/parley/pkg/store"
)

// mapError translates domain errors into an HTTP status and a safe message.
func mapError(err error) (int, string) {
	if errors.Is(err, store.ErrSnapshotNotFound) || errors.Is(err, negotiation.ErrThreadNotFound) {
		return http.StatusNotFound, "negotiation not found"
	}
	var invalid *negotiation.InvalidTransitionError
	if errors.As(err, &invalid) {
		return http.StatusConflict, invalid.Error()
	}

	slog.Error("Unexpected error in API handler", "error", err)
	return http.StatusInternalServerError, "internal server error"
}
