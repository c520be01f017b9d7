package pipeline

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/c360/exchangegate/errors"
	"github.com/c360/exchangegate/message"
)

// ErrorResponder answers the exchange attached to a failed unit.
type ErrorResponder func(ctx context.Context, unit *message.Unit, err error)

// StatusForError maps a classified error to an HTTP status.
func StatusForError(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.IsInvalid(err):
		return http.StatusBadRequest
	case errors.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// MessageForStatus returns the client-facing message for status. Internal
// error details never reach the client.
func MessageForStatus(status int) string {
	switch status {
	case http.StatusServiceUnavailable:
		return "Server Busy"
	default:
		return http.StatusText(status)
	}
}

// NewErrorResponder returns the default responder. It writes a JSON error
// through the exchange's guarded commit and ignores losing the race.
func NewErrorResponder(logger *slog.Logger) ErrorResponder {
	if logger == nil {
		logger = slog.Default()
	}
	return func(_ context.Context, unit *message.Unit, err error) {
		state := unit.Exchange()
		if state == nil {
			logger.Warn("Unit failed without an exchange to answer", "unit", unit.ID(), "error", err)
			return
		}

		status := StatusForError(err)
		werr := state.RespondError(status, MessageForStatus(status))
		switch {
		case werr == nil:
			logger.Debug("Error response written", "unit", unit.ID(), "status", status, "error", err)
		case errors.IsAlreadyCommitted(werr), errors.IsClientGone(werr):
			logger.Debug("Error response not written", "unit", unit.ID(), "reason", werr)
		default:
			logger.Warn("Failed to write error response", "unit", unit.ID(), "error", werr)
		}
	}
}
