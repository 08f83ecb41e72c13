package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"salon-pos/internal/sale"
	"salon-pos/internal/session"
	"salon-pos/internal/storage"
)

const maxRequestBody = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body exceeds allowed size")
)

// apiError is the JSON error envelope.
type apiError struct {
	Code    string
	Message string
	Status  int
}

func newError(code, message string, status int) apiError {
	return apiError{Code: code, Message: sanitize(message, 512), Status: status}
}

func writeError(ctx context.Context, w http.ResponseWriter, e apiError) {
	status := e.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	payload := map[string]any{
		"error":   e.Code,
		"message": e.Message,
	}
	if id := middleware.GetReqID(ctx); id != "" {
		payload["request_id"] = id
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// mapError translates domain errors into the envelope.
func mapError(err error) apiError {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return newError("not_found", err.Error(), http.StatusNotFound)
	case errors.Is(err, session.ErrPackageUnavailable), errors.Is(err, sale.ErrPackageUnavailable):
		return newError("package_unavailable", err.Error(), http.StatusConflict)
	case errors.Is(err, sale.ErrSubscriptionType):
		return newError("subscription_type_failed", err.Error(), http.StatusBadGateway)
	case errors.Is(err, sale.ErrValidation),
		errors.Is(err, session.ErrUnknownService),
		errors.Is(err, session.ErrInvalidSessionCount),
		errors.Is(err, session.ErrInvalidQuantity),
		errors.Is(err, session.ErrInvalidPrice),
		errors.Is(err, session.ErrInvalidGiftSessions),
		errors.Is(err, session.ErrInstallmentMonths),
		errors.Is(err, session.ErrCertificateNotEligible):
		return newError("validation_failed", err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, context.DeadlineExceeded):
		return newError("timeout", "request timed out", http.StatusGatewayTimeout)
	}
	return newError("internal", "internal error", http.StatusInternalServerError)
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

// decodeBody reads a JSON body into dst and writes the error response
// itself. It reports whether the handler may continue.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := readLimitedBody(r, maxRequestBody)
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			writeError(r.Context(), w, newError("payload_too_large", err.Error(), http.StatusRequestEntityTooLarge))
		} else {
			writeError(r.Context(), w, newError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(r.Context(), w, newError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

func sanitize(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.TrimSpace(value)
	if runes := []rune(value); len(runes) > limit {
		value = string(runes[:limit])
	}
	return value
}
