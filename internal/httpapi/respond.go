package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/roach88/pathchain/internal/fault"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// StatusOf maps a fault code to an HTTP status.
func StatusOf(code fault.Code) int {
	switch code {
	case fault.InvalidRequest, fault.InvalidSecret, fault.UsedSecret:
		return http.StatusBadRequest
	case fault.InvalidCredentials:
		return http.StatusUnauthorized
	case fault.NotFound, fault.AncestorNotFound:
		return http.StatusNotFound
	case fault.UsernameExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError reports err. Server-side causes are logged but never sent to
// the client; only the fault message is.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := fault.CodeOf(err)
	status := StatusOf(code)
	msg := "internal error"
	var fe *fault.Error
	if errors.As(err, &fe) {
		msg = fe.Message
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "code", code, "err", err)
	}
	writeJSON(w, status, errorBody{Code: string(code), Message: msg, Retryable: code.Retryable()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fault.Wrap(fault.InvalidRequest, fmt.Sprintf("malformed request body: %v", err), err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fault.New(fault.InvalidRequest, "request body must be a single JSON object")
	}
	return nil
}
