package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/chorusdev/chorus/internal/chorus/errs"
	"github.com/chorusdev/chorus/internal/ops"
)

const maxBodyBytes = 1 << 20

// timeFormat is used wherever a timestamp is rendered into a response
// field that isn't marshaled through encoding/json's default time.Time
// handling (the export envelope builds plain structs of strings).
const timeFormat = time.RFC3339

// parseTime accepts RFC3339 with or without a fractional second component,
// matching the precision clients are likely to send a commit timestamp in.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// decodeJSON reads and strictly decodes a JSON request body, rejecting
// unknown fields the way a typo in a client payload should be rejected
// rather than silently ignored.
func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Validation("invalid request body: %s", err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeRaw(w, http.StatusInternalServerError, json.RawMessage(`{"error":{"code":"INTERNAL_ERROR","message":"encode response"}}`))
		return
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

// writeResult writes an ops.Result as-is: its status code and body were
// already computed (possibly replayed from an idempotency record) by the
// operation itself.
func writeResult(w http.ResponseWriter, res *ops.Result) {
	writeRaw(w, res.StatusCode, res.Body)
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	RequestID string         `json:"request_id"`
}

// mapStatus translates a domain error code to an HTTP status, mirroring
// the teacher's mapDomainError boundary translation.
func mapStatus(err *errs.Err) int {
	switch {
	case errors.Is(err, errs.ErrCallerMismatch):
		return http.StatusForbidden
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errs.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrInvalidStatusTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrInvalidReadinessState):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrLockConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError translates err into the JSON error envelope. Domain errors
// (*errs.Err) carry their own code and details; anything else is an
// unclassified internal failure: the full diagnostic is logged here and
// the caller only ever sees a generic message, per the error handling
// design's "no error kind leaks internals" rule.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := requestIDFromContext(r.Context())

	var e *errs.Err
	if !errors.As(err, &e) {
		s.log.Error().Err(err).Str("request_id", requestID).Msg("unclassified internal error")
		writeJSON(w, r, http.StatusInternalServerError, errorEnvelope{Error: errorBody{
			Code: string(errs.CodeInternalError), Message: "internal error", RequestID: requestID,
		}})
		return
	}

	writeJSON(w, r, mapStatus(e), errorEnvelope{Error: errorBody{
		Code: string(e.Code), Message: e.Message, Details: e.Details, RequestID: requestID,
	}})
}
