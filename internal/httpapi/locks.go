package httpapi

import (
	"net/http"

	"github.com/chorusdev/chorus/internal/chorus/errs"
	"github.com/chorusdev/chorus/internal/chorus/types"
)

type lockAcquireRequest struct {
	CallerLabel string            `json:"caller_label"`
	LockPurpose types.LockPurpose `json:"lock_purpose"`
}

func (s *Server) acquireLock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req lockAcquireRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.CallerLabel == "" {
		s.writeError(w, r, errs.Validation("caller_label is required"))
		return
	}
	if !req.LockPurpose.IsValid() {
		s.writeError(w, r, errs.Validation("invalid lock_purpose %q", req.LockPurpose))
		return
	}
	lock, err := s.locks.Acquire(r.Context(), id, req.LockPurpose, req.CallerLabel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, lock)
}

func (s *Server) heartbeatLock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	callerLabel := r.URL.Query().Get("caller_label")
	if callerLabel == "" {
		s.writeError(w, r, errs.Validation("caller_label is required"))
		return
	}
	lock, err := s.locks.Heartbeat(r.Context(), id, callerLabel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, lock)
}

func (s *Server) releaseLock(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	callerLabel := r.URL.Query().Get("caller_label")
	if callerLabel == "" {
		s.writeError(w, r, errs.Validation("caller_label is required"))
		return
	}
	force := r.URL.Query().Get("force") == "true"
	if err := s.locks.Release(r.Context(), id, callerLabel, force); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
