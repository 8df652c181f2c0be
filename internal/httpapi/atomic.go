package httpapi

import (
	"net/http"

	"github.com/chorusdev/chorus/internal/chorus/errs"
	"github.com/chorusdev/chorus/internal/chorus/idgen"
	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/ops"
)

func idempotencyKey(r *http.Request) *string {
	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		return nil
	}
	return &key
}

func (s *Server) sizeTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var payload ops.SizingPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.ops.Size(r.Context(), id, payload, idempotencyKey(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

func (s *Server) breakdownTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var payload ops.BreakdownPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.ops.Breakdown(r.Context(), id, payload, idempotencyKey(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

func (s *Server) refineTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var payload ops.RefinePayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.ops.Refine(r.Context(), id, payload, idempotencyKey(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

func (s *Server) flagRefinement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var payload ops.FlagRefinementPayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	enriched, err := s.ops.FlagRefinement(r.Context(), id, payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, enriched)
}

func (s *Server) completeTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var payload ops.CompletePayload
	if err := decodeJSON(r, &payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.ops.Complete(r.Context(), id, payload, idempotencyKey(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeResult(w, res)
}

type workLogCreateRequest struct {
	Operation types.WorkLogOperation `json:"operation"`
	Content   string                 `json:"content"`
	Author    string                 `json:"author,omitempty"`
}

// createWorkLog appends a standalone work log entry outside any atomic
// operation — the "note" operation and any other direct append.
func (s *Server) createWorkLog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req workLogCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Content == "" {
		s.writeError(w, r, errs.Validation("content is required"))
		return
	}
	if !req.Operation.IsValid() {
		s.writeError(w, r, errs.Validation("invalid operation %q", req.Operation))
		return
	}
	if _, err := s.store.GetTask(r.Context(), id); err != nil {
		s.writeError(w, r, errs.NotFound("task %s not found", id))
		return
	}

	entryID, err := idgen.New("wle")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entry := &types.WorkLogEntry{
		ID: entryID, TaskID: id, Author: req.Author, Operation: req.Operation,
		Content: req.Content, CreatedAt: s.clock(),
	}
	if err := s.store.AppendWorkLog(r.Context(), entry); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, entry)
}

func (s *Server) getWorkLog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entries, err := s.store.ListWorkLog(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entries)
}

type commitCreateRequest struct {
	CommitHash  string `json:"commit_hash"`
	Message     string `json:"message,omitempty"`
	Author      string `json:"author,omitempty"`
	CommittedAt string `json:"committed_at,omitempty"`
}

func (s *Server) createCommit(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req commitCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.CommitHash) != 40 {
		s.writeError(w, r, errs.Validation("commit_hash must be 40 hex characters"))
		return
	}
	if _, err := s.store.GetTask(r.Context(), id); err != nil {
		s.writeError(w, r, errs.NotFound("task %s not found", id))
		return
	}

	committedAt := s.clock()
	if req.CommittedAt != "" {
		parsed, err := parseTime(req.CommittedAt)
		if err != nil {
			s.writeError(w, r, errs.Validation("invalid committed_at: %s", err.Error()))
			return
		}
		committedAt = parsed
	}

	commitID, err := idgen.New("cmt")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	commit := &types.TaskCommit{
		ID: commitID, TaskID: id, Author: req.Author, CommitHash: req.CommitHash,
		Message: req.Message, CommittedAt: committedAt,
	}
	if err := s.store.CreateCommit(r.Context(), commit); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, commit)
}

func (s *Server) getCommits(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	commits, err := s.store.ListCommits(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, commits)
}
