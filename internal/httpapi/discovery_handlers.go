package httpapi

import (
	"net/http"
	"strconv"

	"github.com/chorusdev/chorus/internal/chorus/errs"
	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/discovery"
	"github.com/chorusdev/chorus/internal/store"
)

// pageFromQuery parses limit/offset query params, falling back to
// store.DefaultPage for anything missing or malformed.
func pageFromQuery(q map[string][]string) store.Page {
	page := store.DefaultPage
	if v := firstQuery(q, "limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page.Limit = n
		}
	}
	if v := firstQuery(q, "offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			page.Offset = n
		}
	}
	return page
}

func firstQuery(q map[string][]string, key string) string {
	if vs, ok := q[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func (s *Server) backlog(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetProject(r.Context(), id); err != nil {
		s.writeError(w, r, errs.NotFound("project %s not found", id))
		return
	}
	tasks, err := s.discovery.Backlog(r.Context(), id, pageFromQuery(r.URL.Query()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tasks)
}

func (s *Server) inProgress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetProject(r.Context(), id); err != nil {
		s.writeError(w, r, errs.NotFound("project %s not found", id))
		return
	}
	tasks, err := s.discovery.InProgress(r.Context(), id, pageFromQuery(r.URL.Query()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tasks)
}

func (s *Server) needsRefinement(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetProject(r.Context(), id); err != nil {
		s.writeError(w, r, errs.NotFound("project %s not found", id))
		return
	}
	tasks, err := s.discovery.NeedsRefinement(r.Context(), id, pageFromQuery(r.URL.Query()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tasks)
}

func (s *Server) available(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// An unrecognized operation yields an empty result set rather than an
	// error: discovery.Available returns [] for it.
	op := discovery.Operation(firstQuery(q, "operation"))

	filter := discovery.AvailableFilter{ProjectID: firstQuery(q, "project_id")}
	if v := firstQuery(q, "task_type"); v != "" {
		taskType := types.TaskType(v)
		if !taskType.IsValid() {
			s.writeError(w, r, errs.Validation("invalid task_type %q", v))
			return
		}
		filter.TaskType = &taskType
	}
	if v := firstQuery(q, "min_points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, errs.Validation("invalid min_points %q", v))
			return
		}
		filter.MinPoints = &n
	}
	if v := firstQuery(q, "max_points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, r, errs.Validation("invalid max_points %q", v))
			return
		}
		filter.MaxPoints = &n
	}

	tasks, err := s.discovery.Available(r.Context(), op, filter, pageFromQuery(q))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tasks)
}
