package httpapi

import (
	"net/http"
	"time"

	"github.com/chorusdev/chorus/internal/chorus/derived"
	"github.com/chorusdev/chorus/internal/chorus/errs"
	"github.com/chorusdev/chorus/internal/chorus/types"
)

type taskContextResponse struct {
	Task             types.EnrichedTask `json:"task"`
	Ancestors        []ancestryItem     `json:"ancestors"`
	WorkLog          []*types.WorkLogEntry `json:"work_log"`
	Commits          []*types.TaskCommit   `json:"commits,omitempty"`
	ContextCapturedAt *time.Time        `json:"context_captured_at,omitempty"`
	ContextFreshness string             `json:"context_freshness"`
	StaleReasons     []string           `json:"stale_reasons"`
}

// getTaskContext answers "is this task's captured context still fresh
// relative to its ancestors": context_captured_at is nil or any ancestor
// was updated after it makes the context stale, and the response names
// which ancestors caused it.
func (s *Server) getTaskContext(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	includeCommits := r.URL.Query().Get("include_commits") == "true"

	node, err := s.store.LoadSubtree(ctx, id, -1)
	if err != nil {
		s.writeError(w, r, errs.NotFound("task %s not found", id))
		return
	}
	now := s.clock()
	enriched := derived.Enrich(node, now)

	chain, err := s.store.LoadAncestry(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ancestors := chain
	if len(ancestors) > 0 {
		ancestors = ancestors[:len(ancestors)-1]
	}

	workLog, err := s.store.ListWorkLog(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var commits []*types.TaskCommit
	if includeCommits {
		commits, err = s.store.ListCommits(ctx, id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	var staleReasons []string
	freshness := "fresh"
	capturedAt := node.Task.ContextCapturedAt
	if capturedAt == nil {
		freshness = "stale"
		staleReasons = append(staleReasons, "Context never captured")
	} else {
		for _, a := range ancestors {
			if a.UpdatedAt.After(*capturedAt) {
				staleReasons = append(staleReasons, a.Name+" (updated "+a.UpdatedAt.UTC().Format(timeFormat)+")")
			}
		}
		if len(staleReasons) > 0 {
			freshness = "stale"
		}
	}

	writeJSON(w, r, http.StatusOK, taskContextResponse{
		Task: enriched, Ancestors: ancestryItemsFrom(ancestors), WorkLog: workLog, Commits: commits,
		ContextCapturedAt: capturedAt, ContextFreshness: freshness, StaleReasons: staleReasons,
	})
}
