package httpapi

import (
	"net/http"
	"sort"

	"github.com/chorusdev/chorus/internal/chorus/derived"
	"github.com/chorusdev/chorus/internal/chorus/errs"
	"github.com/chorusdev/chorus/internal/chorus/idgen"
	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/store"
)

type projectCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

type projectUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req projectCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Name == "" {
		s.writeError(w, r, errs.Validation("name is required"))
		return
	}

	id, err := idgen.New("prj")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	now := s.clock()
	project := &types.Project{ID: id, Name: req.Name, Description: req.Description, CreatedAt: now, UpdatedAt: now}
	if err := s.store.CreateProject(r.Context(), project); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, project)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, projects)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		s.writeError(w, r, errs.NotFound("project %s not found", id))
		return
	}
	writeJSON(w, r, http.StatusOK, project)
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req projectUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		s.writeError(w, r, errs.NotFound("project %s not found", id))
		return
	}
	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	project.UpdatedAt = s.clock()
	if err := s.store.UpdateProject(r.Context(), project); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, project)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetProject(r.Context(), id); err != nil {
		s.writeError(w, r, errs.NotFound("project %s not found", id))
		return
	}
	if err := s.store.DeleteProject(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getProjectTasks(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetProject(r.Context(), id); err != nil {
		s.writeError(w, r, errs.NotFound("project %s not found", id))
		return
	}
	nodes, err := s.store.ListProjectTasks(r.Context(), id, store.TaskFilter{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	now := s.clock()
	enriched := make([]types.EnrichedTask, 0, len(nodes))
	for _, n := range nodes {
		enriched = append(enriched, derived.Enrich(n, now))
	}
	writeJSON(w, r, http.StatusOK, enriched)
}

type exportWorkLogEntry struct {
	ID        string                  `json:"id"`
	TaskID    string                  `json:"task_id"`
	Author    string                  `json:"author,omitempty"`
	Operation types.WorkLogOperation  `json:"operation"`
	Content   string                  `json:"content"`
	CreatedAt string                  `json:"created_at"`
}

type exportCommit struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	Author      string `json:"author,omitempty"`
	CommitHash  string `json:"commit_hash"`
	Message     string `json:"message,omitempty"`
	CommittedAt string `json:"committed_at"`
}

type exportTask struct {
	ID           string               `json:"id"`
	ParentTaskID *string              `json:"parent_task_id,omitempty"`
	Name         string               `json:"name"`
	Description  string               `json:"description,omitempty"`
	Context      string               `json:"context,omitempty"`
	TaskType     types.TaskType       `json:"task_type"`
	Status       types.Status         `json:"status"`
	Points       *int                 `json:"points"`
	Position     int                  `json:"position"`
	CreatedAt    string               `json:"created_at"`
	UpdatedAt    string               `json:"updated_at"`
	WorkLog      []exportWorkLogEntry `json:"work_log_entries"`
	Commits      []exportCommit       `json:"commits"`
}

type projectExportResponse struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	CreatedAt   string       `json:"created_at"`
	UpdatedAt   string       `json:"updated_at"`
	ExportedAt  string       `json:"exported_at"`
	Tasks       []exportTask `json:"tasks"`
}

// exportProject returns the full project envelope: every task ordered by
// position with its work log and commits inlined, no locks or derived
// fields, per spec.md §6's export format.
func (s *Server) exportProject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		s.writeError(w, r, errs.NotFound("project %s not found", id))
		return
	}

	nodes, err := s.store.ListProjectTasks(ctx, id, store.TaskFilter{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	tasks := make([]exportTask, 0, len(nodes))
	for _, n := range nodes {
		t := n.Task
		workLog, err := s.store.ListWorkLog(ctx, t.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		commits, err := s.store.ListCommits(ctx, t.ID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		entries := make([]exportWorkLogEntry, 0, len(workLog))
		for _, e := range workLog {
			entries = append(entries, exportWorkLogEntry{
				ID: e.ID, TaskID: e.TaskID, Author: e.Author,
				Operation: e.Operation, Content: e.Content, CreatedAt: e.CreatedAt.UTC().Format(timeFormat),
			})
		}
		commitList := make([]exportCommit, 0, len(commits))
		for _, c := range commits {
			commitList = append(commitList, exportCommit{
				ID: c.ID, TaskID: c.TaskID, Author: c.Author,
				CommitHash: c.CommitHash, Message: c.Message, CommittedAt: c.CommittedAt.UTC().Format(timeFormat),
			})
		}

		tasks = append(tasks, exportTask{
			ID: t.ID, ParentTaskID: t.ParentTaskID, Name: t.Name, Description: t.Description,
			Context: t.Context, TaskType: t.TaskType, Status: t.Status, Points: t.Points,
			Position: t.Position, CreatedAt: t.CreatedAt.UTC().Format(timeFormat), UpdatedAt: t.UpdatedAt.UTC().Format(timeFormat),
			WorkLog: entries, Commits: commitList,
		})
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].Position < tasks[j].Position })

	writeJSON(w, r, http.StatusOK, projectExportResponse{
		ID: project.ID, Name: project.Name, Description: project.Description,
		CreatedAt: project.CreatedAt.UTC().Format(timeFormat), UpdatedAt: project.UpdatedAt.UTC().Format(timeFormat),
		ExportedAt: s.clock().UTC().Format(timeFormat), Tasks: tasks,
	})
}
