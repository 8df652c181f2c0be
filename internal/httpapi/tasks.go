package httpapi

import (
	"net/http"
	"sort"
	"time"

	"github.com/chorusdev/chorus/internal/chorus/derived"
	"github.com/chorusdev/chorus/internal/chorus/errs"
	"github.com/chorusdev/chorus/internal/chorus/idgen"
	"github.com/chorusdev/chorus/internal/chorus/types"
)

type taskCreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Context     string `json:"context,omitempty"`
	TaskType    string `json:"task_type"`
	Position    *int   `json:"position,omitempty"`
}

type taskUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Context     *string `json:"context,omitempty"`
	TaskType    *string `json:"task_type,omitempty"`
}

func (s *Server) createTaskUnder(w http.ResponseWriter, r *http.Request, projectID string, parentTaskID *string) {
	ctx := r.Context()
	var req taskCreateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Name == "" {
		s.writeError(w, r, errs.Validation("name is required"))
		return
	}
	taskType := types.TaskType(req.TaskType)
	if !taskType.IsValid() {
		s.writeError(w, r, errs.Validation("invalid task_type %q", req.TaskType))
		return
	}

	if parentTaskID != nil {
		parent, err := s.store.GetTask(ctx, *parentTaskID)
		if err != nil {
			s.writeError(w, r, errs.NotFound("parent task %s not found", *parentTaskID))
			return
		}
		if parent.ProjectID != projectID {
			s.writeError(w, r, errs.Validation("parent task belongs to a different project"))
			return
		}
	}

	position := 0
	if req.Position != nil {
		position = *req.Position
	} else {
		max, err := s.store.MaxChildPosition(ctx, projectID, parentTaskID)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		position = max + 1
	}

	id, err := idgen.New("tsk")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	now := s.clock()
	task := &types.Task{
		ID: id, ProjectID: projectID, ParentTaskID: parentTaskID, Name: req.Name,
		Description: req.Description, Context: req.Context, TaskType: taskType,
		Status: types.StatusTodo, Position: position, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		s.writeError(w, r, err)
		return
	}

	node, err := s.store.LoadSubtree(ctx, task.ID, 2)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, derived.Enrich(node, now))
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	projectID := r.PathValue("id")
	if _, err := s.store.GetProject(r.Context(), projectID); err != nil {
		s.writeError(w, r, errs.NotFound("project %s not found", projectID))
		return
	}
	s.createTaskUnder(w, r, projectID, nil)
}

func (s *Server) createSubtask(w http.ResponseWriter, r *http.Request) {
	parentID := r.PathValue("id")
	parent, err := s.store.GetTask(r.Context(), parentID)
	if err != nil {
		s.writeError(w, r, errs.NotFound("task %s not found", parentID))
		return
	}
	s.createTaskUnder(w, r, parent.ProjectID, &parentID)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	node, err := s.store.LoadSubtree(r.Context(), id, 2)
	if err != nil {
		s.writeError(w, r, errs.NotFound("task %s not found", id))
		return
	}
	writeJSON(w, r, http.StatusOK, derived.Enrich(node, s.clock()))
}

func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	var req taskUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		s.writeError(w, r, errs.NotFound("task %s not found", id))
		return
	}
	if req.Name != nil {
		task.Name = *req.Name
	}
	if req.Description != nil {
		task.Description = *req.Description
	}
	if req.Context != nil {
		task.Context = *req.Context
	}
	if req.TaskType != nil {
		taskType := types.TaskType(*req.TaskType)
		if !taskType.IsValid() {
			s.writeError(w, r, errs.Validation("invalid task_type %q", *req.TaskType))
			return
		}
		task.TaskType = taskType
	}
	task.UpdatedAt = s.clock()
	if err := s.store.UpdateTask(ctx, task); err != nil {
		s.writeError(w, r, err)
		return
	}

	node, err := s.store.LoadSubtree(ctx, id, 2)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, derived.Enrich(node, s.clock()))
}

func (s *Server) deleteTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := s.store.GetTask(r.Context(), id); err != nil {
		s.writeError(w, r, errs.NotFound("task %s not found", id))
		return
	}
	if err := s.store.DeleteTask(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// taskTreeNode is an EnrichedTask plus its children, recursively, each
// level sorted by position — the shape GET /tasks/{id}/tree returns.
type taskTreeNode struct {
	types.EnrichedTask
	Children []taskTreeNode `json:"children"`
}

func buildTreeNode(n *types.TaskNode, now time.Time) taskTreeNode {
	node := taskTreeNode{EnrichedTask: derived.Enrich(n, now), Children: make([]taskTreeNode, 0, len(n.Children))}
	for _, c := range n.Children {
		node.Children = append(node.Children, buildTreeNode(c, now))
	}
	sort.Slice(node.Children, func(i, j int) bool { return node.Children[i].Position < node.Children[j].Position })
	return node
}

func (s *Server) getTaskTree(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	node, err := s.store.LoadSubtree(r.Context(), id, -1)
	if err != nil {
		s.writeError(w, r, errs.NotFound("task %s not found", id))
		return
	}
	writeJSON(w, r, http.StatusOK, buildTreeNode(node, s.clock()))
}

type ancestryItem struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Context     string    `json:"context,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func ancestryItemsFrom(tasks []*types.Task) []ancestryItem {
	items := make([]ancestryItem, 0, len(tasks))
	for _, t := range tasks {
		items = append(items, ancestryItem{
			ID: t.ID, Name: t.Name, Description: t.Description, Context: t.Context, UpdatedAt: t.UpdatedAt,
		})
	}
	return items
}

func (s *Server) getTaskAncestry(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	chain, err := s.store.LoadAncestry(r.Context(), id)
	if err != nil {
		s.writeError(w, r, errs.NotFound("task %s not found", id))
		return
	}
	ancestors := chain
	if len(ancestors) > 0 {
		ancestors = ancestors[:len(ancestors)-1]
	}
	writeJSON(w, r, http.StatusOK, ancestryItemsFrom(ancestors))
}

func (s *Server) updateTaskStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Status types.Status `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	enriched, err := s.ops.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, enriched)
}

func (s *Server) reorderTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Position int `json:"position"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	enriched, err := s.ops.Reorder(r.Context(), id, req.Position)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, enriched)
}
