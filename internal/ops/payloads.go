package ops

import "time"

// DimensionScore is one of the five sizing dimensions: a 0-2 score plus the
// reasoning behind it.
type DimensionScore struct {
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`
}

// SizingPayload is the size operation's request body.
type SizingPayload struct {
	ScopeClarity           DimensionScore `json:"scope_clarity"`
	DecisionPoints         DimensionScore `json:"decision_points"`
	ContextWindowDemand    DimensionScore `json:"context_window_demand"`
	VerificationComplexity DimensionScore `json:"verification_complexity"`
	DomainSpecificity      DimensionScore `json:"domain_specificity"`
	Confidence             int            `json:"confidence"`
	RiskFactors            []string       `json:"risk_factors,omitempty"`
	BreakdownSuggestions   string         `json:"breakdown_suggestions,omitempty"`
	ScoredBy               string         `json:"scored_by,omitempty"`
	WorkLogContent         string         `json:"work_log_content"`
	Author                 string         `json:"author,omitempty"`
}

// BreakdownSubtask describes one child task to create under a parent being
// broken down.
type BreakdownSubtask struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Context     string  `json:"context,omitempty"`
	TaskType    string  `json:"task_type"`
	Position    *int    `json:"position,omitempty"`
}

// BreakdownPayload is the breakdown operation's request body.
type BreakdownPayload struct {
	Subtasks                 []BreakdownSubtask `json:"subtasks"`
	ParentDescriptionUpdate   string             `json:"parent_description_update,omitempty"`
	WorkLogContent            string             `json:"work_log_content"`
	Author                    string             `json:"author,omitempty"`
}

// RefinePayload is the refine operation's request body. Nil pointer fields
// leave the corresponding task field untouched.
type RefinePayload struct {
	Description       *string    `json:"description,omitempty"`
	Context            *string    `json:"context,omitempty"`
	ContextCapturedAt   *time.Time `json:"context_captured_at,omitempty"`
	WorkLogContent      string     `json:"work_log_content"`
	Author              string     `json:"author,omitempty"`
}

// FlagRefinementPayload is the flag_refinement operation's request body.
type FlagRefinementPayload struct {
	RefinementNotes string `json:"refinement_notes"`
}

// CommitPayload describes one source control commit to attach to a task on
// completion.
type CommitPayload struct {
	CommitHash  string    `json:"commit_hash"`
	Message     string    `json:"message,omitempty"`
	Author      string    `json:"author,omitempty"`
	CommittedAt time.Time `json:"committed_at"`
}

// CompletePayload is the complete operation's request body.
type CompletePayload struct {
	WorkLogContent string          `json:"work_log_content"`
	Author         string          `json:"author,omitempty"`
	Commits        []CommitPayload `json:"commits,omitempty"`
}
