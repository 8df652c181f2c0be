package ops

import (
	"context"
	"time"

	"github.com/chorusdev/chorus/internal/chorus/errs"
	"github.com/chorusdev/chorus/internal/chorus/idgen"
	"github.com/chorusdev/chorus/internal/chorus/types"
	"github.com/chorusdev/chorus/internal/store"
)

func validateDimension(name string, d DimensionScore) error {
	if d.Score < 0 || d.Score > 2 {
		return errs.Validation("%s score must be 0-2, got %d", name, d.Score)
	}
	return nil
}

func (p SizingPayload) validate() error {
	if p.WorkLogContent == "" {
		return errs.Validation("work_log_content is required")
	}
	if p.Confidence < 0 || p.Confidence > 5 {
		return errs.Validation("confidence must be 0-5, got %d", p.Confidence)
	}
	for name, d := range map[string]DimensionScore{
		"scope_clarity":            p.ScopeClarity,
		"decision_points":          p.DecisionPoints,
		"context_window_demand":    p.ContextWindowDemand,
		"verification_complexity": p.VerificationComplexity,
		"domain_specificity":       p.DomainSpecificity,
	} {
		if err := validateDimension(name, d); err != nil {
			return err
		}
	}
	return nil
}

// Size runs the size atomic operation: sums the five dimension scores into
// points, records a points_breakdown snapshot, sets sizing_confidence, and
// appends a sizing work log entry.
func (m *Manager) Size(ctx context.Context, taskID string, payload SizingPayload, idempotencyKey *string) (*Result, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}

	return m.withIdempotency(ctx, "size", idempotencyKey, func() (*types.EnrichedTask, error) {
		var enriched *types.EnrichedTask
		err := m.store.RunInTransaction(ctx, func(tx store.Transaction) error {
			task, err := tx.GetTask(ctx, taskID)
			if err != nil {
				return errs.NotFound("task %s not found", taskID)
			}

			dims := map[string]any{
				"scope_clarity":            dimensionMap(payload.ScopeClarity),
				"decision_points":          dimensionMap(payload.DecisionPoints),
				"context_window_demand":    dimensionMap(payload.ContextWindowDemand),
				"verification_complexity": dimensionMap(payload.VerificationComplexity),
				"domain_specificity":       dimensionMap(payload.DomainSpecificity),
			}
			total := payload.ScopeClarity.Score + payload.DecisionPoints.Score +
				payload.ContextWindowDemand.Score + payload.VerificationComplexity.Score +
				payload.DomainSpecificity.Score

			points := total
			confidence := payload.Confidence
			task.Points = &points
			task.SizingConfidence = &confidence
			task.PointsBreakdown = map[string]any{
				"dimensions":            dims,
				"total":                 total,
				"confidence":            payload.Confidence,
				"risk_factors":          payload.RiskFactors,
				"breakdown_suggestions": payload.BreakdownSuggestions,
				"scored_by":             payload.ScoredBy,
				"scored_at":             m.clock().UTC().Format(time.RFC3339),
			}
			if err := tx.UpdateTask(ctx, task); err != nil {
				return err
			}

			entryID, err := idgen.New("wle")
			if err != nil {
				return err
			}
			if err := tx.AppendWorkLog(ctx, &types.WorkLogEntry{
				ID: entryID, TaskID: taskID, Author: payload.Author,
				Operation: types.OpSizing, Content: payload.WorkLogContent, CreatedAt: m.clock(),
			}); err != nil {
				return err
			}

			enriched, err = m.enrichedTask(ctx, tx, taskID)
			return err
		})
		if err != nil {
			return nil, err
		}
		return enriched, nil
	})
}

func dimensionMap(d DimensionScore) map[string]any {
	return map[string]any{"score": d.Score, "reasoning": d.Reasoning}
}
