package closure

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/backoffice/generic"
)

// =============================================================================
// TEMPLATE MATERIALIZER - Recurring and one-shot expenses
// =============================================================================

// TemplateMaterializer turns expense templates into dated movements.
//
// A recurring template applies to every month from its EffectiveFrom month
// onward; a one-shot template applies only to the month containing
// EffectiveFrom. There is no per-template dedupe: the closure marker
// guarantees a month is materialized once.
type TemplateMaterializer struct {
	Templates generic.TemplateStore
}

func NewTemplateMaterializer(templates generic.TemplateStore) *TemplateMaterializer {
	return &TemplateMaterializer{Templates: templates}
}

// Applying returns the templates that materialize in the month ending at monthEnd.
func (m *TemplateMaterializer) Applying(ctx context.Context, tenantID generic.TenantID, monthEnd generic.Date) ([]generic.ExpenseTemplate, error) {
	templates, err := m.Templates.ListTemplatesApplying(ctx, tenantID, monthEnd)
	if err != nil {
		return nil, fmt.Errorf("list templates for %s: %w", tenantID, err)
	}
	return templates, nil
}

// Materialize produces one movement per applying template, dated the last
// day of ym and attached to branchID.
func (m *TemplateMaterializer) Materialize(ctx context.Context, tenantID generic.TenantID, ym generic.YearMonth, branchID generic.BranchID, now time.Time) ([]generic.ExpenseMovement, error) {
	monthEnd := ym.LastDay()
	templates, err := m.Applying(ctx, tenantID, monthEnd)
	if err != nil {
		return nil, err
	}

	movements := make([]generic.ExpenseMovement, 0, len(templates))
	for _, t := range templates {
		movements = append(movements, generic.ExpenseMovement{
			ID:          generic.MovementID(generic.NewID()),
			TenantID:    tenantID,
			CategoryID:  t.CategoryID,
			BranchID:    branchID,
			Amount:      t.Amount,
			Date:        monthEnd,
			Description: t.Description,
			Source:      generic.SourceClosure,
			CreatedAt:   now,
		})
	}
	return movements, nil
}
