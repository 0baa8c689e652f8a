// Package ports defines shared interfaces for the routing module.
// Interfaces are placed here when consumed by multiple services to avoid
// duplication; single-consumer interfaces stay next to their consumer.
package ports

import (
	"context"
	"log/slog"

	lettermodels "courier/internal/letter/models"
	"courier/internal/routing/models"
	"courier/pkg/domain"
	"courier/pkg/requestcontext"
)

// RuleStore provides routing-rule persistence.
type RuleStore interface {
	Create(ctx context.Context, rule *models.RoutingRule) error
	Save(ctx context.Context, rule *models.RoutingRule) error
	Load(ctx context.Context, id domain.RuleID) (*models.RoutingRule, error)

	// FindActiveBySource returns the active rules for a source department
	// ordered by priority descending, creation time ascending, ID ascending.
	// The returned slice is a snapshot: later rule edits do not mutate it.
	FindActiveBySource(ctx context.Context, dept domain.Department) ([]*models.RoutingRule, error)

	// ListBySource returns all rules for a department, active or not.
	ListBySource(ctx context.Context, dept domain.Department) ([]*models.RoutingRule, error)

	// Remove deletes an uncommitted rule during transition unwind. It is
	// never called on a rule whose creation has been audit-committed.
	Remove(ctx context.Context, id domain.RuleID) error
}

// DeliveryStore provides document-routing persistence.
type DeliveryStore interface {
	Create(ctx context.Context, rec *models.DocumentRouting) error
	Save(ctx context.Context, rec *models.DocumentRouting) error
	Load(ctx context.Context, id domain.RoutingID) (*models.DocumentRouting, error)

	// FindActiveByLetter returns the non-terminal record for a letter, or
	// sentinel.ErrNotFound when the letter has no routing in flight.
	FindActiveByLetter(ctx context.Context, letterID domain.LetterID) (*models.DocumentRouting, error)

	// ListByLetter returns all routing records for a letter, oldest first.
	ListByLetter(ctx context.Context, letterID domain.LetterID) ([]*models.DocumentRouting, error)

	// Remove deletes an uncommitted record during transition unwind. It is
	// never called on a record whose creation has been audit-committed.
	Remove(ctx context.Context, id domain.RoutingID) error
}

// LetterReader is the dispatcher's read-only view of letters.
type LetterReader interface {
	Load(ctx context.Context, id domain.LetterID) (*lettermodels.Letter, error)
}

// LogAudit logs a structured audit line alongside the ledger append, tagged
// so log pipelines can separate audit lines from debug chatter. It enriches
// with the request ID when present.
func LogAudit(ctx context.Context, logger *slog.Logger, event string, attrs ...any) {
	if logger == nil {
		return
	}
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	args := append(attrs, "event", event, "log_type", "audit")
	logger.InfoContext(ctx, event, args...)
}
