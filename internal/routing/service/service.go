// Package service implements the routing dispatcher and the document-routing
// delivery state machine. The dispatcher owns every side effect of a routing
// decision; rule selection itself is the evaluator's pure function.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	lettermodels "courier/internal/letter/models"
	"courier/internal/routing/evaluator"
	"courier/internal/routing/metrics"
	"courier/internal/routing/models"
	"courier/internal/routing/ports"
	"courier/pkg/domain"
	dErrors "courier/pkg/domain-errors"
	"courier/pkg/platform/audit"
	"courier/pkg/platform/keylock"
	"courier/pkg/platform/sentinel"
	"courier/pkg/platform/tx"
	"courier/pkg/requestcontext"
)

// Service orchestrates routing decisions and delivery transitions.
type Service struct {
	letters    ports.LetterReader
	rules      ports.RuleStore
	deliveries ports.DeliveryStore
	ledger     audit.Ledger
	locks      *keylock.Map
	runner     tx.Runner
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTxRunner wraps each commit (state write plus audit append) in the
// given runner. The SQL-backed wiring passes tx.NewSQL so both writes share
// one database transaction.
func WithTxRunner(r tx.Runner) Option {
	return func(s *Service) { s.runner = r }
}

func New(letters ports.LetterReader, rules ports.RuleStore, deliveries ports.DeliveryStore, ledger audit.Ledger, locks *keylock.Map, opts ...Option) (*Service, error) {
	if letters == nil {
		return nil, fmt.Errorf("letter reader is required")
	}
	if rules == nil {
		return nil, fmt.Errorf("rule store is required")
	}
	if deliveries == nil {
		return nil, fmt.Errorf("delivery store is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("audit ledger is required")
	}
	if locks == nil {
		return nil, fmt.Errorf("lock map is required")
	}

	svc := &Service{
		letters:    letters,
		rules:      rules,
		deliveries: deliveries,
		ledger:     ledger,
		locks:      locks,
		runner:     tx.Passthrough{},
		tracer:     otel.Tracer("courier/routing"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Route evaluates the active rules for the letter's department and creates a
// pending document-routing record for the winning rule. Returns (nil, nil)
// when no rule matches: the letter stays verified and unrouted, and a
// routing.unmatched audit entry records the attempt.
func (s *Service) Route(ctx context.Context, letterID domain.LetterID, actor domain.Actor) (*models.DocumentRouting, error) {
	ctx, span := s.tracer.Start(ctx, "routing.Route",
		trace.WithAttributes(attribute.String("letter_id", letterID.String())))
	defer span.End()

	s.locks.Lock(letterID.String())
	defer s.locks.Unlock(letterID.String())

	letter, err := s.loadVerified(ctx, letterID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNoActiveRouting(ctx, letterID); err != nil {
		return nil, err
	}

	// Snapshot of the active rules; edits made after this point affect
	// later evaluations only.
	activeRules, err := s.rules.FindActiveBySource(ctx, letter.Department)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load active rules")
	}

	rule := evaluator.SelectRule(letter, letter.Department, activeRules)
	if rule == nil {
		return nil, s.recordUnmatched(ctx, letter, actor, len(activeRules))
	}
	span.SetAttributes(attribute.String("rule_id", rule.ID.String()))

	ruleID := rule.ID
	return s.createRouting(ctx, letter, &ruleID, rule.TargetDepartment, actor, nil)
}

// RouteManually creates a routing record chosen by a dispatcher rather than
// a rule. Same creation and audit contract as Route, with no rule reference.
func (s *Service) RouteManually(ctx context.Context, letterID domain.LetterID, target domain.Department, notes string, actor domain.Actor) (*models.DocumentRouting, error) {
	ctx, span := s.tracer.Start(ctx, "routing.RouteManually",
		trace.WithAttributes(attribute.String("letter_id", letterID.String())))
	defer span.End()

	if target == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "target department is required")
	}

	s.locks.Lock(letterID.String())
	defer s.locks.Unlock(letterID.String())

	letter, err := s.loadVerified(ctx, letterID)
	if err != nil {
		return nil, err
	}
	if !actor.CanActFor(domain.RoleDispatcher, letter.Department) {
		return nil, dErrors.New(dErrors.CodeForbidden, "dispatcher role for the letter's department required")
	}
	if target == letter.Department {
		return nil, dErrors.New(dErrors.CodeValidation, "target department must differ from the letter's department")
	}
	if err := s.ensureNoActiveRouting(ctx, letterID); err != nil {
		return nil, err
	}

	return s.createRouting(ctx, letter, nil, target, actor, map[string]string{"manual": "true", "notes": notes})
}

func (s *Service) loadVerified(ctx context.Context, letterID domain.LetterID) (*lettermodels.Letter, error) {
	letter, err := s.letters.Load(ctx, letterID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "letter not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load letter")
	}
	if letter.Status != lettermodels.StatusVerified {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "only verified letters can be routed")
	}
	return letter, nil
}

func (s *Service) ensureNoActiveRouting(ctx context.Context, letterID domain.LetterID) error {
	_, err := s.deliveries.FindActiveByLetter(ctx, letterID)
	if err == nil {
		return dErrors.New(dErrors.CodeConflict, "letter already has a routing in flight")
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check active routing")
	}
	return nil
}

func (s *Service) recordUnmatched(ctx context.Context, letter *lettermodels.Letter, actor domain.Actor, evaluated int) error {
	entry := &audit.Entry{
		Action:     audit.ActionRoutingUnmatched,
		EntityType: audit.EntityLetter,
		EntityID:   letter.ID.String(),
		ActorID:    actor.ID,
		Details: audit.DetailsFromContext(ctx, map[string]string{
			"department":      string(letter.Department),
			"rules_evaluated": fmt.Sprintf("%d", evaluated),
		}),
		Timestamp: requestcontext.Now(ctx),
	}
	if err := s.ledger.Append(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "append audit entry")
	}
	if s.metrics != nil {
		s.metrics.Unmatched.Inc()
	}
	ports.LogAudit(ctx, s.logger, string(audit.ActionRoutingUnmatched),
		"letter_id", letter.ID.String(), "department", string(letter.Department))
	return nil
}

// createRouting persists the new pending record and appends routing.created.
// Caller holds the per-letter lock and has verified the preconditions.
func (s *Service) createRouting(ctx context.Context, letter *lettermodels.Letter, ruleID *domain.RuleID, target domain.Department, actor domain.Actor, extraDetails map[string]string) (*models.DocumentRouting, error) {
	now := requestcontext.Now(ctx)
	rec := &models.DocumentRouting{
		ID:             domain.NewRoutingID(),
		LetterID:       letter.ID,
		FromDepartment: letter.Department,
		ToDepartment:   target,
		RuleID:         ruleID,
		Status:         models.RoutingPending,
		RoutedAt:       now,
		RoutedBy:       actor.ID,
	}

	details := map[string]string{
		"letter_id": letter.ID.String(),
		"from":      string(rec.FromDepartment),
		"to":        string(rec.ToDepartment),
	}
	if ruleID != nil {
		details["rule_id"] = ruleID.String()
	}
	for k, v := range extraDetails {
		if v != "" {
			details[k] = v
		}
	}

	entry := &audit.Entry{
		Action:     audit.ActionRoutingCreated,
		EntityType: audit.EntityRouting,
		EntityID:   rec.ID.String(),
		ActorID:    actor.ID,
		Details:    audit.DetailsFromContext(ctx, details),
		Timestamp:  now,
	}
	if err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.deliveries.Create(ctx, rec); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "letter already has a routing in flight")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "create document routing")
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			if rmErr := s.deliveries.Remove(ctx, rec.ID); rmErr != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "unwind of failed routing creation left orphan record",
					"routing_id", rec.ID.String(), "error", rmErr)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "append audit entry")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		origin := "rule"
		if ruleID == nil {
			origin = "manual"
		}
		s.metrics.Created.WithLabelValues(origin).Inc()
	}
	ports.LogAudit(ctx, s.logger, string(audit.ActionRoutingCreated),
		"routing_id", rec.ID.String(), "letter_id", letter.ID.String(),
		"from", string(rec.FromDepartment), "to", string(rec.ToDepartment))
	return rec, nil
}

// History returns all routing records for a letter, oldest first.
func (s *Service) History(ctx context.Context, letterID domain.LetterID) ([]*models.DocumentRouting, error) {
	records, err := s.deliveries.ListByLetter(ctx, letterID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list document routings")
	}
	return records, nil
}

// AuditTrail returns a routing record's audit entries, oldest first.
func (s *Service) AuditTrail(ctx context.Context, id domain.RoutingID) ([]audit.Entry, error) {
	entries, err := s.ledger.ListByEntity(ctx, audit.EntityRouting, id.String())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list audit entries")
	}
	return entries, nil
}
