package service

import (
	"context"
	"errors"
	"strings"

	"courier/internal/routing/models"
	"courier/internal/routing/ports"
	"courier/pkg/domain"
	dErrors "courier/pkg/domain-errors"
	"courier/pkg/platform/audit"
	"courier/pkg/platform/sentinel"
	"courier/pkg/requestcontext"
)

// Advance moves a routing record one step along the delivery lifecycle:
// pending -> in_transit -> delivered. DeliveredAt is set exactly on entry to
// delivered. Concurrent advances on one record serialize on the per-letter
// lock; the loser observes the moved state and fails with
// invalid_transition.
func (s *Service) Advance(ctx context.Context, id domain.RoutingID, notes string, actor domain.Actor) (*models.DocumentRouting, error) {
	if !actor.HasRole(domain.RoleDispatcher) {
		return nil, dErrors.New(dErrors.CodeForbidden, "dispatcher role required")
	}

	rec, unlock, err := s.lockRouting(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var next models.RoutingStatus
	switch rec.Status {
	case models.RoutingPending:
		next = models.RoutingInTransit
	case models.RoutingInTransit:
		next = models.RoutingDelivered
	default:
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "routing already completed")
	}

	now := requestcontext.Now(ctx)
	updated := rec.Clone()
	updated.Status = next
	if strings.TrimSpace(notes) != "" {
		updated.Notes = strings.TrimSpace(notes)
	}
	if next == models.RoutingDelivered {
		updated.DeliveredAt = &now
	}

	entry := &audit.Entry{
		Action:     audit.ActionRoutingAdvanced,
		EntityType: audit.EntityRouting,
		EntityID:   id.String(),
		ActorID:    actor.ID,
		Details: audit.DetailsFromContext(ctx, map[string]string{
			"letter_id": rec.LetterID.String(),
			"from":      string(rec.Status),
			"to":        string(next),
		}),
		Timestamp: now,
	}
	if err := s.commitRouting(ctx, rec, updated, entry); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Advanced.Inc()
		if next == models.RoutingDelivered {
			s.metrics.Delivered.Inc()
		}
	}
	ports.LogAudit(ctx, s.logger, string(audit.ActionRoutingAdvanced),
		"routing_id", id.String(), "from", string(rec.Status), "to", string(next))
	return updated, nil
}

// RejectDelivery terminates a routing record from pending or in_transit.
// Notes are mandatory: a rejected delivery without an explanation is useless
// to the next dispatcher. After rejection the letter may be routed again.
func (s *Service) RejectDelivery(ctx context.Context, id domain.RoutingID, notes string, actor domain.Actor) (*models.DocumentRouting, error) {
	if !actor.HasRole(domain.RoleDispatcher) {
		return nil, dErrors.New(dErrors.CodeForbidden, "dispatcher role required")
	}
	if strings.TrimSpace(notes) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection notes are required")
	}

	rec, unlock, err := s.lockRouting(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if rec.Status.Terminal() {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "routing already completed")
	}

	now := requestcontext.Now(ctx)
	updated := rec.Clone()
	updated.Status = models.RoutingRejected
	updated.Notes = strings.TrimSpace(notes)

	entry := &audit.Entry{
		Action:     audit.ActionRoutingRejected,
		EntityType: audit.EntityRouting,
		EntityID:   id.String(),
		ActorID:    actor.ID,
		Details: audit.DetailsFromContext(ctx, map[string]string{
			"letter_id": rec.LetterID.String(),
			"from":      string(rec.Status),
			"notes":     updated.Notes,
		}),
		Timestamp: now,
	}
	if err := s.commitRouting(ctx, rec, updated, entry); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Rejected.Inc()
	}
	ports.LogAudit(ctx, s.logger, string(audit.ActionRoutingRejected),
		"routing_id", id.String(), "notes", updated.Notes)
	return updated, nil
}

// GetRouting loads one routing record.
func (s *Service) GetRouting(ctx context.Context, id domain.RoutingID) (*models.DocumentRouting, error) {
	rec, err := s.deliveries.Load(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "routing record not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load document routing")
	}
	return rec, nil
}

// lockRouting acquires the per-letter lock for the record's letter and
// returns the record as re-read under the lock, so the caller's state check
// races with nobody. The first (unlocked) read only learns the letter ID.
func (s *Service) lockRouting(ctx context.Context, id domain.RoutingID) (*models.DocumentRouting, func(), error) {
	rec, err := s.GetRouting(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	key := rec.LetterID.String()
	s.locks.Lock(key)
	unlock := func() { s.locks.Unlock(key) }

	rec, err = s.GetRouting(ctx, id)
	if err != nil {
		unlock()
		return nil, nil, err
	}
	return rec, unlock, nil
}

// commitRouting persists the transitioned record and appends its audit entry
// inside the configured runner; on the passthrough runner an append failure
// restores the previous record state, on the SQL runner both writes roll back.
func (s *Service) commitRouting(ctx context.Context, prev, next *models.DocumentRouting, entry *audit.Entry) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.deliveries.Save(ctx, next); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save document routing")
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			if restoreErr := s.deliveries.Save(ctx, prev); restoreErr != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "unwind of failed transition did not restore routing record",
					"routing_id", prev.ID.String(), "error", restoreErr)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "append audit entry")
		}
		return nil
	})
}
