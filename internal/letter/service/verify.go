package service

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"courier/internal/letter/models"
	routingmodels "courier/internal/routing/models"
	"courier/internal/routing/ports"
	"courier/pkg/domain"
	dErrors "courier/pkg/domain-errors"
	"courier/pkg/platform/audit"
	"courier/pkg/platform/sentinel"
	"courier/pkg/requestcontext"
)

// VerifyResult is the outcome of a successful verification. Routing is nil
// when no rule matched or no dispatcher is wired.
type VerifyResult struct {
	Letter  *models.Letter
	Routing *routingmodels.DocumentRouting
}

// Verify transitions a pending letter to verified and hands it to the
// routing dispatcher. Concurrent calls on the same letter serialize on the
// per-letter lock; exactly one wins, the rest fail with invalid_transition.
//
// The verification commit and the routing decision are separate transitions:
// if routing fails after the commit, the letter remains verified and can be
// routed later (manually or after a rule-store fix).
func (s *Service) Verify(ctx context.Context, id domain.LetterID, passcode string, actor domain.Actor) (*VerifyResult, error) {
	letter, err := s.verifyLocked(ctx, id, passcode, actor)
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Letter: letter}
	if s.dispatcher == nil {
		return result, nil
	}
	routing, err := s.dispatcher.Route(ctx, id, actor)
	if err != nil {
		return result, err
	}
	result.Routing = routing
	return result, nil
}

// verifyLocked holds the per-letter lock for the duration of the state
// transition. The lock is released before the dispatcher runs; the
// dispatcher re-acquires it for its own check-then-create window.
func (s *Service) verifyLocked(ctx context.Context, id domain.LetterID, passcode string, actor domain.Actor) (*models.Letter, error) {
	s.locks.Lock(id.String())
	defer s.locks.Unlock(id.String())

	letter, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if letter.Status != models.StatusPending {
		return nil, s.denied(dErrors.CodeInvalidTransition, "letter already processed")
	}
	if !actor.CanActFor(domain.RoleVerifier, letter.Department) {
		return nil, s.denied(dErrors.CodeForbidden, "verifier role for the letter's department required")
	}
	if len(letter.PasscodeHash) > 0 {
		if bcrypt.CompareHashAndPassword(letter.PasscodeHash, []byte(passcode)) != nil {
			return nil, s.denied(dErrors.CodeForbidden, "verification passcode mismatch")
		}
	}

	now := requestcontext.Now(ctx)
	updated := letter.Clone()
	updated.Status = models.StatusVerified
	updated.OwnedBy = actor.ID
	updated.UpdatedAt = now

	if err := s.commit(ctx, letter, updated, &audit.Entry{
		Action:     audit.ActionLetterVerified,
		EntityType: audit.EntityLetter,
		EntityID:   id.String(),
		ActorID:    actor.ID,
		Details: audit.DetailsFromContext(ctx, map[string]string{
			"reference": letter.Reference,
		}),
		Timestamp: now,
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Verified.Inc()
	}
	ports.LogAudit(ctx, s.logger, string(audit.ActionLetterVerified),
		"letter_id", id.String(), "actor_id", actor.ID.String())
	return updated, nil
}

// Reject transitions a pending letter to rejected, a terminal state. The
// reason is mandatory and recorded in the audit entry.
func (s *Service) Reject(ctx context.Context, id domain.LetterID, reason string, actor domain.Actor) (*models.Letter, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "rejection reason is required")
	}

	s.locks.Lock(id.String())
	defer s.locks.Unlock(id.String())

	letter, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if letter.Status != models.StatusPending {
		return nil, s.denied(dErrors.CodeInvalidTransition, "letter already processed")
	}
	if !actor.CanActFor(domain.RoleVerifier, letter.Department) {
		return nil, s.denied(dErrors.CodeForbidden, "verifier role for the letter's department required")
	}

	now := requestcontext.Now(ctx)
	updated := letter.Clone()
	updated.Status = models.StatusRejected
	updated.RejectionReason = strings.TrimSpace(reason)
	updated.OwnedBy = actor.ID
	updated.UpdatedAt = now

	if err := s.commit(ctx, letter, updated, &audit.Entry{
		Action:     audit.ActionLetterRejected,
		EntityType: audit.EntityLetter,
		EntityID:   id.String(),
		ActorID:    actor.ID,
		Details: audit.DetailsFromContext(ctx, map[string]string{
			"reference": letter.Reference,
			"reason":    updated.RejectionReason,
		}),
		Timestamp: now,
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Rejected.Inc()
	}
	ports.LogAudit(ctx, s.logger, string(audit.ActionLetterRejected),
		"letter_id", id.String(), "reason", updated.RejectionReason)
	return updated, nil
}

// commit persists the transitioned letter and appends its audit entry inside
// the configured runner. The transition is committed exactly when the append
// succeeds; on the SQL runner a failed append rolls both writes back, on the
// passthrough runner the previous letter state is restored by hand.
func (s *Service) commit(ctx context.Context, prev, next *models.Letter, entry *audit.Entry) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Save(ctx, next); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save letter")
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			if restoreErr := s.store.Save(ctx, prev); restoreErr != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "unwind of failed transition did not restore letter",
					"letter_id", prev.ID.String(), "error", restoreErr)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "append audit entry")
		}
		return nil
	})
}

func (s *Service) load(ctx context.Context, id domain.LetterID) (*models.Letter, error) {
	letter, err := s.store.Load(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "letter not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load letter")
	}
	return letter, nil
}

func (s *Service) denied(code dErrors.Code, message string) error {
	if s.metrics != nil {
		s.metrics.Denied.WithLabelValues(string(code)).Inc()
	}
	return dErrors.New(code, message)
}
