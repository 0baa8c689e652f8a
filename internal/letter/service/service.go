// Package service implements the letter verification state machine. A letter
// moves pending -> verified or pending -> rejected, and nothing else; every
// successful transition appends exactly one audit entry, and verification
// hands the letter to the routing dispatcher as a downstream effect.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"courier/internal/letter/metrics"
	"courier/internal/letter/models"
	routingmodels "courier/internal/routing/models"
	"courier/internal/routing/ports"
	"courier/pkg/domain"
	dErrors "courier/pkg/domain-errors"
	"courier/pkg/platform/audit"
	"courier/pkg/platform/keylock"
	"courier/pkg/platform/sentinel"
	"courier/pkg/platform/tx"
	"courier/pkg/requestcontext"
)

// Store is the letter persistence the service depends on.
type Store interface {
	Create(ctx context.Context, letter *models.Letter) error
	Load(ctx context.Context, id domain.LetterID) (*models.Letter, error)
	Save(ctx context.Context, letter *models.Letter) error
	FindByReference(ctx context.Context, reference string) (*models.Letter, error)

	// Remove unwinds an uncommitted submission. Never called on a letter
	// whose audit entry has been appended.
	Remove(ctx context.Context, id domain.LetterID) error
}

// Dispatcher routes a verified letter. Route returns (nil, nil) when no rule
// matched; that is a normal outcome, not an error.
type Dispatcher interface {
	Route(ctx context.Context, letterID domain.LetterID, actor domain.Actor) (*routingmodels.DocumentRouting, error)
}

// Service is the verification state machine over the letter store.
type Service struct {
	store      Store
	ledger     audit.Ledger
	locks      *keylock.Map
	runner     tx.Runner
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDispatcher wires the routing dispatcher invoked after verification.
// Without one, verified letters simply stay verified (routable later).
func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithTxRunner wraps each commit (state write plus audit append) in the
// given runner. The SQL-backed wiring passes tx.NewSQL so both writes share
// one database transaction.
func WithTxRunner(r tx.Runner) Option {
	return func(s *Service) { s.runner = r }
}

func New(store Store, ledger audit.Ledger, locks *keylock.Map, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("letter store is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("audit ledger is required")
	}
	if locks == nil {
		return nil, fmt.Errorf("lock map is required")
	}

	svc := &Service{store: store, ledger: ledger, locks: locks, runner: tx.Passthrough{}}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// SubmitInput carries a new letter submission.
type SubmitInput struct {
	Reference  string
	Title      string
	Content    string
	FolderRef  string
	Department domain.Department

	// Passcode, when non-empty, must be presented again at verification.
	Passcode string
}

// Submit creates a letter in pending state and appends letter.submitted.
func (s *Service) Submit(ctx context.Context, in SubmitInput, actor domain.Actor) (*models.Letter, error) {
	if strings.TrimSpace(in.Reference) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reference is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if in.Department == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "department is required")
	}

	var passcodeHash []byte
	if in.Passcode != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(in.Passcode), bcrypt.DefaultCost)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "hash passcode")
		}
		passcodeHash = hash
	}

	now := requestcontext.Now(ctx)
	letter := &models.Letter{
		ID:           domain.NewLetterID(),
		Reference:    strings.TrimSpace(in.Reference),
		Title:        in.Title,
		Content:      in.Content,
		FolderRef:    in.FolderRef,
		Department:   in.Department,
		Status:       models.StatusPending,
		PasscodeHash: passcodeHash,
		SubmittedBy:  actor.ID,
		OwnedBy:      actor.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	entry := &audit.Entry{
		Action:     audit.ActionLetterSubmitted,
		EntityType: audit.EntityLetter,
		EntityID:   letter.ID.String(),
		ActorID:    actor.ID,
		Details: audit.DetailsFromContext(ctx, map[string]string{
			"reference":  letter.Reference,
			"department": string(letter.Department),
		}),
		Timestamp: now,
	}
	if err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, letter); err != nil {
			if errors.Is(err, sentinel.ErrConflict) {
				return dErrors.New(dErrors.CodeConflict, "reference already in use")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "create letter")
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			if rmErr := s.store.Remove(ctx, letter.ID); rmErr != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "unwind of failed submission left orphan letter",
					"letter_id", letter.ID.String(), "error", rmErr)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "append audit entry")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Submitted.Inc()
	}
	ports.LogAudit(ctx, s.logger, string(audit.ActionLetterSubmitted),
		"letter_id", letter.ID.String(), "reference", letter.Reference)
	return letter, nil
}

// Get loads a letter by ID.
func (s *Service) Get(ctx context.Context, id domain.LetterID) (*models.Letter, error) {
	letter, err := s.store.Load(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "letter not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load letter")
	}
	return letter, nil
}

// GetByReference loads a letter by its unique reference.
func (s *Service) GetByReference(ctx context.Context, reference string) (*models.Letter, error) {
	letter, err := s.store.FindByReference(ctx, reference)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "letter not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load letter")
	}
	return letter, nil
}

// Status returns a letter's current verification status.
func (s *Service) Status(ctx context.Context, id domain.LetterID) (models.Status, error) {
	letter, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return letter.Status, nil
}

// AuditTrail returns the letter's audit entries, oldest first.
func (s *Service) AuditTrail(ctx context.Context, id domain.LetterID) ([]audit.Entry, error) {
	entries, err := s.ledger.ListByEntity(ctx, audit.EntityLetter, id.String())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list audit entries")
	}
	return entries, nil
}
