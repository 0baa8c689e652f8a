//go:build integration

package letter_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"courier/internal/letter/models"
	letterstore "courier/internal/letter/store/letter"
	"courier/pkg/domain"
	"courier/pkg/platform/sentinel"
	"courier/pkg/platform/tx"
	"courier/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *letterstore.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T(), "../../../../migrations/001_init.sql")
	s.store = letterstore.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) TearDownSuite() {
	if s.postgres != nil {
		_ = s.postgres.DB.Close()
		_ = s.postgres.Container.Terminate(context.Background())
	}
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(),
		"audit_entries", "document_routings", "routing_rules", "letters"))
}

func newTestLetter(reference string) *models.Letter {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Letter{
		ID:          domain.NewLetterID(),
		Reference:   reference,
		Title:       "Quarterly Filing",
		Content:     "contents under seal",
		FolderRef:   "FOLDER-7",
		Department:  "records",
		Status:      models.StatusPending,
		SubmittedBy: domain.ActorID(uuid.New()),
		OwnedBy:     domain.ActorID(uuid.New()),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (s *PostgresStoreSuite) TestCreateAndLoad() {
	ctx := context.Background()
	letter := newTestLetter("PG-1")
	letter.PasscodeHash = []byte("$2a$10$fakehashfortest")
	s.Require().NoError(s.store.Create(ctx, letter))

	got, err := s.store.Load(ctx, letter.ID)
	s.Require().NoError(err)
	s.Equal(letter.Reference, got.Reference)
	s.Equal(letter.Title, got.Title)
	s.Equal(models.StatusPending, got.Status)
	s.Equal(letter.PasscodeHash, got.PasscodeHash)
}

func (s *PostgresStoreSuite) TestFindByReferenceIsCaseInsensitive() {
	ctx := context.Background()
	letter := newTestLetter("Mixed-Case-Ref")
	s.Require().NoError(s.store.Create(ctx, letter))

	got, err := s.store.FindByReference(ctx, "mixed-case-ref")
	s.Require().NoError(err)
	s.Equal(letter.ID, got.ID)

	_, err = s.store.FindByReference(ctx, "no-such-ref")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSavePersistsTransitions() {
	ctx := context.Background()
	letter := newTestLetter("PG-SAVE")
	s.Require().NoError(s.store.Create(ctx, letter))

	verifier := domain.ActorID(uuid.New())
	letter.Status = models.StatusVerified
	letter.OwnedBy = verifier
	letter.UpdatedAt = letter.UpdatedAt.Add(time.Minute)
	s.Require().NoError(s.store.Save(ctx, letter))

	got, err := s.store.Load(ctx, letter.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusVerified, got.Status)
	s.Equal(verifier, got.OwnedBy)
}

func (s *PostgresStoreSuite) TestSaveUnknownLetter() {
	err := s.store.Save(context.Background(), newTestLetter("PG-GHOST"))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentDuplicateReference verifies the unique index resolves a
// racing pair of submissions with the same reference to one winner.
func (s *PostgresStoreSuite) TestConcurrentDuplicateReference() {
	ctx := context.Background()
	const goroutines = 16

	var wg sync.WaitGroup
	var created, conflicted atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(ctx, newTestLetter("pg-race"))
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, sentinel.ErrConflict):
				conflicted.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(goroutines-1), conflicted.Load())
}

// TestTxRunnerRollsBackOnError verifies that writes made through the SQL
// runner vanish when the wrapped function fails, and stick when it succeeds.
func (s *PostgresStoreSuite) TestTxRunnerRollsBackOnError() {
	ctx := context.Background()
	runner := tx.NewSQL(s.postgres.DB)

	letter := newTestLetter("PG-TX")
	err := runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.store.Create(ctx, letter); err != nil {
			return err
		}
		return errors.New("append refused")
	})
	s.Require().Error(err)

	_, err = s.store.Load(ctx, letter.ID)
	s.ErrorIs(err, sentinel.ErrNotFound, "rolled-back create must leave no row")

	err = runner.RunInTx(ctx, func(ctx context.Context) error {
		return s.store.Create(ctx, letter)
	})
	s.Require().NoError(err)

	got, err := s.store.Load(ctx, letter.ID)
	s.Require().NoError(err)
	s.Equal(letter.Reference, got.Reference)
}

func (s *PostgresStoreSuite) TestRemoveFreesReference() {
	ctx := context.Background()
	letter := newTestLetter("PG-UNWIND")
	s.Require().NoError(s.store.Create(ctx, letter))
	s.Require().NoError(s.store.Remove(ctx, letter.ID))

	_, err := s.store.Load(ctx, letter.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.NoError(s.store.Create(ctx, newTestLetter("PG-UNWIND")))
}
