package letter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"courier/internal/letter/models"
	"courier/pkg/domain"
	"courier/pkg/platform/sentinel"
	txcontext "courier/pkg/platform/tx"
)

// Postgres persists letters. Reference uniqueness is enforced by a unique
// index on lower(reference); violations surface as sentinel.ErrConflict.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Postgres) Create(ctx context.Context, letter *models.Letter) error {
	query := `
		INSERT INTO letters (
			id, reference, title, content, folder_ref, department, status,
			passcode_hash, rejection_reason, submitted_by, owned_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(letter.ID), letter.Reference, letter.Title, letter.Content,
		letter.FolderRef, string(letter.Department), string(letter.Status),
		letter.PasscodeHash, letter.RejectionReason,
		uuid.UUID(letter.SubmittedBy), uuid.UUID(letter.OwnedBy),
		letter.CreatedAt, letter.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create letter: %w", err)
	}
	return nil
}

func (s *Postgres) Load(ctx context.Context, id domain.LetterID) (*models.Letter, error) {
	return s.scanOne(s.execer(ctx).QueryRowContext(ctx, selectLetter+` WHERE id = $1`, uuid.UUID(id)))
}

func (s *Postgres) FindByReference(ctx context.Context, reference string) (*models.Letter, error) {
	return s.scanOne(s.execer(ctx).QueryRowContext(ctx, selectLetter+` WHERE lower(reference) = lower($1)`, reference))
}

func (s *Postgres) Save(ctx context.Context, letter *models.Letter) error {
	query := `
		UPDATE letters
		SET status = $2, rejection_reason = $3, owned_by = $4, updated_at = $5
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(letter.ID), string(letter.Status), letter.RejectionReason,
		uuid.UUID(letter.OwnedBy), letter.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save letter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save letter: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Remove deletes a letter. Only used to unwind an uncommitted submission;
// committed letters are never deleted.
func (s *Postgres) Remove(ctx context.Context, id domain.LetterID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM letters WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("remove letter: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove letter: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

const selectLetter = `
	SELECT id, reference, title, content, folder_ref, department, status,
	       passcode_hash, rejection_reason, submitted_by, owned_by, created_at, updated_at
	FROM letters
`

func (s *Postgres) scanOne(row *sql.Row) (*models.Letter, error) {
	var (
		l                  models.Letter
		id, subBy, ownBy   uuid.UUID
		department, status string
	)
	err := row.Scan(&id, &l.Reference, &l.Title, &l.Content, &l.FolderRef,
		&department, &status, &l.PasscodeHash, &l.RejectionReason,
		&subBy, &ownBy, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan letter: %w", err)
	}
	l.ID = domain.LetterID(id)
	l.Department = domain.Department(department)
	l.Status = models.Status(status)
	l.SubmittedBy = domain.ActorID(subBy)
	l.OwnedBy = domain.ActorID(ownBy)
	return &l, nil
}

// uniqueViolationCode is SQLSTATE 23505 (unique_violation).
const uniqueViolationCode = "23505"

// isUniqueViolation reports whether err is a unique-constraint violation,
// matched on the SQLSTATE code rather than the error text.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
