package delivery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"courier/internal/routing/models"
	"courier/pkg/domain"
	"courier/pkg/platform/sentinel"
	txcontext "courier/pkg/platform/tx"
)

// Postgres persists document-routing records. A partial unique index on
// (letter_id) WHERE status IN ('pending','in_transit') backs the
// single-active-routing invariant; violations surface as
// sentinel.ErrConflict.
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

func (s *Postgres) Create(ctx context.Context, rec *models.DocumentRouting) error {
	query := `
		INSERT INTO document_routings (
			id, letter_id, from_department, to_department, rule_id,
			status, routed_at, delivered_at, notes, routed_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	var ruleID *uuid.UUID
	if rec.RuleID != nil {
		u := uuid.UUID(*rec.RuleID)
		ruleID = &u
	}
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(rec.ID), uuid.UUID(rec.LetterID),
		string(rec.FromDepartment), string(rec.ToDepartment), ruleID,
		string(rec.Status), rec.RoutedAt, rec.DeliveredAt, rec.Notes,
		uuid.UUID(rec.RoutedBy),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create document routing: %w", err)
	}
	return nil
}

// uniqueViolationCode is SQLSTATE 23505 (unique_violation).
const uniqueViolationCode = "23505"

// isUniqueViolation reports whether err is a unique-constraint violation,
// matched on the SQLSTATE code rather than the error text.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

func (s *Postgres) Save(ctx context.Context, rec *models.DocumentRouting) error {
	query := `
		UPDATE document_routings
		SET status = $2, delivered_at = $3, notes = $4
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(rec.ID), string(rec.Status), rec.DeliveredAt, rec.Notes,
	)
	if err != nil {
		return fmt.Errorf("save document routing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save document routing: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Remove deletes a record. Only used to unwind an uncommitted creation.
func (s *Postgres) Remove(ctx context.Context, id domain.RoutingID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM document_routings WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("remove document routing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove document routing: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) Load(ctx context.Context, id domain.RoutingID) (*models.DocumentRouting, error) {
	row := s.execer(ctx).QueryRowContext(ctx, selectRouting+` WHERE id = $1`, uuid.UUID(id))
	rec, err := scanRouting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return rec, err
}

func (s *Postgres) FindActiveByLetter(ctx context.Context, letterID domain.LetterID) (*models.DocumentRouting, error) {
	row := s.execer(ctx).QueryRowContext(ctx, selectRouting+`
		WHERE letter_id = $1 AND status IN ('pending', 'in_transit')`,
		uuid.UUID(letterID))
	rec, err := scanRouting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return rec, err
}

func (s *Postgres) ListByLetter(ctx context.Context, letterID domain.LetterID) ([]*models.DocumentRouting, error) {
	rows, err := s.db.QueryContext(ctx, selectRouting+`
		WHERE letter_id = $1
		ORDER BY routed_at ASC, id ASC`, uuid.UUID(letterID))
	if err != nil {
		return nil, fmt.Errorf("list document routings: %w", err)
	}
	defer rows.Close()

	var out []*models.DocumentRouting
	for rows.Next() {
		rec, err := scanRouting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const selectRouting = `
	SELECT id, letter_id, from_department, to_department, rule_id,
	       status, routed_at, delivered_at, notes, routed_by
	FROM document_routings
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRouting(row rowScanner) (*models.DocumentRouting, error) {
	var (
		r             models.DocumentRouting
		id, letterID  uuid.UUID
		routedBy      uuid.UUID
		ruleID        *uuid.UUID
		from, to, st  string
	)
	err := row.Scan(&id, &letterID, &from, &to, &ruleID,
		&st, &r.RoutedAt, &r.DeliveredAt, &r.Notes, &routedBy)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan document routing: %w", err)
	}
	r.ID = domain.RoutingID(id)
	r.LetterID = domain.LetterID(letterID)
	r.FromDepartment = domain.Department(from)
	r.ToDepartment = domain.Department(to)
	r.Status = models.RoutingStatus(st)
	r.RoutedBy = domain.ActorID(routedBy)
	if ruleID != nil {
		rid := domain.RuleID(*ruleID)
		r.RuleID = &rid
	}
	return &r, nil
}
