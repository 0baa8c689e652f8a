package rule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	lettermodels "courier/internal/letter/models"
	"courier/internal/routing/models"
	"courier/pkg/domain"
	"courier/pkg/platform/sentinel"
	txcontext "courier/pkg/platform/tx"
)

// Postgres persists routing rules. Conditions are stored as a JSONB column;
// they are read as a unit by the evaluator and never queried field-by-field.
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

type conditionsJSON struct {
	TitleContains     string   `json:"title_contains,omitempty"`
	ReferenceContains string   `json:"reference_contains,omitempty"`
	Keywords          []string `json:"keywords,omitempty"`
	Status            string   `json:"status,omitempty"`
}

func (s *Postgres) Create(ctx context.Context, rule *models.RoutingRule) error {
	conditions, err := marshalConditions(rule.Conditions)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO routing_rules (
			id, name, source_department, target_department, conditions,
			priority, active, created_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(rule.ID), rule.Name,
		string(rule.SourceDepartment), string(rule.TargetDepartment),
		conditions, rule.Priority, rule.Active,
		uuid.UUID(rule.CreatedBy), rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create routing rule: %w", err)
	}
	return nil
}

func (s *Postgres) Save(ctx context.Context, rule *models.RoutingRule) error {
	conditions, err := marshalConditions(rule.Conditions)
	if err != nil {
		return err
	}
	query := `
		UPDATE routing_rules
		SET name = $2, target_department = $3, conditions = $4,
		    priority = $5, active = $6, updated_at = $7
		WHERE id = $1
	`
	res, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.UUID(rule.ID), rule.Name, string(rule.TargetDepartment),
		conditions, rule.Priority, rule.Active, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save routing rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("save routing rule: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// Remove deletes a rule. Only used to unwind an uncommitted creation;
// committed rules are disabled, never removed.
func (s *Postgres) Remove(ctx context.Context, id domain.RuleID) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM routing_rules WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("remove routing rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("remove routing rule: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Postgres) Load(ctx context.Context, id domain.RuleID) (*models.RoutingRule, error) {
	row := s.execer(ctx).QueryRowContext(ctx, selectRule+` WHERE id = $1`, uuid.UUID(id))
	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	return rule, err
}

func (s *Postgres) FindActiveBySource(ctx context.Context, dept domain.Department) ([]*models.RoutingRule, error) {
	return s.list(ctx, selectRule+`
		WHERE source_department = $1 AND active
		ORDER BY priority DESC, created_at ASC, id ASC`, string(dept))
}

func (s *Postgres) ListBySource(ctx context.Context, dept domain.Department) ([]*models.RoutingRule, error) {
	return s.list(ctx, selectRule+`
		WHERE source_department = $1
		ORDER BY priority DESC, created_at ASC, id ASC`, string(dept))
}

const selectRule = `
	SELECT id, name, source_department, target_department, conditions,
	       priority, active, created_by, created_at, updated_at
	FROM routing_rules
`

func (s *Postgres) list(ctx context.Context, query string, args ...any) ([]*models.RoutingRule, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list routing rules: %w", err)
	}
	defer rows.Close()

	var out []*models.RoutingRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*models.RoutingRule, error) {
	var (
		r             models.RoutingRule
		id, createdBy uuid.UUID
		source, tgt   string
		conditions    []byte
	)
	err := row.Scan(&id, &r.Name, &source, &tgt, &conditions,
		&r.Priority, &r.Active, &createdBy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan routing rule: %w", err)
	}
	r.ID = domain.RuleID(id)
	r.SourceDepartment = domain.Department(source)
	r.TargetDepartment = domain.Department(tgt)
	r.CreatedBy = domain.ActorID(createdBy)

	var cj conditionsJSON
	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &cj); err != nil {
			return nil, fmt.Errorf("unmarshal rule conditions: %w", err)
		}
	}
	r.Conditions = models.RuleConditions{
		TitleContains:     cj.TitleContains,
		ReferenceContains: cj.ReferenceContains,
		Keywords:          cj.Keywords,
		Status:            lettermodels.Status(cj.Status),
	}
	return &r, nil
}

func marshalConditions(c models.RuleConditions) ([]byte, error) {
	b, err := json.Marshal(conditionsJSON{
		TitleContains:     c.TitleContains,
		ReferenceContains: c.ReferenceContains,
		Keywords:          c.Keywords,
		Status:            string(c.Status),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rule conditions: %w", err)
	}
	return b, nil
}
