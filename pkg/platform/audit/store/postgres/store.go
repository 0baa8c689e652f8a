package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"courier/pkg/domain"
	"courier/pkg/platform/audit"
	txcontext "courier/pkg/platform/tx"
)

// Ledger persists audit entries in PostgreSQL. The audit_entries table has a
// bigserial seq column, so insertion order is assigned by the database and
// survives restarts. When the context carries a transaction (tx.WithTx) the
// insert joins it, making the audit append atomic with the state write.
type Ledger struct {
	db *sql.DB
}

func New(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (l *Ledger) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return l.db
}

func (l *Ledger) Append(ctx context.Context, entry *audit.Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}

	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	query := `
		INSERT INTO audit_entries (id, action, category, entity_type, entity_id, actor_id, details, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING seq
	`
	row := l.execer(ctx).QueryRowContext(ctx, query,
		entry.ID,
		string(entry.Action),
		string(entry.Action.Category()),
		string(entry.EntityType),
		entry.EntityID,
		uuid.UUID(entry.ActorID),
		details,
		entry.Timestamp,
	)
	if err := row.Scan(&entry.Seq); err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

func (l *Ledger) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]audit.Entry, error) {
	query := `
		SELECT id, action, entity_type, entity_id, actor_id, details, ts, seq
		FROM audit_entries
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY ts ASC, seq ASC
	`
	rows, err := l.db.QueryContext(ctx, query, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []audit.Entry
	for rows.Next() {
		var (
			e       audit.Entry
			action  string
			etype   string
			actorID uuid.UUID
			details []byte
		)
		if err := rows.Scan(&e.ID, &action, &etype, &e.EntityID, &actorID, &details, &e.Timestamp, &e.Seq); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = audit.Action(action)
		e.EntityType = audit.EntityType(etype)
		e.ActorID = domain.ActorID(actorID)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("unmarshal audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
