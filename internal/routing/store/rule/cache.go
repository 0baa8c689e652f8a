package rule

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	lettermodels "courier/internal/letter/models"
	"courier/internal/routing/models"
	"courier/pkg/domain"
)

// SnapshotTTL bounds staleness of cached rule snapshots. Rule edits also
// invalidate eagerly; the TTL only covers edits made by another instance.
const SnapshotTTL = 30 * time.Second

// Store is the subset of rule persistence the cache decorates.
type Store interface {
	Create(ctx context.Context, rule *models.RoutingRule) error
	Save(ctx context.Context, rule *models.RoutingRule) error
	Load(ctx context.Context, id domain.RuleID) (*models.RoutingRule, error)
	FindActiveBySource(ctx context.Context, dept domain.Department) ([]*models.RoutingRule, error)
	ListBySource(ctx context.Context, dept domain.Department) ([]*models.RoutingRule, error)
	Remove(ctx context.Context, id domain.RuleID) error
}

// Cached decorates a rule store with a Redis snapshot cache keyed by source
// department. A snapshot fetched at the start of an evaluation is what the
// evaluator sees for that whole evaluation; a rule edited mid-flight changes
// later evaluations only. Cache failures degrade to the underlying store,
// never to an error.
type Cached struct {
	Store
	rdb    *redis.Client
	logger *slog.Logger
}

func NewCached(store Store, rdb *redis.Client, logger *slog.Logger) *Cached {
	return &Cached{Store: store, rdb: rdb, logger: logger}
}

func snapshotKey(dept domain.Department) string {
	return "courier:rules:active:" + string(dept)
}

func (c *Cached) FindActiveBySource(ctx context.Context, dept domain.Department) ([]*models.RoutingRule, error) {
	if cached, ok := c.fetch(ctx, dept); ok {
		return cached, nil
	}

	rules, err := c.Store.FindActiveBySource(ctx, dept)
	if err != nil {
		return nil, err
	}
	c.put(ctx, dept, rules)
	return rules, nil
}

func (c *Cached) Create(ctx context.Context, rule *models.RoutingRule) error {
	if err := c.Store.Create(ctx, rule); err != nil {
		return err
	}
	c.invalidate(ctx, rule.SourceDepartment)
	return nil
}

func (c *Cached) Save(ctx context.Context, rule *models.RoutingRule) error {
	if err := c.Store.Save(ctx, rule); err != nil {
		return err
	}
	c.invalidate(ctx, rule.SourceDepartment)
	return nil
}

func (c *Cached) Remove(ctx context.Context, id domain.RuleID) error {
	rule, err := c.Store.Load(ctx, id)
	if err != nil {
		return err
	}
	if err := c.Store.Remove(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, rule.SourceDepartment)
	return nil
}

// snapshotRule is the cached wire form; conditions flatten the same way the
// SQL store stores them.
type snapshotRule struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	SourceDepartment  string    `json:"source_department"`
	TargetDepartment  string    `json:"target_department"`
	TitleContains     string    `json:"title_contains,omitempty"`
	ReferenceContains string    `json:"reference_contains,omitempty"`
	Keywords          []string  `json:"keywords,omitempty"`
	Status            string    `json:"status,omitempty"`
	Priority          int       `json:"priority"`
	CreatedBy         string    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (c *Cached) fetch(ctx context.Context, dept domain.Department) ([]*models.RoutingRule, bool) {
	raw, err := c.rdb.Get(ctx, snapshotKey(dept)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.WarnContext(ctx, "rule snapshot fetch failed", "department", string(dept), "error", err)
		}
		return nil, false
	}

	var snap []snapshotRule
	if err := json.Unmarshal(raw, &snap); err != nil {
		c.logger.WarnContext(ctx, "rule snapshot decode failed", "department", string(dept), "error", err)
		return nil, false
	}

	rules := make([]*models.RoutingRule, 0, len(snap))
	for _, sr := range snap {
		id, err := domain.ParseRuleID(sr.ID)
		if err != nil {
			return nil, false
		}
		createdBy, err := domain.ParseActorID(sr.CreatedBy)
		if err != nil {
			return nil, false
		}
		rules = append(rules, &models.RoutingRule{
			ID:               id,
			Name:             sr.Name,
			SourceDepartment: domain.Department(sr.SourceDepartment),
			TargetDepartment: domain.Department(sr.TargetDepartment),
			Conditions: models.RuleConditions{
				TitleContains:     sr.TitleContains,
				ReferenceContains: sr.ReferenceContains,
				Keywords:          sr.Keywords,
				Status:            lettermodels.Status(sr.Status),
			},
			Priority:  sr.Priority,
			Active:    true,
			CreatedBy: createdBy,
			CreatedAt: sr.CreatedAt,
			UpdatedAt: sr.UpdatedAt,
		})
	}
	return rules, true
}

func (c *Cached) put(ctx context.Context, dept domain.Department, rules []*models.RoutingRule) {
	snap := make([]snapshotRule, 0, len(rules))
	for _, r := range rules {
		snap = append(snap, snapshotRule{
			ID:                r.ID.String(),
			Name:              r.Name,
			SourceDepartment:  string(r.SourceDepartment),
			TargetDepartment:  string(r.TargetDepartment),
			TitleContains:     r.Conditions.TitleContains,
			ReferenceContains: r.Conditions.ReferenceContains,
			Keywords:          r.Conditions.Keywords,
			Status:            string(r.Conditions.Status),
			Priority:          r.Priority,
			CreatedBy:         r.CreatedBy.String(),
			CreatedAt:         r.CreatedAt,
			UpdatedAt:         r.UpdatedAt,
		})
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, snapshotKey(dept), raw, SnapshotTTL).Err(); err != nil {
		c.logger.WarnContext(ctx, "rule snapshot store failed", "department", string(dept), "error", err)
	}
}

func (c *Cached) invalidate(ctx context.Context, dept domain.Department) {
	if err := c.rdb.Del(ctx, snapshotKey(dept)).Err(); err != nil {
		c.logger.WarnContext(ctx, "rule snapshot invalidation failed", "department", string(dept), "error", err)
	}
}
