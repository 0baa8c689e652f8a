//go:build integration

package rule_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"courier/internal/routing/models"
	rulestore "courier/internal/routing/store/rule"
	"courier/pkg/domain"
	"courier/pkg/testutil/containers"
)

const cacheDept = domain.Department("records")

type CachedStoreSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	inner  *rulestore.InMemory
	cached *rulestore.Cached
}

func TestCachedStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(CachedStoreSuite))
}

func (s *CachedStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *CachedStoreSuite) TearDownSuite() {
	if s.redis != nil {
		_ = s.redis.Client.Close()
		_ = s.redis.Container.Terminate(context.Background())
	}
}

func (s *CachedStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.inner = rulestore.NewInMemory()
	s.cached = rulestore.NewCached(s.inner, s.redis.Client, slog.Default())
}

func newCachedRule(name string, priority int) *models.RoutingRule {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.RoutingRule{
		ID:               domain.NewRuleID(),
		Name:             name,
		SourceDepartment: cacheDept,
		TargetDepartment: "archive",
		Conditions:       models.RuleConditions{Keywords: []string{"budget"}},
		Priority:         priority,
		Active:           true,
		CreatedBy:        domain.ActorID(uuid.New()),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (s *CachedStoreSuite) TestSnapshotRoundTrip() {
	ctx := context.Background()
	rule := newCachedRule("cached", 5)
	s.Require().NoError(s.cached.Create(ctx, rule))

	first, err := s.cached.FindActiveBySource(ctx, cacheDept)
	s.Require().NoError(err)
	s.Require().Len(first, 1)

	// The snapshot, not the store, serves the second read.
	s.Require().NoError(s.inner.Remove(ctx, rule.ID))
	second, err := s.cached.FindActiveBySource(ctx, cacheDept)
	s.Require().NoError(err)
	s.Require().Len(second, 1)
	s.Equal(rule.ID, second[0].ID)
	s.Equal(rule.Conditions.Keywords, second[0].Conditions.Keywords)
}

func (s *CachedStoreSuite) TestWritesInvalidateSnapshot() {
	ctx := context.Background()
	rule := newCachedRule("mutable", 5)
	s.Require().NoError(s.cached.Create(ctx, rule))

	_, err := s.cached.FindActiveBySource(ctx, cacheDept)
	s.Require().NoError(err)

	rule.Priority = 9
	s.Require().NoError(s.cached.Save(ctx, rule))

	rules, err := s.cached.FindActiveBySource(ctx, cacheDept)
	s.Require().NoError(err)
	s.Require().Len(rules, 1)
	s.Equal(9, rules[0].Priority)
}

func (s *CachedStoreSuite) TestRemoveInvalidatesSnapshot() {
	ctx := context.Background()
	rule := newCachedRule("short-lived", 5)
	s.Require().NoError(s.cached.Create(ctx, rule))

	_, err := s.cached.FindActiveBySource(ctx, cacheDept)
	s.Require().NoError(err)

	s.Require().NoError(s.cached.Remove(ctx, rule.ID))

	rules, err := s.cached.FindActiveBySource(ctx, cacheDept)
	s.Require().NoError(err)
	s.Empty(rules)
}

func (s *CachedStoreSuite) TestCorruptSnapshotFallsThrough() {
	ctx := context.Background()
	rule := newCachedRule("resilient", 5)
	s.Require().NoError(s.cached.Create(ctx, rule))

	s.Require().NoError(s.redis.Client.Set(ctx, "courier:rules:active:"+string(cacheDept), "{not json", 0).Err())

	rules, err := s.cached.FindActiveBySource(ctx, cacheDept)
	s.Require().NoError(err)
	s.Require().Len(rules, 1)
	s.Equal(rule.ID, rules[0].ID)
}

func (s *CachedStoreSuite) TestSnapshotExpires() {
	ctx := context.Background()
	rule := newCachedRule("ttl", 5)
	s.Require().NoError(s.cached.Create(ctx, rule))

	_, err := s.cached.FindActiveBySource(ctx, cacheDept)
	s.Require().NoError(err)

	ttl, err := s.redis.Client.TTL(ctx, "courier:rules:active:"+string(cacheDept)).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, rulestore.SnapshotTTL)
}
