package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"courier/internal/routing/models"
	"courier/internal/routing/ports"
	"courier/pkg/domain"
	dErrors "courier/pkg/domain-errors"
	"courier/pkg/platform/audit"
	"courier/pkg/platform/sentinel"
	platformstrings "courier/pkg/platform/strings"
	"courier/pkg/requestcontext"
)

// RuleInput carries the editable fields of a routing rule.
type RuleInput struct {
	Name             string
	SourceDepartment domain.Department
	TargetDepartment domain.Department
	Conditions       models.RuleConditions
	Priority         int
}

func (in RuleInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return dErrors.New(dErrors.CodeValidation, "rule name is required")
	}
	if in.SourceDepartment == "" || in.TargetDepartment == "" {
		return dErrors.New(dErrors.CodeValidation, "source and target departments are required")
	}
	if in.SourceDepartment == in.TargetDepartment {
		return dErrors.New(dErrors.CodeValidation, "source and target departments must differ")
	}
	if in.Priority < models.MinPriority || in.Priority > models.MaxPriority {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("priority must be between %d and %d", models.MinPriority, models.MaxPriority))
	}
	if in.Conditions.Status != "" && !in.Conditions.Status.IsValid() {
		return dErrors.New(dErrors.CodeBadRequest, "unknown status condition: "+string(in.Conditions.Status))
	}
	return nil
}

// normalize canonicalizes the free-text condition fields. Keyword matching is
// case-insensitive, so keywords are stored lowercased and deduplicated.
func (in RuleInput) normalize() RuleInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Conditions.TitleContains = strings.TrimSpace(in.Conditions.TitleContains)
	in.Conditions.ReferenceContains = strings.TrimSpace(in.Conditions.ReferenceContains)
	in.Conditions.Keywords = platformstrings.DedupeAndTrimLower(in.Conditions.Keywords)
	return in
}

// CreateRule adds an active routing rule for the actor's department.
func (s *Service) CreateRule(ctx context.Context, in RuleInput, actor domain.Actor) (*models.RoutingRule, error) {
	in = in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}
	if !actor.CanActFor(domain.RoleRuleAdmin, in.SourceDepartment) {
		return nil, dErrors.New(dErrors.CodeForbidden, "rule admin role for the source department required")
	}

	now := requestcontext.Now(ctx)
	rule := &models.RoutingRule{
		ID:               domain.NewRuleID(),
		Name:             in.Name,
		SourceDepartment: in.SourceDepartment,
		TargetDepartment: in.TargetDepartment,
		Conditions:       in.Conditions,
		Priority:         in.Priority,
		Active:           true,
		CreatedBy:        actor.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	entry := &audit.Entry{
		Action:     audit.ActionRuleCreated,
		EntityType: audit.EntityRule,
		EntityID:   rule.ID.String(),
		ActorID:    actor.ID,
		Details: audit.DetailsFromContext(ctx, map[string]string{
			"name":     rule.Name,
			"source":   string(rule.SourceDepartment),
			"target":   string(rule.TargetDepartment),
			"priority": fmt.Sprintf("%d", rule.Priority),
		}),
		Timestamp: now,
	}
	if err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.rules.Create(ctx, rule); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "create routing rule")
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			if rmErr := s.rules.Remove(ctx, rule.ID); rmErr != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "unwind of failed rule creation left orphan rule",
					"rule_id", rule.ID.String(), "error", rmErr)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "append audit entry")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	ports.LogAudit(ctx, s.logger, string(audit.ActionRuleCreated),
		"rule_id", rule.ID.String(), "source", string(rule.SourceDepartment))
	return rule, nil
}

// UpdateRule replaces a rule's editable fields. The source department is
// fixed at creation; moving a rule between departments would rewrite the
// meaning of its historical routing records.
func (s *Service) UpdateRule(ctx context.Context, id domain.RuleID, in RuleInput, actor domain.Actor) (*models.RoutingRule, error) {
	in = in.normalize()
	if err := in.validate(); err != nil {
		return nil, err
	}

	rule, err := s.loadRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanActFor(domain.RoleRuleAdmin, rule.SourceDepartment) {
		return nil, dErrors.New(dErrors.CodeForbidden, "rule admin role for the source department required")
	}
	if in.SourceDepartment != rule.SourceDepartment {
		return nil, dErrors.New(dErrors.CodeValidation, "source department cannot be changed")
	}

	now := requestcontext.Now(ctx)
	prev := *rule
	rule.Name = in.Name
	rule.TargetDepartment = in.TargetDepartment
	rule.Conditions = in.Conditions
	rule.Priority = in.Priority
	rule.UpdatedAt = now

	entry := &audit.Entry{
		Action:     audit.ActionRuleUpdated,
		EntityType: audit.EntityRule,
		EntityID:   rule.ID.String(),
		ActorID:    actor.ID,
		Details: audit.DetailsFromContext(ctx, map[string]string{
			"name":     rule.Name,
			"target":   string(rule.TargetDepartment),
			"priority": fmt.Sprintf("%d", rule.Priority),
		}),
		Timestamp: now,
	}
	if err := s.commitRule(ctx, &prev, rule, entry); err != nil {
		return nil, err
	}

	ports.LogAudit(ctx, s.logger, string(audit.ActionRuleUpdated), "rule_id", rule.ID.String())
	return rule, nil
}

// DisableRule deactivates a rule. Rules are never deleted so the rule
// references on historical routing records stay resolvable.
func (s *Service) DisableRule(ctx context.Context, id domain.RuleID, actor domain.Actor) (*models.RoutingRule, error) {
	rule, err := s.loadRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanActFor(domain.RoleRuleAdmin, rule.SourceDepartment) {
		return nil, dErrors.New(dErrors.CodeForbidden, "rule admin role for the source department required")
	}
	if !rule.Active {
		return nil, dErrors.New(dErrors.CodeInvalidTransition, "rule already disabled")
	}

	now := requestcontext.Now(ctx)
	prev := *rule
	rule.Active = false
	rule.UpdatedAt = now

	entry := &audit.Entry{
		Action:     audit.ActionRuleDisabled,
		EntityType: audit.EntityRule,
		EntityID:   rule.ID.String(),
		ActorID:    actor.ID,
		Details:    audit.DetailsFromContext(ctx, map[string]string{"name": rule.Name}),
		Timestamp:  now,
	}
	if err := s.commitRule(ctx, &prev, rule, entry); err != nil {
		return nil, err
	}

	ports.LogAudit(ctx, s.logger, string(audit.ActionRuleDisabled), "rule_id", rule.ID.String())
	return rule, nil
}

// ListRules returns all rules for a department in evaluation order.
func (s *Service) ListRules(ctx context.Context, dept domain.Department) ([]*models.RoutingRule, error) {
	rules, err := s.rules.ListBySource(ctx, dept)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list routing rules")
	}
	return rules, nil
}

func (s *Service) loadRule(ctx context.Context, id domain.RuleID) (*models.RoutingRule, error) {
	rule, err := s.rules.Load(ctx, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "routing rule not found")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load routing rule")
	}
	return rule, nil
}

func (s *Service) commitRule(ctx context.Context, prev, next *models.RoutingRule, entry *audit.Entry) error {
	return s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if err := s.rules.Save(ctx, next); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save routing rule")
		}
		if err := s.ledger.Append(ctx, entry); err != nil {
			if restoreErr := s.rules.Save(ctx, prev); restoreErr != nil && s.logger != nil {
				s.logger.ErrorContext(ctx, "unwind of failed rule update did not restore rule",
					"rule_id", prev.ID.String(), "error", restoreErr)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "append audit entry")
		}
		return nil
	})
}
