// Package handler exposes the routing-rule administration and delivery
// lifecycle endpoints.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	lettermodels "courier/internal/letter/models"
	"courier/internal/platform/middleware"
	"courier/internal/routing/models"
	"courier/internal/routing/service"
	"courier/internal/transport/http/shared"
	"courier/pkg/domain"
	dErrors "courier/pkg/domain-errors"
	"courier/pkg/platform/audit"
	"courier/pkg/requestcontext"
)

// Service defines the routing operations the handler delegates to.
type Service interface {
	RouteManually(ctx context.Context, letterID domain.LetterID, target domain.Department, notes string, actor domain.Actor) (*models.DocumentRouting, error)
	Advance(ctx context.Context, id domain.RoutingID, notes string, actor domain.Actor) (*models.DocumentRouting, error)
	RejectDelivery(ctx context.Context, id domain.RoutingID, notes string, actor domain.Actor) (*models.DocumentRouting, error)
	GetRouting(ctx context.Context, id domain.RoutingID) (*models.DocumentRouting, error)
	History(ctx context.Context, letterID domain.LetterID) ([]*models.DocumentRouting, error)
	AuditTrail(ctx context.Context, id domain.RoutingID) ([]audit.Entry, error)

	CreateRule(ctx context.Context, in service.RuleInput, actor domain.Actor) (*models.RoutingRule, error)
	UpdateRule(ctx context.Context, id domain.RuleID, in service.RuleInput, actor domain.Actor) (*models.RoutingRule, error)
	DisableRule(ctx context.Context, id domain.RuleID, actor domain.Actor) (*models.RoutingRule, error)
	ListRules(ctx context.Context, dept domain.Department) ([]*models.RoutingRule, error)
}

// Handler handles routing endpoints.
type Handler struct {
	logger    *slog.Logger
	routing   Service
	validator middleware.TokenValidator
}

// New creates a new routing Handler.
func New(routing Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		routing:   routing,
		validator: validator,
	}
}

// Register registers the routing routes with the chi router. Routes are added
// through an inline group so several module handlers can share one parent
// router, each behind its own auth middleware.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(rr chi.Router) {
		rr.Use(middleware.RequireAuth(h.validator, h.logger))

		rr.Post("/letters/{letterID}/route", h.handleRouteManually)
		rr.Get("/letters/{letterID}/routings", h.handleHistory)

		rr.Get("/routings/{routingID}", h.handleGetRouting)
		rr.Get("/routings/{routingID}/audit", h.handleAuditTrail)
		rr.Post("/routings/{routingID}/advance", h.handleAdvance)
		rr.Post("/routings/{routingID}/reject", h.handleRejectDelivery)

		rr.Post("/rules", h.handleCreateRule)
		rr.Get("/rules", h.handleListRules)
		rr.Put("/rules/{ruleID}", h.handleUpdateRule)
		rr.Post("/rules/{ruleID}/disable", h.handleDisableRule)
	})
}

type manualRouteRequest struct {
	TargetDepartment string `json:"target_department"`
	Notes            string `json:"notes"`
}

type notesRequest struct {
	Notes string `json:"notes"`
}

type ruleRequest struct {
	Name             string         `json:"name"`
	SourceDepartment string         `json:"source_department"`
	TargetDepartment string         `json:"target_department"`
	Conditions       ruleConditions `json:"conditions"`
	Priority         int            `json:"priority"`
}

type ruleConditions struct {
	TitleContains     string   `json:"title_contains,omitempty"`
	ReferenceContains string   `json:"reference_contains,omitempty"`
	Keywords          []string `json:"keywords,omitempty"`
	Status            string   `json:"status,omitempty"`
}

type ruleResponse struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	SourceDepartment string         `json:"source_department"`
	TargetDepartment string         `json:"target_department"`
	Conditions       ruleConditions `json:"conditions"`
	Priority         int            `json:"priority"`
	Active           bool           `json:"active"`
	CreatedBy        string         `json:"created_by"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

type routingResponse struct {
	ID             string     `json:"id"`
	LetterID       string     `json:"letter_id"`
	FromDepartment string     `json:"from_department"`
	ToDepartment   string     `json:"to_department"`
	RuleID         string     `json:"rule_id,omitempty"`
	Status         string     `json:"status"`
	RoutedAt       time.Time  `json:"routed_at"`
	DeliveredAt    *time.Time `json:"delivered_at,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	RoutedBy       string     `json:"routed_by"`
}

func (req ruleRequest) toInput() service.RuleInput {
	return service.RuleInput{
		Name:             req.Name,
		SourceDepartment: domain.Department(req.SourceDepartment),
		TargetDepartment: domain.Department(req.TargetDepartment),
		Conditions: models.RuleConditions{
			TitleContains:     req.Conditions.TitleContains,
			ReferenceContains: req.Conditions.ReferenceContains,
			Keywords:          req.Conditions.Keywords,
			Status:            lettermodels.Status(req.Conditions.Status),
		},
		Priority: req.Priority,
	}
}

func toRuleResponse(rule *models.RoutingRule) ruleResponse {
	return ruleResponse{
		ID:               rule.ID.String(),
		Name:             rule.Name,
		SourceDepartment: string(rule.SourceDepartment),
		TargetDepartment: string(rule.TargetDepartment),
		Conditions: ruleConditions{
			TitleContains:     rule.Conditions.TitleContains,
			ReferenceContains: rule.Conditions.ReferenceContains,
			Keywords:          rule.Conditions.Keywords,
			Status:            string(rule.Conditions.Status),
		},
		Priority:  rule.Priority,
		Active:    rule.Active,
		CreatedBy: rule.CreatedBy.String(),
		CreatedAt: rule.CreatedAt,
		UpdatedAt: rule.UpdatedAt,
	}
}

func toRoutingResponse(rec *models.DocumentRouting) routingResponse {
	resp := routingResponse{
		ID:             rec.ID.String(),
		LetterID:       rec.LetterID.String(),
		FromDepartment: string(rec.FromDepartment),
		ToDepartment:   string(rec.ToDepartment),
		Status:         string(rec.Status),
		RoutedAt:       rec.RoutedAt,
		DeliveredAt:    rec.DeliveredAt,
		Notes:          rec.Notes,
		RoutedBy:       rec.RoutedBy.String(),
	}
	if rec.RuleID != nil {
		resp.RuleID = rec.RuleID.String()
	}
	return resp
}

func (h *Handler) handleRouteManually(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}
	letterID, err := domain.ParseLetterID(chi.URLParam(r, "letterID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req manualRouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	rec, err := h.routing.RouteManually(ctx, letterID, domain.Department(req.TargetDepartment), req.Notes, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "route letter manually", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toRoutingResponse(rec))
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "advance routing", h.routing.Advance)
}

func (h *Handler) handleRejectDelivery(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, "reject routing", h.routing.RejectDelivery)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, op string,
	transition func(context.Context, domain.RoutingID, string, domain.Actor) (*models.DocumentRouting, error)) {
	ctx := r.Context()
	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}
	id, err := domain.ParseRoutingID(chi.URLParam(r, "routingID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req notesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	rec, err := transition(ctx, id, req.Notes, actor)
	if err != nil {
		h.writeServiceError(ctx, w, op, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRoutingResponse(rec))
}

func (h *Handler) handleGetRouting(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseRoutingID(chi.URLParam(r, "routingID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	rec, err := h.routing.GetRouting(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "get routing", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRoutingResponse(rec))
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	letterID, err := domain.ParseLetterID(chi.URLParam(r, "letterID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	records, err := h.routing.History(r.Context(), letterID)
	if err != nil {
		h.writeServiceError(r.Context(), w, "get routing history", err)
		return
	}

	out := make([]routingResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRoutingResponse(rec))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseRoutingID(chi.URLParam(r, "routingID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	entries, err := h.routing.AuditTrail(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "get routing audit trail", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, shared.ToAuditResponses(entries))
}

func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	rule, err := h.routing.CreateRule(ctx, req.toInput(), actor)
	if err != nil {
		h.writeServiceError(ctx, w, "create rule", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (h *Handler) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}
	id, err := domain.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	rule, err := h.routing.UpdateRule(ctx, id, req.toInput(), actor)
	if err != nil {
		h.writeServiceError(ctx, w, "update rule", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (h *Handler) handleDisableRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}
	id, err := domain.ParseRuleID(chi.URLParam(r, "ruleID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	rule, err := h.routing.DisableRule(ctx, id, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "disable rule", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (h *Handler) handleListRules(w http.ResponseWriter, r *http.Request) {
	dept := domain.Department(r.URL.Query().Get("department"))
	if dept == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "department query parameter is required"))
		return
	}

	rules, err := h.routing.ListRules(r.Context(), dept)
	if err != nil {
		h.writeServiceError(r.Context(), w, "list rules", err)
		return
	}

	out := make([]ruleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, toRuleResponse(rule))
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) actor(ctx context.Context, w http.ResponseWriter) (domain.Actor, bool) {
	actor, ok := requestcontext.Actor(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "actor missing from context despite auth middleware",
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return domain.Actor{}, false
	}
	return actor, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "routing operation failed",
			"operation", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, "routing operation rejected",
			"operation", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	shared.WriteError(w, err)
}
