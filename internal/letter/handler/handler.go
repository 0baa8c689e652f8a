// Package handler exposes the letter submission and verification endpoints.
// It is a thin layer: decode, resolve the actor, delegate, encode.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"courier/internal/letter/models"
	"courier/internal/letter/service"
	"courier/internal/platform/middleware"
	routingmodels "courier/internal/routing/models"
	"courier/internal/transport/http/shared"
	"courier/pkg/domain"
	dErrors "courier/pkg/domain-errors"
	"courier/pkg/platform/audit"
	"courier/pkg/requestcontext"
)

// Service defines the letter operations the handler delegates to.
type Service interface {
	Submit(ctx context.Context, in service.SubmitInput, actor domain.Actor) (*models.Letter, error)
	Verify(ctx context.Context, id domain.LetterID, passcode string, actor domain.Actor) (*service.VerifyResult, error)
	Reject(ctx context.Context, id domain.LetterID, reason string, actor domain.Actor) (*models.Letter, error)
	Get(ctx context.Context, id domain.LetterID) (*models.Letter, error)
	GetByReference(ctx context.Context, reference string) (*models.Letter, error)
	Status(ctx context.Context, id domain.LetterID) (models.Status, error)
	AuditTrail(ctx context.Context, id domain.LetterID) ([]audit.Entry, error)
}

// Handler handles letter endpoints.
type Handler struct {
	logger    *slog.Logger
	letters   Service
	validator middleware.TokenValidator
}

// New creates a new letter Handler.
func New(letters Service, logger *slog.Logger, validator middleware.TokenValidator) *Handler {
	return &Handler{
		logger:    logger,
		letters:   letters,
		validator: validator,
	}
}

// Register registers the letter routes with the chi router. Routes are added
// through an inline group so several module handlers can share one parent
// router, each behind its own auth middleware.
func (h *Handler) Register(r chi.Router) {
	r.Group(func(lr chi.Router) {
		lr.Use(middleware.RequireAuth(h.validator, h.logger))
		lr.Post("/letters", h.handleSubmit)
		lr.Get("/letters", h.handleGetByReference)
		lr.Get("/letters/{letterID}", h.handleGet)
		lr.Get("/letters/{letterID}/status", h.handleStatus)
		lr.Get("/letters/{letterID}/audit", h.handleAuditTrail)
		lr.Post("/letters/{letterID}/verify", h.handleVerify)
		lr.Post("/letters/{letterID}/reject", h.handleReject)
	})
}

type submitRequest struct {
	Reference  string `json:"reference"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	FolderRef  string `json:"folder_ref"`
	Department string `json:"department"`
	Passcode   string `json:"passcode"`
}

type verifyRequest struct {
	Passcode string `json:"passcode"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type letterResponse struct {
	ID              string    `json:"id"`
	Reference       string    `json:"reference"`
	Title           string    `json:"title"`
	Content         string    `json:"content,omitempty"`
	FolderRef       string    `json:"folder_ref,omitempty"`
	Department      string    `json:"department"`
	Status          string    `json:"status"`
	RejectionReason string    `json:"rejection_reason,omitempty"`
	SubmittedBy     string    `json:"submitted_by"`
	OwnedBy         string    `json:"owned_by"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type verifyResponse struct {
	Letter  letterResponse   `json:"letter"`
	Routing *routingResponse `json:"routing,omitempty"`
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

func toLetterResponse(l *models.Letter) letterResponse {
	return letterResponse{
		ID:              l.ID.String(),
		Reference:       l.Reference,
		Title:           l.Title,
		Content:         l.Content,
		FolderRef:       l.FolderRef,
		Department:      string(l.Department),
		Status:          string(l.Status),
		RejectionReason: l.RejectionReason,
		SubmittedBy:     l.SubmittedBy.String(),
		OwnedBy:         l.OwnedBy.String(),
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func toRoutingResponse(rec *routingmodels.DocumentRouting) *routingResponse {
	if rec == nil {
		return nil
	}
	resp := &routingResponse{
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

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	letter, err := h.letters.Submit(ctx, service.SubmitInput{
		Reference:  req.Reference,
		Title:      req.Title,
		Content:    req.Content,
		FolderRef:  req.FolderRef,
		Department: domain.Department(req.Department),
		Passcode:   req.Passcode,
	}, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "submit letter", err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, toLetterResponse(letter))
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}
	id, err := domain.ParseLetterID(chi.URLParam(r, "letterID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	result, err := h.letters.Verify(ctx, id, req.Passcode, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "verify letter", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, verifyResponse{
		Letter:  toLetterResponse(result.Letter),
		Routing: toRoutingResponse(result.Routing),
	})
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(ctx, w)
	if !ok {
		return
	}
	id, err := domain.ParseLetterID(chi.URLParam(r, "letterID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	letter, err := h.letters.Reject(ctx, id, req.Reason, actor)
	if err != nil {
		h.writeServiceError(ctx, w, "reject letter", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, toLetterResponse(letter))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseLetterID(chi.URLParam(r, "letterID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	letter, err := h.letters.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "get letter", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toLetterResponse(letter))
}

func (h *Handler) handleGetByReference(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeValidation, "reference query parameter is required"))
		return
	}

	letter, err := h.letters.GetByReference(r.Context(), reference)
	if err != nil {
		h.writeServiceError(r.Context(), w, "get letter by reference", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toLetterResponse(letter))
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseLetterID(chi.URLParam(r, "letterID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	status, err := h.letters.Status(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "get letter status", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func (h *Handler) handleAuditTrail(w http.ResponseWriter, r *http.Request) {
	id, err := domain.ParseLetterID(chi.URLParam(r, "letterID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	entries, err := h.letters.AuditTrail(r.Context(), id)
	if err != nil {
		h.writeServiceError(r.Context(), w, "get letter audit trail", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, shared.ToAuditResponses(entries))
}

// actor pulls the authenticated actor off the context. A miss means the auth
// middleware is misconfigured, not a client error.
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
		h.logger.ErrorContext(ctx, "letter operation failed",
			"operation", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	} else {
		h.logger.WarnContext(ctx, "letter operation rejected",
			"operation", op,
			"request_id", requestcontext.RequestID(ctx),
			"error", err.Error(),
		)
	}
	shared.WriteError(w, err)
}
