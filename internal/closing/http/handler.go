// Package closinghttp exposes the monthly closing JSON API.
package closinghttp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/keiri-cloud/keiri/internal/closing"
	"github.com/keiri-cloud/keiri/internal/platform/httpx"
	"github.com/keiri-cloud/keiri/internal/shared"
)

type closingService interface {
	StartOrGet(ctx context.Context, companyCode string, ym shared.YearMonth, startedBy *string) (closing.Record, error)
	Get(ctx context.Context, companyCode string, ym shared.YearMonth) (closing.Lookup, error)
	List(ctx context.Context, companyCode string, year *int, limit int) ([]closing.Summary, error)
	RunAllChecks(ctx context.Context, companyCode string, ym shared.YearMonth, checkedBy *string) ([]closing.CheckResult, error)
	RunCheck(ctx context.Context, companyCode string, ym shared.YearMonth, itemKey string, checkedBy *string) (closing.CheckResult, error)
	SetManualCheckResult(ctx context.Context, in closing.ManualCheckInput) (closing.CheckResult, error)
	CalculateTaxSummary(ctx context.Context, companyCode string, ym shared.YearMonth) (closing.TaxSummary, error)
	SubmitForApproval(ctx context.Context, companyCode string, ym shared.YearMonth, submittedBy string) error
	Approve(ctx context.Context, companyCode string, ym shared.YearMonth, approvedBy string, comment *string) error
	Close(ctx context.Context, companyCode string, ym shared.YearMonth, closedBy string) error
	Reopen(ctx context.Context, companyCode string, ym shared.YearMonth, reopenedBy, reason string) error
	CheckItems(ctx context.Context, companyCode string) ([]closing.CheckItem, error)
}

// Handler wires the monthly closing HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  closingService
	validate *validator.Validate
}

// NewHandler constructs a closing HTTP handler.
func NewHandler(logger *slog.Logger, service closingService) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
	}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/monthly-closing", func(r chi.Router) {
		r.Use(RequireCompanyCode)
		r.Get("/", h.list)
		r.Get("/check-items", h.checkItems)
		r.Post("/start", h.start)
		r.Route("/{yearMonth}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Post("/check", h.runAllChecks)
			r.Post("/check/{itemKey}", h.runCheck)
			r.Put("/check/{itemKey}", h.setManualCheck)
			r.Post("/tax-summary", h.taxSummary)
			r.Post("/submit-approval", h.submitApproval)
			r.Post("/approve", h.approve)
			r.Post("/close", h.close)
			r.Post("/reopen", h.reopen)
		})
	})
}

// RequireCompanyCode resolves the tenant from the X-Company-Code header.
func RequireCompanyCode(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimSpace(r.Header.Get("X-Company-Code"))
		if code == "" {
			httpx.Error(w, http.StatusBadRequest, "Missing x-company-code")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithCompanyCode(r.Context(), code)))
	})
}

type startRequest struct {
	YearMonth string  `json:"yearMonth" validate:"required"`
	StartedBy *string `json:"startedBy"`
}

type actorRequest struct {
	CheckedBy *string `json:"checkedBy"`
}

type manualCheckRequest struct {
	Status    string  `json:"status"`
	Comment   *string `json:"comment"`
	CheckedBy *string `json:"checkedBy"`
}

type submitRequest struct {
	SubmittedBy string `json:"submittedBy"`
}

type approveRequest struct {
	ApprovedBy string  `json:"approvedBy"`
	Comment    *string `json:"comment"`
}

type closeRequest struct {
	ClosedBy string `json:"closedBy"`
}

type reopenRequest struct {
	ReopenedBy string `json:"reopenedBy"`
	Reason     string `json:"reason" validate:"required"`
}

type okResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

type checkBatchResponse struct {
	OK      bool                  `json:"ok"`
	Results []closing.CheckResult `json:"results"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	companyCode := shared.CompanyCodeFromContext(r.Context())
	var year *int
	if raw := r.URL.Query().Get("year"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			year = &value
		}
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			limit = value
		}
	}

	summaries, err := h.service.List(r.Context(), companyCode, year, limit)
	if err != nil {
		h.logger.Error("list closings", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summaries)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	companyCode := shared.CompanyCodeFromContext(r.Context())
	ym, ok := h.yearMonth(w, r)
	if !ok {
		return
	}
	lookup, err := h.service.Get(r.Context(), companyCode, ym)
	if err != nil {
		h.logger.Error("get closing", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if !lookup.Started {
		httpx.Error(w, http.StatusNotFound, closing.ErrClosingNotFound.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, lookup.Record)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request) {
	companyCode := shared.CompanyCodeFromContext(r.Context())
	var req startRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "yearMonth required (YYYY-MM)")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, "yearMonth required (YYYY-MM)")
		return
	}
	ym, err := shared.ParseYearMonth(req.YearMonth)
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "yearMonth required (YYYY-MM)")
		return
	}

	rec, err := h.service.StartOrGet(r.Context(), companyCode, ym, req.StartedBy)
	if err != nil {
		h.respondServiceError(w, "start closing", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) runAllChecks(w http.ResponseWriter, r *http.Request) {
	companyCode := shared.CompanyCodeFromContext(r.Context())
	ym, ok := h.yearMonth(w, r)
	if !ok {
		return
	}
	var req actorRequest
	h.decodeOptional(r, &req)

	results, err := h.service.RunAllChecks(r.Context(), companyCode, ym, req.CheckedBy)
	if err != nil {
		h.respondServiceError(w, "run all checks", err)
		return
	}
	httpx.JSON(w, http.StatusOK, checkBatchResponse{OK: true, Results: results})
}

func (h *Handler) runCheck(w http.ResponseWriter, r *http.Request) {
	companyCode := shared.CompanyCodeFromContext(r.Context())
	ym, ok := h.yearMonth(w, r)
	if !ok {
		return
	}
	var req actorRequest
	h.decodeOptional(r, &req)

	result, err := h.service.RunCheck(r.Context(), companyCode, ym, chi.URLParam(r, "itemKey"), req.CheckedBy)
	if err != nil {
		h.respondServiceError(w, "run check", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) setManualCheck(w http.ResponseWriter, r *http.Request) {
	companyCode := shared.CompanyCodeFromContext(r.Context())
	ym, ok := h.yearMonth(w, r)
	if !ok {
		return
	}
	req := manualCheckRequest{Status: string(closing.CheckStatusPending)}
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.service.SetManualCheckResult(r.Context(), closing.ManualCheckInput{
		CompanyCode: companyCode,
		YearMonth:   ym,
		ItemKey:     chi.URLParam(r, "itemKey"),
		Status:      closing.CheckStatus(req.Status),
		Comment:     req.Comment,
		CheckedBy:   req.CheckedBy,
	})
	if err != nil {
		h.respondServiceError(w, "set manual check", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) taxSummary(w http.ResponseWriter, r *http.Request) {
	companyCode := shared.CompanyCodeFromContext(r.Context())
	ym, ok := h.yearMonth(w, r)
	if !ok {
		return
	}
	summary, err := h.service.CalculateTaxSummary(r.Context(), companyCode, ym)
	if err != nil {
		h.respondServiceError(w, "calculate tax summary", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) submitApproval(w http.ResponseWriter, r *http.Request) {
	companyCode := shared.CompanyCodeFromContext(r.Context())
	ym, ok := h.yearMonth(w, r)
	if !ok {
		return
	}
	req := submitRequest{SubmittedBy: "unknown"}
	h.decodeOptional(r, &req)

	if err := h.service.SubmitForApproval(r.Context(), companyCode, ym, req.SubmittedBy); err != nil {
		h.respondServiceError(w, "submit approval", err)
		return
	}
	httpx.JSON(w, http.StatusOK, okResponse{OK: true, Message: "承認申請完了"})
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	companyCode := shared.CompanyCodeFromContext(r.Context())
	ym, ok := h.yearMonth(w, r)
	if !ok {
		return
	}
	req := approveRequest{ApprovedBy: "unknown"}
	h.decodeOptional(r, &req)

	if err := h.service.Approve(r.Context(), companyCode, ym, req.ApprovedBy, req.Comment); err != nil {
		h.respondServiceError(w, "approve closing", err)
		return
	}
	httpx.JSON(w, http.StatusOK, okResponse{OK: true, Message: "承認完了"})
}

func (h *Handler) close(w http.ResponseWriter, r *http.Request) {
	companyCode := shared.CompanyCodeFromContext(r.Context())
	ym, ok := h.yearMonth(w, r)
	if !ok {
		return
	}
	req := closeRequest{ClosedBy: "unknown"}
	h.decodeOptional(r, &req)

	if err := h.service.Close(r.Context(), companyCode, ym, req.ClosedBy); err != nil {
		h.respondServiceError(w, "close month", err)
		return
	}
	httpx.JSON(w, http.StatusOK, okResponse{OK: true, Message: "月次締め完了"})
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	companyCode := shared.CompanyCodeFromContext(r.Context())
	ym, ok := h.yearMonth(w, r)
	if !ok {
		return
	}
	req := reopenRequest{ReopenedBy: "unknown"}
	h.decodeOptional(r, &req)
	if err := h.validate.Struct(req); err != nil {
		httpx.Error(w, http.StatusBadRequest, closing.ErrReasonRequired.Error())
		return
	}

	if err := h.service.Reopen(r.Context(), companyCode, ym, req.ReopenedBy, req.Reason); err != nil {
		h.respondServiceError(w, "reopen month", err)
		return
	}
	httpx.JSON(w, http.StatusOK, okResponse{OK: true, Message: "月次締め再開完了"})
}

func (h *Handler) checkItems(w http.ResponseWriter, r *http.Request) {
	companyCode := shared.CompanyCodeFromContext(r.Context())
	items, err := h.service.CheckItems(r.Context(), companyCode)
	if err != nil {
		h.logger.Error("list check items", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) yearMonth(w http.ResponseWriter, r *http.Request) (shared.YearMonth, bool) {
	ym, err := shared.ParseYearMonth(chi.URLParam(r, "yearMonth"))
	if err != nil {
		httpx.Error(w, http.StatusBadRequest, "Invalid yearMonth format (YYYY-MM)")
		return shared.YearMonth{}, false
	}
	return ym, true
}

// decodeOptional tolerates empty request bodies.
func (h *Handler) decodeOptional(r *http.Request, target any) {
	if err := httpx.DecodeJSON(r, target); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Debug("ignoring malformed optional body", slog.Any("error", err))
	}
}

// State machine violations surface as 400 with the domain message.
var badRequestErrors = []error{
	closing.ErrNotStarted,
	closing.ErrClosingNotFound,
	closing.ErrAlreadyClosed,
	closing.ErrPeriodClosed,
	closing.ErrNotPendingApproval,
	closing.ErrNotClosed,
	closing.ErrReasonRequired,
	closing.ErrCheckItemNotFound,
	closing.ErrInvalidCheckStatus,
	closing.ErrChecksNotClean,
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	for _, sentinel := range badRequestErrors {
		if errors.Is(err, sentinel) {
			httpx.Error(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.RespondError(w, err)
}
