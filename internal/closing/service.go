package closing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/keiri-cloud/keiri/internal/observability"
	"github.com/keiri-cloud/keiri/internal/shared"
)

const defaultListLimit = 24

// errDuplicateRecord signals a concurrent start inserted the record first.
var errDuplicateRecord = errors.New("closing: record already exists")

// Store persists closing records and check results. The pg repository
// implements it; tests substitute an in-memory store.
type Store interface {
	GetRecord(ctx context.Context, companyCode, yearMonth string) (Record, error)
	InsertRecord(ctx context.Context, rec Record) error
	ListRecords(ctx context.Context, companyCode string, year *int, limit int) ([]Summary, error)
	SaveCheckResult(ctx context.Context, closingID uuid.UUID, result CheckResult) error
	UpdateStatus(ctx context.Context, closingID uuid.UUID, status Status) error
	EnsureAccountingPeriod(ctx context.Context, companyCode string, ym shared.YearMonth) error
	SaveTaxSummary(ctx context.Context, closingID uuid.UUID, summary TaxSummary) error
	ApproveRecord(ctx context.Context, closingID uuid.UUID, approvedBy string, comment *string, at time.Time) error
	CloseRecord(ctx context.Context, stamp CloseStamp) error
	ReopenRecord(ctx context.Context, stamp ReopenStamp) error
}

// CloseStamp carries everything the close transaction writes.
type CloseStamp struct {
	ClosingID   uuid.UUID
	CompanyCode string
	YearMonth   shared.YearMonth
	ClosedBy    string
	ClosedAt    time.Time
}

// ReopenStamp carries everything the reopen transaction writes.
type ReopenStamp struct {
	ClosingID   uuid.UUID
	CompanyCode string
	YearMonth   shared.YearMonth
	ReopenedBy  string
	Reason      string
	ReopenedAt  time.Time
}

// Service orchestrates the monthly closing lifecycle for all tenants.
type Service struct {
	store    Store
	ledger   LedgerReader
	registry *Registry
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time

	taxFlight singleflight.Group

	// requireCleanChecks refuses Close while failed or pending check
	// results remain. Off by default.
	requireCleanChecks bool
}

// NewService constructs a closing Service.
func NewService(store Store, ledger LedgerReader, registry *Registry, metrics *observability.Metrics, logger *slog.Logger, requireCleanChecks bool) *Service {
	return &Service{
		store:              store,
		ledger:             ledger,
		registry:           registry,
		metrics:            metrics,
		logger:             logger,
		now:                time.Now,
		requireCleanChecks: requireCleanChecks,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// StartOrGet begins the closing for a month, or returns the existing record.
// Starting is idempotent; a lost insert race resolves to the winner's record.
func (s *Service) StartOrGet(ctx context.Context, companyCode string, ym shared.YearMonth, startedBy *string) (Record, error) {
	rec, err := s.store.GetRecord(ctx, companyCode, ym.String())
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return Record{}, err
	}

	now := s.now()
	rec = Record{
		ID:           uuid.New(),
		CompanyCode:  companyCode,
		YearMonth:    ym.String(),
		Status:       StatusChecking,
		CreatedAt:    now,
		UpdatedAt:    now,
		CheckResults: []CheckResult{},
	}
	if err := s.store.InsertRecord(ctx, rec); err != nil {
		if errors.Is(err, errDuplicateRecord) {
			return s.store.GetRecord(ctx, companyCode, ym.String())
		}
		return Record{}, err
	}
	if err := s.store.EnsureAccountingPeriod(ctx, companyCode, ym); err != nil {
		return Record{}, err
	}

	by := "unknown"
	if startedBy != nil && *startedBy != "" {
		by = *startedBy
	}
	s.logger.Info("monthly closing started",
		slog.String("company_code", companyCode),
		slog.String("year_month", ym.String()),
		slog.String("started_by", by))
	s.metrics.ObserveTransition("start")
	return rec, nil
}

// Get returns the closing for a month if one has been started.
func (s *Service) Get(ctx context.Context, companyCode string, ym shared.YearMonth) (Lookup, error) {
	rec, err := s.store.GetRecord(ctx, companyCode, ym.String())
	if errors.Is(err, shared.ErrNotFound) {
		return Lookup{}, nil
	}
	if err != nil {
		return Lookup{}, err
	}
	return Lookup{Started: true, Record: rec}, nil
}

// List returns closing summaries, newest month first. A non-nil year
// restricts to that calendar year.
func (s *Service) List(ctx context.Context, companyCode string, year *int, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	return s.store.ListRecords(ctx, companyCode, year, limit)
}

// RunAllChecks executes the full check batch for a month and recomputes the
// closing status from the outcome. Manual and info items keep any verdict
// already on file; fresh ones start as pending.
func (s *Service) RunAllChecks(ctx context.Context, companyCode string, ym shared.YearMonth, checkedBy *string) ([]CheckResult, error) {
	rec, err := s.StartOrGet(ctx, companyCode, ym, checkedBy)
	if err != nil {
		return nil, err
	}
	if rec.Status == StatusClosed {
		return nil, ErrPeriodClosed
	}

	items, err := s.registry.ListCheckItems(ctx, companyCode)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]CheckResult, len(rec.CheckResults))
	for _, r := range rec.CheckResults {
		existing[r.ItemKey] = r
	}

	results := make([]CheckResult, 0, len(items))
	for _, item := range items {
		var result CheckResult
		if item.CheckType == CheckTypeAuto {
			result = s.safeAutoCheck(ctx, companyCode, ym, item.ItemKey)
		} else if prev, ok := existing[item.ItemKey]; ok {
			result = prev
		} else {
			result = CheckResult{ItemKey: item.ItemKey, Status: CheckStatusPending}
		}
		result.CheckedBy = checkedBy
		results = append(results, result)

		if err := s.store.SaveCheckResult(ctx, rec.ID, result); err != nil {
			return nil, err
		}
		s.metrics.ObserveCheck(result.ItemKey, string(result.Status))
	}

	newStatus := AggregateStatus(results)
	if err := s.store.UpdateStatus(ctx, rec.ID, newStatus); err != nil {
		return nil, err
	}
	s.logger.Info("check batch completed",
		slog.String("company_code", companyCode),
		slog.String("year_month", ym.String()),
		slog.Int("checks", len(results)),
		slog.String("status", string(newStatus)))
	return results, nil
}

// RunCheck executes a single check item and stores its result. The closing
// status is not recomputed; only a full batch does that.
func (s *Service) RunCheck(ctx context.Context, companyCode string, ym shared.YearMonth, itemKey string, checkedBy *string) (CheckResult, error) {
	rec, err := s.mustGet(ctx, companyCode, ym)
	if err != nil {
		return CheckResult{}, err
	}
	if rec.Status == StatusClosed {
		return CheckResult{}, ErrPeriodClosed
	}

	items, err := s.registry.ListCheckItems(ctx, companyCode)
	if err != nil {
		return CheckResult{}, err
	}
	var item *CheckItem
	for i := range items {
		if items[i].ItemKey == itemKey {
			item = &items[i]
			break
		}
	}
	if item == nil {
		return CheckResult{}, fmt.Errorf("%w: %s", ErrCheckItemNotFound, itemKey)
	}

	var result CheckResult
	if item.CheckType == CheckTypeAuto {
		result = s.safeAutoCheck(ctx, companyCode, ym, itemKey)
	} else {
		result = CheckResult{ItemKey: itemKey, Status: CheckStatusPending}
	}
	now := s.now()
	result.CheckedAt = &now
	result.CheckedBy = checkedBy

	if err := s.store.SaveCheckResult(ctx, rec.ID, result); err != nil {
		return CheckResult{}, err
	}
	s.metrics.ObserveCheck(result.ItemKey, string(result.Status))
	return result, nil
}

// SetManualCheckResult records a human verdict for a check item.
func (s *Service) SetManualCheckResult(ctx context.Context, in ManualCheckInput) (CheckResult, error) {
	if err := in.Validate(); err != nil {
		return CheckResult{}, err
	}
	rec, err := s.mustGet(ctx, in.CompanyCode, in.YearMonth)
	if err != nil {
		return CheckResult{}, err
	}
	if rec.Status == StatusClosed {
		return CheckResult{}, ErrPeriodClosed
	}

	now := s.now()
	result := CheckResult{
		ItemKey:   in.ItemKey,
		Status:    in.Status,
		Comment:   in.Comment,
		CheckedBy: in.CheckedBy,
		CheckedAt: &now,
	}
	if err := s.store.SaveCheckResult(ctx, rec.ID, result); err != nil {
		return CheckResult{}, err
	}
	return result, nil
}

// CalculateTaxSummary recomputes and persists the consumption tax summary
// for a month. Concurrent recomputations for the same month are collapsed
// into one.
func (s *Service) CalculateTaxSummary(ctx context.Context, companyCode string, ym shared.YearMonth) (TaxSummary, error) {
	rec, err := s.mustGet(ctx, companyCode, ym)
	if err != nil {
		return TaxSummary{}, err
	}

	key := companyCode + "|" + ym.String()
	// The computation is shared across collapsed callers and must not die
	// with whichever request entered first.
	flightCtx := context.WithoutCancel(ctx)
	v, err, _ := s.taxFlight.Do(key, func() (any, error) {
		sums, err := s.ledger.TaxLineSums(flightCtx, companyCode, ym.PeriodStart(), ym.PeriodEnd())
		if err != nil {
			return nil, err
		}
		summary := BuildTaxSummary(ym.String(), sums, s.now())
		if err := s.store.SaveTaxSummary(ctx, rec.ID, summary); err != nil {
			return nil, err
		}
		return summary, nil
	})
	if err != nil {
		return TaxSummary{}, err
	}
	return v.(TaxSummary), nil
}

// SubmitForApproval moves the closing into pending_approval.
func (s *Service) SubmitForApproval(ctx context.Context, companyCode string, ym shared.YearMonth, submittedBy string) error {
	rec, err := s.mustGet(ctx, companyCode, ym)
	if err != nil {
		return err
	}
	if rec.Status == StatusClosed {
		return ErrAlreadyClosed
	}
	if err := s.store.UpdateStatus(ctx, rec.ID, StatusPendingApproval); err != nil {
		return err
	}
	s.logger.Info("closing submitted for approval",
		slog.String("company_code", companyCode),
		slog.String("year_month", ym.String()),
		slog.String("submitted_by", submittedBy))
	s.metrics.ObserveTransition("submit_approval")
	return nil
}

// Approve accepts a pending closing and hands it back for final adjustments.
func (s *Service) Approve(ctx context.Context, companyCode string, ym shared.YearMonth, approvedBy string, comment *string) error {
	rec, err := s.mustGet(ctx, companyCode, ym)
	if err != nil {
		return err
	}
	if rec.Status != StatusPendingApproval {
		return ErrNotPendingApproval
	}
	if err := s.store.ApproveRecord(ctx, rec.ID, approvedBy, comment, s.now()); err != nil {
		return err
	}
	s.metrics.ObserveTransition("approve")
	return nil
}

// Close finalises the month: the record is stamped, the accounting period
// gate shuts, and the GL monthly view refreshes, all in one transaction.
func (s *Service) Close(ctx context.Context, companyCode string, ym shared.YearMonth, closedBy string) error {
	rec, err := s.mustGet(ctx, companyCode, ym)
	if err != nil {
		return err
	}
	if rec.Status == StatusClosed {
		return ErrAlreadyClosed
	}
	if s.requireCleanChecks {
		for _, r := range rec.CheckResults {
			if r.Status == CheckStatusFailed || r.Status == CheckStatusPending {
				return fmt.Errorf("%w: %s", ErrChecksNotClean, r.ItemKey)
			}
		}
	}

	stamp := CloseStamp{
		ClosingID:   rec.ID,
		CompanyCode: companyCode,
		YearMonth:   ym,
		ClosedBy:    closedBy,
		ClosedAt:    s.now(),
	}
	if err := s.store.CloseRecord(ctx, stamp); err != nil {
		return err
	}
	s.logger.Info("monthly closing finalised",
		slog.String("company_code", companyCode),
		slog.String("year_month", ym.String()),
		slog.String("closed_by", closedBy))
	s.metrics.ObserveTransition("close")
	return nil
}

// Reopen reverts a closed month. The reason is mandatory and kept on the
// record; check results from the closed run stay untouched.
func (s *Service) Reopen(ctx context.Context, companyCode string, ym shared.YearMonth, reopenedBy, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return ErrReasonRequired
	}
	rec, err := s.store.GetRecord(ctx, companyCode, ym.String())
	if errors.Is(err, shared.ErrNotFound) {
		return ErrClosingNotFound
	}
	if err != nil {
		return err
	}
	if rec.Status != StatusClosed {
		return ErrNotClosed
	}

	stamp := ReopenStamp{
		ClosingID:   rec.ID,
		CompanyCode: companyCode,
		YearMonth:   ym,
		ReopenedBy:  reopenedBy,
		Reason:      reason,
		ReopenedAt:  s.now(),
	}
	if err := s.store.ReopenRecord(ctx, stamp); err != nil {
		return err
	}
	s.logger.Warn("monthly closing reopened",
		slog.String("company_code", companyCode),
		slog.String("year_month", ym.String()),
		slog.String("reopened_by", reopenedBy),
		slog.String("reason", reason))
	s.metrics.ObserveTransition("reopen")
	return nil
}

// CheckItems exposes the effective check item catalog for a tenant.
func (s *Service) CheckItems(ctx context.Context, companyCode string) ([]CheckItem, error) {
	return s.registry.ListCheckItems(ctx, companyCode)
}

func (s *Service) mustGet(ctx context.Context, companyCode string, ym shared.YearMonth) (Record, error) {
	rec, err := s.store.GetRecord(ctx, companyCode, ym.String())
	if errors.Is(err, shared.ErrNotFound) {
		return Record{}, ErrNotStarted
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

// safeAutoCheck shields the batch from a panicking auditor.
func (s *Service) safeAutoCheck(ctx context.Context, companyCode string, ym shared.YearMonth, itemKey string) (result CheckResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("check panicked",
				slog.String("item_key", itemKey),
				slog.Any("panic", r))
			now := s.now()
			result = CheckResult{
				ItemKey:   itemKey,
				Status:    CheckStatusFailed,
				Message:   fmt.Sprintf("チェック実行エラー: %v", r),
				CheckedAt: &now,
			}
		}
	}()
	return runAutoCheck(ctx, s.ledger, companyCode, ym, itemKey, s.now())
}
