package closing

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/keiri-cloud/keiri/internal/shared"
)

// Status enumerates the monthly closing lifecycle stages.
type Status string

const (
	StatusChecking        Status = "checking"
	StatusAdjusting       Status = "adjusting"
	StatusPendingApproval Status = "pending_approval"
	StatusClosed          Status = "closed"
	StatusReopened        Status = "reopened"
)

// CheckStatus describes the outcome of one check item.
type CheckStatus string

const (
	CheckStatusPending CheckStatus = "pending"
	CheckStatusPassed  CheckStatus = "passed"
	CheckStatusWarning CheckStatus = "warning"
	CheckStatusFailed  CheckStatus = "failed"
	CheckStatusInfo    CheckStatus = "info"
	CheckStatusSkipped CheckStatus = "skipped"
)

// CheckType distinguishes automated checks from human ones.
type CheckType string

const (
	CheckTypeAuto   CheckType = "auto"
	CheckTypeManual CheckType = "manual"
	CheckTypeInfo   CheckType = "info"
)

// Record is the closing state for one company and month.
type Record struct {
	ID               uuid.UUID     `json:"id"`
	CompanyCode      string        `json:"companyCode"`
	YearMonth        string        `json:"yearMonth"`
	Status           Status        `json:"status"`
	TaxSummary       *TaxSummary   `json:"consumptionTaxSummary,omitempty"`
	// Report snapshots written outside the closing flow, passed through as stored.
	Checklist        RawResultData `json:"checklist,omitempty"`
	CheckResultData  RawResultData `json:"checkResult,omitempty"`
	ReportData       RawResultData `json:"reportData,omitempty"`
	CheckCompletedAt *time.Time    `json:"checkCompletedAt,omitempty"`
	CheckCompletedBy *string       `json:"checkCompletedBy,omitempty"`
	ApprovedAt       *time.Time    `json:"approvedAt,omitempty"`
	ApprovedBy       *string       `json:"approvedBy,omitempty"`
	ApprovalComment  *string       `json:"approvalComment,omitempty"`
	ClosedAt         *time.Time    `json:"closedAt,omitempty"`
	ClosedBy         *string       `json:"closedBy,omitempty"`
	ReopenedAt       *time.Time    `json:"reopenedAt,omitempty"`
	ReopenedBy       *string       `json:"reopenedBy,omitempty"`
	ReopenReason     *string       `json:"reopenReason,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
	CheckResults     []CheckResult `json:"checkResults"`
}

// Summary is the list-view projection of a Record.
type Summary struct {
	ID               uuid.UUID  `json:"id"`
	YearMonth        string     `json:"yearMonth"`
	Status           Status     `json:"status"`
	CheckCompletedAt *time.Time `json:"checkCompletedAt,omitempty"`
	ApprovedAt       *time.Time `json:"approvedAt,omitempty"`
	ClosedAt         *time.Time `json:"closedAt,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Lookup is the result of fetching a closing that may not have been started.
// A month with no record is simply not started, which is not an error.
type Lookup struct {
	Started bool
	Record  Record
}

// CheckItem is one entry of the check item catalog.
type CheckItem struct {
	ItemKey     string    `json:"itemKey"`
	NameJa      string    `json:"itemNameJa"`
	NameEn      *string   `json:"itemNameEn,omitempty"`
	NameZh      *string   `json:"itemNameZh,omitempty"`
	Category    string    `json:"category"`
	CheckType   CheckType `json:"checkType"`
	Priority    int       `json:"priority"`
	IsRequired  bool      `json:"isRequired"`
	IsActive    bool      `json:"isActive"`
	CompanyCode *string   `json:"-"`
}

// CheckResult is the stored outcome of one check item for a closing.
type CheckResult struct {
	ItemKey   string      `json:"itemKey"`
	Status    CheckStatus `json:"status"`
	Message   string      `json:"message,omitempty"`
	Data      ResultData  `json:"data,omitempty"`
	CheckedAt *time.Time  `json:"checkedAt,omitempty"`
	CheckedBy *string     `json:"checkedBy,omitempty"`
	Comment   *string     `json:"comment,omitempty"`
}

// ResultData is the structured payload attached to a check result. Each
// auditor produces its own concrete type; rows loaded back from storage
// carry RawResultData.
type ResultData interface {
	isResultData()
}

// RawResultData holds a result payload as stored, without re-typing it.
type RawResultData json.RawMessage

func (RawResultData) isResultData() {}

// MarshalJSON passes the stored bytes through untouched.
func (r RawResultData) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return []byte(r), nil
}

// UnmarshalJSON stores the raw bytes.
func (r *RawResultData) UnmarshalJSON(data []byte) error {
	*r = append((*r)[0:0], data...)
	return nil
}

// TaxSummary is the consumption tax aggregate for one closing month.
type TaxSummary struct {
	YearMonth      string          `json:"yearMonth"`
	OutputTax10    decimal.Decimal `json:"outputTax10"`
	OutputTax8     decimal.Decimal `json:"outputTax8"`
	InputTax10     decimal.Decimal `json:"inputTax10"`
	InputTax8      decimal.Decimal `json:"inputTax8"`
	TotalOutputTax decimal.Decimal `json:"totalOutputTax"`
	TotalInputTax  decimal.Decimal `json:"totalInputTax"`
	NetTax         decimal.Decimal `json:"netTax"`
	Direction      string          `json:"direction"`
	CalculatedAt   time.Time       `json:"calculatedAt"`
}

// Tax payment directions.
const (
	TaxDirectionPayment = "納付"
	TaxDirectionRefund  = "還付"
)

// Domain errors. Messages surface verbatim in API error bodies.
var (
	ErrNotStarted         = errors.New("月次締めが開始されていません")
	ErrClosingNotFound    = errors.New("月次締めが見つかりません")
	ErrAlreadyClosed      = errors.New("既に締め済みです")
	ErrPeriodClosed       = errors.New("締め済みの期間はチェックできません")
	ErrNotPendingApproval = errors.New("承認待ちステータスではありません")
	ErrNotClosed          = errors.New("締め済みの期間のみ再開できます")
	ErrReasonRequired     = errors.New("再開理由を入力してください")
	ErrCheckItemNotFound  = errors.New("チェック項目が見つかりません")
	ErrInvalidCheckStatus = errors.New("無効なチェックステータスです")
	ErrChecksNotClean     = errors.New("未解決のチェック項目があるため締めできません")
)

// ManualCheckInput carries a human-entered check verdict.
type ManualCheckInput struct {
	CompanyCode string
	YearMonth   shared.YearMonth
	ItemKey     string
	Status      CheckStatus
	Comment     *string
	CheckedBy   *string
}

// Validate restricts manual verdicts to the allowed vocabulary.
func (in ManualCheckInput) Validate() error {
	if strings.TrimSpace(in.ItemKey) == "" {
		return ErrCheckItemNotFound
	}
	switch in.Status {
	case CheckStatusPassed, CheckStatusWarning, CheckStatusFailed, CheckStatusInfo, CheckStatusSkipped, CheckStatusPending:
		return nil
	default:
		return ErrInvalidCheckStatus
	}
}

// AggregateStatus derives the closing status from a fresh batch of results.
// Any failure keeps the month in checking; a fully green batch moves it to
// adjusting; pending or warning results keep it in checking.
func AggregateStatus(results []CheckResult) Status {
	hasFailure := false
	allSettled := true
	for _, r := range results {
		if r.Status == CheckStatusFailed {
			hasFailure = true
		}
		switch r.Status {
		case CheckStatusPassed, CheckStatusInfo, CheckStatusSkipped:
		default:
			allSettled = false
		}
	}
	if hasFailure {
		return StatusChecking
	}
	if allSettled {
		return StatusAdjusting
	}
	return StatusChecking
}
