package closing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/keiri-cloud/keiri/internal/platform/db"
	"github.com/keiri-cloud/keiri/internal/shared"
)

// Repository provides PostgreSQL backed persistence for closings and the
// ledger views the auditors read.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const uniqueViolationCode = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}

// GetRecord loads one closing with its check results.
func (r *Repository) GetRecord(ctx context.Context, companyCode, yearMonth string) (Record, error) {
	rec := Record{CompanyCode: companyCode, YearMonth: yearMonth}
	var taxSummaryRaw, checklistRaw, checkResultRaw, reportDataRaw []byte
	err := r.pool.QueryRow(ctx, `SELECT id, status, consumption_tax_summary, checklist, check_result, report_data,
       check_completed_at, check_completed_by, approved_at, approved_by, approval_comment,
       closed_at, closed_by, reopened_at, reopened_by, reopen_reason, created_at, updated_at
FROM monthly_closings
WHERE company_code = $1 AND year_month = $2`, companyCode, yearMonth).Scan(
		&rec.ID, &rec.Status, &taxSummaryRaw, &checklistRaw, &checkResultRaw, &reportDataRaw,
		&rec.CheckCompletedAt, &rec.CheckCompletedBy, &rec.ApprovedAt, &rec.ApprovedBy, &rec.ApprovalComment,
		&rec.ClosedAt, &rec.ClosedBy, &rec.ReopenedAt, &rec.ReopenedBy, &rec.ReopenReason,
		&rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("closing %s/%s: %w", companyCode, yearMonth, shared.ErrNotFound)
	}
	if err != nil {
		return Record{}, err
	}
	if len(taxSummaryRaw) > 0 {
		var summary TaxSummary
		if err := json.Unmarshal(taxSummaryRaw, &summary); err != nil {
			return Record{}, fmt.Errorf("closing: decode tax summary: %w", err)
		}
		rec.TaxSummary = &summary
	}
	rec.Checklist = RawResultData(checklistRaw)
	rec.CheckResultData = RawResultData(checkResultRaw)
	rec.ReportData = RawResultData(reportDataRaw)

	results, err := r.listCheckResults(ctx, rec.ID)
	if err != nil {
		return Record{}, err
	}
	rec.CheckResults = results
	return rec, nil
}

func (r *Repository) listCheckResults(ctx context.Context, closingID uuid.UUID) ([]CheckResult, error) {
	rows, err := r.pool.Query(ctx, `SELECT item_key, status, message, result_data, checked_at, checked_by, comment
FROM monthly_closing_check_results
WHERE closing_id = $1
ORDER BY created_at`, closingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	results := []CheckResult{}
	for rows.Next() {
		var res CheckResult
		var message *string
		var raw []byte
		if err := rows.Scan(&res.ItemKey, &res.Status, &message, &raw, &res.CheckedAt, &res.CheckedBy, &res.Comment); err != nil {
			return nil, err
		}
		if message != nil {
			res.Message = *message
		}
		if len(raw) > 0 {
			res.Data = RawResultData(raw)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// InsertRecord creates a new closing row. A concurrent insert for the same
// company and month surfaces as errDuplicateRecord.
func (r *Repository) InsertRecord(ctx context.Context, rec Record) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO monthly_closings (id, company_code, year_month, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $5)`, rec.ID, rec.CompanyCode, rec.YearMonth, rec.Status, rec.CreatedAt)
	if isUniqueViolation(err) {
		return errDuplicateRecord
	}
	return err
}

// ListRecords returns closing summaries, newest month first.
func (r *Repository) ListRecords(ctx context.Context, companyCode string, year *int, limit int) ([]Summary, error) {
	query := `SELECT id, year_month, status, check_completed_at, approved_at, closed_at, created_at
FROM monthly_closings
WHERE company_code = $1`
	args := []any{companyCode}
	if year != nil {
		query += ` AND year_month LIKE $2 ORDER BY year_month DESC LIMIT $3`
		args = append(args, fmt.Sprintf("%d-%%", *year), limit)
	} else {
		query += ` ORDER BY year_month DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	summaries := []Summary{}
	for rows.Next() {
		var s Summary
		if err := rows.Scan(&s.ID, &s.YearMonth, &s.Status, &s.CheckCompletedAt, &s.ApprovedAt, &s.ClosedAt, &s.CreatedAt); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// SaveCheckResult upserts one check result keyed by (closing_id, item_key).
func (r *Repository) SaveCheckResult(ctx context.Context, closingID uuid.UUID, result CheckResult) error {
	var raw []byte
	if result.Data != nil {
		encoded, err := json.Marshal(result.Data)
		if err != nil {
			return fmt.Errorf("closing: encode result data: %w", err)
		}
		raw = encoded
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO monthly_closing_check_results (closing_id, item_key, status, message, result_data, checked_at, checked_by, comment)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (closing_id, item_key)
DO UPDATE SET status = $3, message = $4, result_data = $5, checked_at = $6, checked_by = $7, comment = $8, updated_at = now()`,
		closingID, result.ItemKey, result.Status, result.Message, raw, result.CheckedAt, result.CheckedBy, result.Comment)
	return err
}

// UpdateStatus sets the closing status.
func (r *Repository) UpdateStatus(ctx context.Context, closingID uuid.UUID, status Status) error {
	_, err := r.pool.Exec(ctx, `UPDATE monthly_closings SET status = $1, updated_at = now() WHERE id = $2`,
		status, closingID)
	return err
}

// EnsureAccountingPeriod creates the open accounting period for a month if
// it does not exist yet.
func (r *Repository) EnsureAccountingPeriod(ctx context.Context, companyCode string, ym shared.YearMonth) error {
	var id int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM accounting_periods
WHERE company_code = $1 AND period_start = $2 AND period_end = $3`,
		companyCode, ym.PeriodStart(), ym.PeriodEnd()).Scan(&id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	payload := map[string]any{
		"periodStart": ym.PeriodStart().Format("2006-01-02"),
		"periodEnd":   ym.PeriodEnd().Format("2006-01-02"),
		"isOpen":      true,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `INSERT INTO accounting_periods (company_code, period_start, period_end, payload)
VALUES ($1, $2, $3, $4)`, companyCode, ym.PeriodStart(), ym.PeriodEnd(), raw)
	if isUniqueViolation(err) {
		return nil
	}
	return err
}

// SaveTaxSummary stores the consumption tax summary on the closing row.
func (r *Repository) SaveTaxSummary(ctx context.Context, closingID uuid.UUID, summary TaxSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("closing: encode tax summary: %w", err)
	}
	_, err = r.pool.Exec(ctx, `UPDATE monthly_closings SET consumption_tax_summary = $1, updated_at = now() WHERE id = $2`,
		raw, closingID)
	return err
}

// ApproveRecord stamps an approval and hands the closing back to adjusting.
func (r *Repository) ApproveRecord(ctx context.Context, closingID uuid.UUID, approvedBy string, comment *string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE monthly_closings
SET status = $1, approved_at = $2, approved_by = $3, approval_comment = $4, updated_at = now()
WHERE id = $5`, StatusAdjusting, at, approvedBy, comment, closingID)
	return err
}

// CloseRecord finalises the month in one transaction: the closing row is
// stamped, the accounting period gate shuts with a backreference to the
// closing, and the GL monthly view refreshes. The row lock serialises
// concurrent closes; the loser sees the month already closed.
func (r *Repository) CloseRecord(ctx context.Context, stamp CloseStamp) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var status Status
		if err := tx.QueryRow(ctx, `SELECT status FROM monthly_closings WHERE id = $1 FOR UPDATE`,
			stamp.ClosingID).Scan(&status); err != nil {
			return err
		}
		if status == StatusClosed {
			return ErrAlreadyClosed
		}

		if _, err := tx.Exec(ctx, `UPDATE monthly_closings
SET status = $1, closed_at = $2, closed_by = $3, updated_at = now()
WHERE id = $4`, StatusClosed, stamp.ClosedAt, stamp.ClosedBy, stamp.ClosingID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `UPDATE accounting_periods
SET payload = jsonb_set(payload, '{isOpen}', 'false'::jsonb), closing_id = $1, updated_at = now()
WHERE company_code = $2 AND period_start = $3 AND period_end = $4`,
			stamp.ClosingID, stamp.CompanyCode, stamp.YearMonth.PeriodStart(), stamp.YearMonth.PeriodEnd()); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `REFRESH MATERIALIZED VIEW CONCURRENTLY mv_gl_monthly`); err != nil {
			return fmt.Errorf("closing: refresh gl monthly view: %w", err)
		}
		return nil
	})
}

// ReopenRecord reverts a closed month and reopens its accounting period.
func (r *Repository) ReopenRecord(ctx context.Context, stamp ReopenStamp) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var status Status
		if err := tx.QueryRow(ctx, `SELECT status FROM monthly_closings WHERE id = $1 FOR UPDATE`,
			stamp.ClosingID).Scan(&status); err != nil {
			return err
		}
		if status != StatusClosed {
			return ErrNotClosed
		}

		if _, err := tx.Exec(ctx, `UPDATE monthly_closings
SET status = $1, reopened_at = $2, reopened_by = $3, reopen_reason = $4, updated_at = now()
WHERE id = $5`, StatusReopened, stamp.ReopenedAt, stamp.ReopenedBy, stamp.Reason, stamp.ClosingID); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `UPDATE accounting_periods
SET payload = jsonb_set(payload, '{isOpen}', 'true'::jsonb), updated_at = now()
WHERE company_code = $1 AND period_start = $2 AND period_end = $3`,
			stamp.CompanyCode, stamp.YearMonth.PeriodStart(), stamp.YearMonth.PeriodEnd())
		return err
	})
}

// CheckItemRows loads catalog rows for one tenant, global rows included.
func (r *Repository) CheckItemRows(ctx context.Context, companyCode string) ([]CheckItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT item_key, item_name_ja, item_name_en, item_name_zh, category, check_type, priority, is_required, is_active, company_code
FROM monthly_closing_check_items
WHERE (company_code = $1 OR company_code IS NULL)
ORDER BY priority, item_key`, companyCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []CheckItem{}
	for rows.Next() {
		var item CheckItem
		if err := rows.Scan(&item.ItemKey, &item.NameJa, &item.NameEn, &item.NameZh, &item.Category,
			&item.CheckType, &item.Priority, &item.IsRequired, &item.IsActive, &item.CompanyCode); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// LedgerReader implementation.

// OpenReceivables returns uncleared customer open items with the due date
// resolved from the linked sales invoice, falling back to the open item refs.
func (r *Repository) OpenReceivables(ctx context.Context, companyCode string) ([]OpenReceivable, error) {
	rows, err := r.pool.Query(ctx, `SELECT oi.id,
       COALESCE(oi.voucher_id, 0),
       COALESCE(v.voucher_no, ''),
       oi.partner_id,
       COALESCE(bp.name, ''),
       oi.doc_date,
       COALESCE(
         si.due_date,
         CASE WHEN (oi.refs->>'dueDate') ~ '^\d{4}-\d{2}-\d{2}$' THEN (oi.refs->>'dueDate')::date ELSE NULL END
       ) AS due_date,
       oi.residual_amount::text
FROM open_items oi
LEFT JOIN vouchers v
  ON v.company_code = oi.company_code AND v.id = oi.voucher_id
LEFT JOIN businesspartners bp
  ON bp.company_code = oi.company_code AND (bp.partner_code = oi.partner_id OR bp.id::text = oi.partner_id)
LEFT JOIN sales_invoices si
  ON si.company_code = oi.company_code AND si.invoice_no = (oi.refs->>'invoiceNo')
WHERE oi.company_code = $1
  AND oi.residual_amount > 0
  AND oi.doc_date IS NOT NULL
  AND EXISTS (
    SELECT 1 FROM accounts a
    WHERE a.company_code = oi.company_code
      AND a.account_code = oi.account_code
      AND COALESCE((a.payload->>'openItem')::boolean, false) = true
      AND COALESCE(a.payload->>'openItemBaseline', 'NONE') = 'CUSTOMER'
  )`, companyCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []OpenReceivable{}
	for rows.Next() {
		var it OpenReceivable
		var residual string
		if err := rows.Scan(&it.OpenItemID, &it.VoucherID, &it.VoucherNo, &it.PartnerID, &it.PartnerName,
			&it.DocDate, &it.DueDate, &residual); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(residual)
		if err != nil {
			return nil, fmt.Errorf("closing: parse residual amount: %w", err)
		}
		it.ResidualAmount = amount
		items = append(items, it)
	}
	return items, rows.Err()
}

// VendorOpenItemTotal aggregates uncleared vendor open items documented on
// or before the cutoff date.
func (r *Repository) VendorOpenItemTotal(ctx context.Context, companyCode string, docDateCutoff time.Time) (int64, decimal.Decimal, error) {
	var count int64
	var total string
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*), COALESCE(SUM(residual_amount), 0)::text
FROM open_items oi
WHERE oi.company_code = $1
  AND oi.residual_amount > 0
  AND oi.doc_date <= $2
  AND EXISTS (
    SELECT 1 FROM accounts a
    WHERE a.company_code = oi.company_code
      AND a.account_code = oi.account_code
      AND COALESCE((a.payload->>'openItem')::boolean, false) = true
      AND COALESCE(a.payload->>'openItemBaseline', 'NONE') = 'VENDOR'
  )`, companyCode, docDateCutoff).Scan(&count, &total)
	if err != nil {
		return 0, decimal.Zero, err
	}
	amount, err := decimal.NewFromString(total)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("closing: parse open item total: %w", err)
	}
	return count, amount, nil
}

// BankBookBalances returns cumulative book balances of bank accounts
// through the given period month.
func (r *Repository) BankBookBalances(ctx context.Context, companyCode string, periodMonth time.Time) ([]BankBalance, error) {
	rows, err := r.pool.Query(ctx, `SELECT m.account_code, SUM(m.net_amount)::text
FROM mv_gl_monthly m
JOIN accounts a
  ON a.company_code = m.company_code AND a.account_code = m.account_code
WHERE m.company_code = $1
  AND m.period_month <= $2
  AND COALESCE((a.payload->>'isBank')::boolean, false) = true
GROUP BY m.account_code
ORDER BY m.account_code`, companyCode, periodMonth)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	balances := []BankBalance{}
	for rows.Next() {
		var b BankBalance
		var balance string
		if err := rows.Scan(&b.AccountCode, &balance); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("closing: parse bank balance: %w", err)
		}
		b.BookBalance = amount
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// UnpostedBankFeedCount counts imported bank feed lines not yet posted.
func (r *Repository) UnpostedBankFeedCount(ctx context.Context, companyCode string, asOf time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*)
FROM bank_feed_transactions
WHERE company_code = $1
  AND transaction_date <= $2
  AND posting_status = 'pending'`, companyCode, asOf).Scan(&count)
	return count, err
}

// TaxAccountCodes reads the provisional tax account codes from company settings.
func (r *Repository) TaxAccountCodes(ctx context.Context, companyCode string) (TaxAccountCodes, error) {
	var input, output *string
	err := r.pool.QueryRow(ctx, `SELECT payload->>'inputTaxAccountCode', payload->>'outputTaxAccountCode'
FROM company_settings
WHERE company_code = $1
LIMIT 1`, companyCode).Scan(&input, &output)
	if errors.Is(err, pgx.ErrNoRows) {
		return TaxAccountCodes{}, nil
	}
	if err != nil {
		return TaxAccountCodes{}, err
	}
	var codes TaxAccountCodes
	if input != nil {
		codes.InputTaxAccountCode = *input
	}
	if output != nil {
		codes.OutputTaxAccountCode = *output
	}
	return codes, nil
}

// TaxAccountBalances sums monthly GL movement per account over a month range.
func (r *Repository) TaxAccountBalances(ctx context.Context, companyCode string, from, to time.Time, accountCodes []string) (map[string]decimal.Decimal, error) {
	rows, err := r.pool.Query(ctx, `SELECT account_code, SUM(net_amount)::text
FROM mv_gl_monthly
WHERE company_code = $1
  AND period_month >= $2 AND period_month <= $3
  AND account_code = ANY($4)
GROUP BY account_code`, companyCode, from, to, accountCodes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	balances := map[string]decimal.Decimal{}
	for rows.Next() {
		var code, balance string
		if err := rows.Scan(&code, &balance); err != nil {
			return nil, err
		}
		amount, err := decimal.NewFromString(balance)
		if err != nil {
			return nil, fmt.Errorf("closing: parse tax balance: %w", err)
		}
		balances[code] = amount
	}
	return balances, rows.Err()
}

// InvoiceRegistrationStats counts vouchers in the period by qualified
// invoice verification state.
func (r *Repository) InvoiceRegistrationStats(ctx context.Context, companyCode string, from, to time.Time) (InvoiceRegistrationStats, error) {
	var stats InvoiceRegistrationStats
	err := r.pool.QueryRow(ctx, `SELECT
  COUNT(*) FILTER (WHERE payload->'header'->>'invoiceRegistrationStatus' = 'matched'),
  COUNT(*) FILTER (WHERE COALESCE(payload->'header'->>'invoiceRegistrationNo', '') <> ''
                     AND payload->'header'->>'invoiceRegistrationStatus' IS NULL),
  COUNT(*) FILTER (WHERE payload->'header'->>'invoiceRegistrationStatus' IN ('not_found','inactive','expired')),
  COUNT(*)
FROM vouchers
WHERE company_code = $1
  AND posting_date >= $2 AND posting_date <= $3`, companyCode, from, to).Scan(
		&stats.MatchedCount, &stats.UnverifiedCount, &stats.InvalidCount, &stats.TotalCount)
	return stats, err
}

// DepreciationRun returns the depreciation posting for a month, nil if none.
func (r *Repository) DepreciationRun(ctx context.Context, companyCode, yearMonth string) (*DepreciationRun, error) {
	var run DepreciationRun
	err := r.pool.QueryRow(ctx, `SELECT voucher_no, asset_count, executed_at
FROM depreciation_runs
WHERE company_code = $1 AND year_month = $2`, companyCode, yearMonth).Scan(
		&run.VoucherNo, &run.AssetCount, &run.ExecutedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// PendingDepreciableAssets counts assets in service with book value left.
func (r *Repository) PendingDepreciableAssets(ctx context.Context, companyCode string, periodEnd time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*)
FROM fixed_assets
WHERE company_code = $1
  AND depreciation_start_date <= $2
  AND book_value > 1`, companyCode, periodEnd).Scan(&count)
	return count, err
}

// LatestPayrollRun returns the most recent payroll batch for a month, nil if none.
func (r *Repository) LatestPayrollRun(ctx context.Context, companyCode, yearMonth string) (*PayrollRun, error) {
	var run PayrollRun
	var total string
	err := r.pool.QueryRow(ctx, `SELECT status, total_amount::text
FROM payroll_runs
WHERE company_code = $1 AND period_month = $2
ORDER BY created_at DESC
LIMIT 1`, companyCode, yearMonth).Scan(&run.Status, &total)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("closing: parse payroll total: %w", err)
	}
	run.TotalAmount = amount
	return &run, nil
}

// TrialBalanceTotals sums cumulative debit and credit through the period
// month. A nil result means no journal data exists at all.
func (r *Repository) TrialBalanceTotals(ctx context.Context, companyCode string, periodMonth time.Time) (*TrialBalanceTotals, error) {
	var debit, credit *string
	err := r.pool.QueryRow(ctx, `SELECT SUM(debit_amount)::text, SUM(credit_amount)::text
FROM mv_gl_monthly
WHERE company_code = $1
  AND period_month <= $2`, companyCode, periodMonth).Scan(&debit, &credit)
	if err != nil {
		return nil, err
	}
	if debit == nil || credit == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*debit)
	if err != nil {
		return nil, fmt.Errorf("closing: parse debit total: %w", err)
	}
	c, err := decimal.NewFromString(*credit)
	if err != nil {
		return nil, fmt.Errorf("closing: parse credit total: %w", err)
	}
	return &TrialBalanceTotals{TotalDebit: d, TotalCredit: c}, nil
}

// TaxLineSums aggregates tax-flagged voucher lines in the period by
// direction and rate. Debit lines are input tax, credit lines output tax.
func (r *Repository) TaxLineSums(ctx context.Context, companyCode string, from, to time.Time) ([]TaxLineSum, error) {
	rows, err := r.pool.Query(ctx, `SELECT
  CASE WHEN line->>'drcr' = 'DR' THEN 'input' ELSE 'output' END AS direction,
  COALESCE((line->>'taxRate')::numeric, 10)::text AS tax_rate,
  SUM((line->>'amount')::numeric)::text AS tax_amount
FROM vouchers v
CROSS JOIN LATERAL jsonb_array_elements(v.payload->'lines') AS line
WHERE v.company_code = $1
  AND v.posting_date >= $2 AND v.posting_date <= $3
  AND (line->>'isTaxLine')::boolean = true
GROUP BY 1, 2`, companyCode, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sums := []TaxLineSum{}
	for rows.Next() {
		var s TaxLineSum
		var rate, amount string
		if err := rows.Scan(&s.Direction, &rate, &amount); err != nil {
			return nil, err
		}
		if s.Rate, err = decimal.NewFromString(rate); err != nil {
			return nil, fmt.Errorf("closing: parse tax rate: %w", err)
		}
		if s.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("closing: parse tax amount: %w", err)
		}
		sums = append(sums, s)
	}
	return sums, rows.Err()
}
