package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/keiri-cloud/keiri/internal/observability"
)

var glDriftTolerance = decimal.RequireFromString("0.01")

// GLIntegrityScanner walks tenants' cumulative GL totals looking for
// debit/credit drift. Findings are logged and counted; the scan never
// touches the view itself, the closing flow owns refreshes.
type GLIntegrityScanner struct {
	pool    *pgxpool.Pool
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewGLIntegrityScanner constructs a scanner.
func NewGLIntegrityScanner(pool *pgxpool.Pool, metrics *observability.Metrics, logger *slog.Logger) *GLIntegrityScanner {
	return &GLIntegrityScanner{pool: pool, metrics: metrics, logger: logger}
}

// Handle processes TaskGLIntegrityScan tasks.
func (s *GLIntegrityScanner) Handle(ctx context.Context, t *asynq.Task) error {
	var payload GLIntegrityScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	return s.Scan(ctx, payload.CompanyCodes)
}

// Scan runs the drift check for the given tenants, or every tenant when
// none are named.
func (s *GLIntegrityScanner) Scan(ctx context.Context, companyCodes []string) error {
	query := `SELECT company_code, SUM(debit_amount)::text, SUM(credit_amount)::text
FROM mv_gl_monthly
GROUP BY company_code
ORDER BY company_code`
	args := []any{}
	if len(companyCodes) > 0 {
		query = `SELECT company_code, SUM(debit_amount)::text, SUM(credit_amount)::text
FROM mv_gl_monthly
WHERE company_code = ANY($1)
GROUP BY company_code
ORDER BY company_code`
		args = append(args, companyCodes)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	scanned := 0
	findings := 0
	for rows.Next() {
		var companyCode, debitRaw, creditRaw string
		if err := rows.Scan(&companyCode, &debitRaw, &creditRaw); err != nil {
			return err
		}
		debit, err := decimal.NewFromString(debitRaw)
		if err != nil {
			return err
		}
		credit, err := decimal.NewFromString(creditRaw)
		if err != nil {
			return err
		}
		scanned++

		drift := debit.Sub(credit)
		if drift.Abs().LessThan(glDriftTolerance) {
			continue
		}
		findings++
		s.metrics.ObserveGLDrift(companyCode)
		s.logger.Warn("gl debit/credit drift detected",
			slog.String("job", "gl_integrity_scan"),
			slog.String("company_code", companyCode),
			slog.String("drift", drift.String()))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	s.logger.Info("gl integrity scan completed",
		slog.String("job", "gl_integrity_scan"),
		slog.Int("tenants", scanned),
		slog.Int("findings", findings))
	return nil
}
