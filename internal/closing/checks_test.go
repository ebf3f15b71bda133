package closing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/keiri-cloud/keiri/internal/shared"
)

var checkNow = time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC)

func runCheckFor(t *testing.T, ledger LedgerReader, itemKey string) CheckResult {
	t.Helper()
	ym := shared.MustYearMonth("2025-07")
	result := runAutoCheck(context.Background(), ledger, "ACME", ym, itemKey, checkNow)
	require.Equal(t, itemKey, result.ItemKey)
	require.NotNil(t, result.CheckedAt)
	return result
}

func TestOverdueReceivables(t *testing.T) {
	docDate := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	overdueDue := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	futureDue := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)

	t.Run("no overdue items pass", func(t *testing.T) {
		ledger := &stubLedger{receivables: []OpenReceivable{
			{OpenItemID: 1, DocDate: docDate, DueDate: &futureDue, ResidualAmount: decimal.NewFromInt(100000)},
		}}
		result := runCheckFor(t, ledger, CheckKeyAROverdue)
		require.Equal(t, CheckStatusPassed, result.Status)
		require.Equal(t, "逾期の売掛金はありません", result.Message)
	})

	t.Run("overdue items warn with totals", func(t *testing.T) {
		ledger := &stubLedger{receivables: []OpenReceivable{
			{OpenItemID: 1, PartnerName: "山田商事", DocDate: docDate, DueDate: &overdueDue, ResidualAmount: decimal.NewFromInt(150000)},
			{OpenItemID: 2, PartnerName: "鈴木物産", DocDate: docDate, DueDate: &overdueDue, ResidualAmount: decimal.NewFromInt(50000)},
		}}
		result := runCheckFor(t, ledger, CheckKeyAROverdue)
		require.Equal(t, CheckStatusWarning, result.Status)
		require.Contains(t, result.Message, "2件")
		require.Contains(t, result.Message, "¥200,000")

		data, ok := result.Data.(AROverdueData)
		require.True(t, ok)
		require.EqualValues(t, 2, data.Count)
		require.True(t, data.Total.Equal(decimal.NewFromInt(200000)))
	})

	t.Run("missing due date fails the check", func(t *testing.T) {
		ledger := &stubLedger{receivables: []OpenReceivable{
			{OpenItemID: 1, DocDate: docDate, DueDate: &overdueDue, ResidualAmount: decimal.NewFromInt(150000)},
			{OpenItemID: 2, DocDate: docDate, DueDate: nil, ResidualAmount: decimal.NewFromInt(80000)},
		}}
		result := runCheckFor(t, ledger, CheckKeyAROverdue)
		require.Equal(t, CheckStatusFailed, result.Status)
		require.Contains(t, result.Message, "支払期限が未設定")

		data, ok := result.Data.(AROverdueData)
		require.True(t, ok)
		require.EqualValues(t, 1, data.MissingDueDateCount)
		require.Len(t, data.MissingDueDateItems, 1)
	})
}

func TestUnclearedPayables(t *testing.T) {
	t.Run("none", func(t *testing.T) {
		result := runCheckFor(t, &stubLedger{}, CheckKeyAPUncleared)
		require.Equal(t, CheckStatusPassed, result.Status)
	})
	t.Run("open items reported as info", func(t *testing.T) {
		ledger := &stubLedger{vendorCount: 3, vendorTotal: decimal.NewFromInt(340000)}
		result := runCheckFor(t, ledger, CheckKeyAPUncleared)
		require.Equal(t, CheckStatusInfo, result.Status)
		require.Contains(t, result.Message, "3件")
		require.Contains(t, result.Message, "¥340,000")
	})
}

func TestOverduePayablesWarn(t *testing.T) {
	ledger := &stubLedger{vendorCount: 1, vendorTotal: decimal.NewFromInt(90000)}
	result := runCheckFor(t, ledger, CheckKeyAPOverdue)
	require.Equal(t, CheckStatusWarning, result.Status)
	require.Contains(t, result.Message, "期限超過買掛金")
}

func TestBankBalanceIsAlwaysInfo(t *testing.T) {
	ledger := &stubLedger{bankBalances: []BankBalance{
		{AccountCode: "1110", BookBalance: decimal.NewFromInt(2500000)},
		{AccountCode: "1120", BookBalance: decimal.NewFromInt(-30000)},
	}}
	result := runCheckFor(t, ledger, CheckKeyBankBalance)
	require.Equal(t, CheckStatusInfo, result.Status)
	require.Contains(t, result.Message, "2件")
	require.Contains(t, result.Message, "手動確認推奨")
}

func TestUnpostedBankFeed(t *testing.T) {
	result := runCheckFor(t, &stubLedger{unpostedCount: 4}, CheckKeyBankUnposted)
	require.Equal(t, CheckStatusWarning, result.Status)
	require.Contains(t, result.Message, "未記帳銀行明細: 4件")
}

func TestTemporaryTaxAccounts(t *testing.T) {
	t.Run("missing settings fail", func(t *testing.T) {
		result := runCheckFor(t, &stubLedger{}, CheckKeyTaxTemporary)
		require.Equal(t, CheckStatusFailed, result.Status)
		require.Contains(t, result.Message, "inputTaxAccountCode")
	})

	t.Run("balances reported with direction", func(t *testing.T) {
		ledger := &stubLedger{
			taxCodes: configuredTaxCodes(),
			taxBalances: map[string]decimal.Decimal{
				"1180": decimal.NewFromInt(30000),
				"2150": decimal.NewFromInt(80000),
			},
		}
		result := runCheckFor(t, ledger, CheckKeyTaxTemporary)
		require.Equal(t, CheckStatusInfo, result.Status)
		require.Contains(t, result.Message, TaxDirectionPayment)

		data, ok := result.Data.(TaxTemporaryData)
		require.True(t, ok)
		require.True(t, data.NetTax.Equal(decimal.NewFromInt(50000)))
	})

	t.Run("refund direction when input exceeds output", func(t *testing.T) {
		ledger := &stubLedger{
			taxCodes: configuredTaxCodes(),
			taxBalances: map[string]decimal.Decimal{
				"1180": decimal.NewFromInt(90000),
				"2150": decimal.NewFromInt(10000),
			},
		}
		result := runCheckFor(t, ledger, CheckKeyTaxTemporary)
		data, ok := result.Data.(TaxTemporaryData)
		require.True(t, ok)
		require.Equal(t, TaxDirectionRefund, data.Direction)
	})
}

func TestInvoiceRegistration(t *testing.T) {
	t.Run("no vouchers pass", func(t *testing.T) {
		result := runCheckFor(t, &stubLedger{}, CheckKeyTaxInvoiceValid)
		require.Equal(t, CheckStatusPassed, result.Status)
		require.Equal(t, "伝票なし", result.Message)
	})
	t.Run("unverified vouchers warn", func(t *testing.T) {
		ledger := &stubLedger{invoiceStats: InvoiceRegistrationStats{
			MatchedCount: 10, UnverifiedCount: 2, InvalidCount: 1, TotalCount: 13,
		}}
		result := runCheckFor(t, ledger, CheckKeyTaxInvoiceValid)
		require.Equal(t, CheckStatusWarning, result.Status)
		require.Contains(t, result.Message, "未検証: 2件")
		require.Contains(t, result.Message, "無効: 1件")
	})
	t.Run("all matched pass", func(t *testing.T) {
		ledger := &stubLedger{invoiceStats: InvoiceRegistrationStats{MatchedCount: 5, TotalCount: 5}}
		result := runCheckFor(t, ledger, CheckKeyTaxInvoiceValid)
		require.Equal(t, CheckStatusPassed, result.Status)
	})
}

func TestDepreciation(t *testing.T) {
	t.Run("posted run passes", func(t *testing.T) {
		ledger := &stubLedger{depRun: &DepreciationRun{VoucherNo: "DEP-2025-07", AssetCount: 8, ExecutedAt: checkNow}}
		result := runCheckFor(t, ledger, CheckKeyDepreciation)
		require.Equal(t, CheckStatusPassed, result.Status)
		require.Contains(t, result.Message, "DEP-2025-07")
	})
	t.Run("pending assets warn", func(t *testing.T) {
		result := runCheckFor(t, &stubLedger{pendingAssets: 3}, CheckKeyDepreciation)
		require.Equal(t, CheckStatusWarning, result.Status)
		require.Contains(t, result.Message, "未償却資産: 3件")
	})
	t.Run("nothing to depreciate passes", func(t *testing.T) {
		result := runCheckFor(t, &stubLedger{}, CheckKeyDepreciation)
		require.Equal(t, CheckStatusPassed, result.Status)
	})
}

func TestPayrollPosted(t *testing.T) {
	t.Run("no payroll data is informational", func(t *testing.T) {
		result := runCheckFor(t, &stubLedger{}, CheckKeyPayrollPosted)
		require.Equal(t, CheckStatusInfo, result.Status)
		require.Equal(t, "給与計算データなし", result.Message)
	})
	t.Run("posted run passes", func(t *testing.T) {
		ledger := &stubLedger{payroll: &PayrollRun{Status: "posted", TotalAmount: decimal.NewFromInt(1800000)}}
		result := runCheckFor(t, ledger, CheckKeyPayrollPosted)
		require.Equal(t, CheckStatusPassed, result.Status)
		require.Contains(t, result.Message, "¥1,800,000")
	})
	t.Run("draft run warns", func(t *testing.T) {
		ledger := &stubLedger{payroll: &PayrollRun{Status: "draft", TotalAmount: decimal.NewFromInt(1800000)}}
		result := runCheckFor(t, ledger, CheckKeyPayrollPosted)
		require.Equal(t, CheckStatusWarning, result.Status)
		require.Contains(t, result.Message, "draft")
	})
}

func TestTrialBalance(t *testing.T) {
	t.Run("no journal data is informational", func(t *testing.T) {
		result := runCheckFor(t, &stubLedger{}, CheckKeyTrialBalance)
		require.Equal(t, CheckStatusInfo, result.Status)
		require.Equal(t, "仕訳データなし", result.Message)
	})
	t.Run("totals reported", func(t *testing.T) {
		ledger := &stubLedger{trialBalance: &TrialBalanceTotals{
			TotalDebit:  decimal.NewFromInt(5000000),
			TotalCredit: decimal.NewFromInt(5000000),
		}}
		result := runCheckFor(t, ledger, CheckKeyTrialBalance)
		require.Equal(t, CheckStatusPassed, result.Status)
	})
}

func TestDebitCreditBalance(t *testing.T) {
	t.Run("no journal data passes", func(t *testing.T) {
		result := runCheckFor(t, &stubLedger{}, CheckKeyBalanceCheck)
		require.Equal(t, CheckStatusPassed, result.Status)
	})
	t.Run("drift within tolerance passes", func(t *testing.T) {
		ledger := &stubLedger{trialBalance: &TrialBalanceTotals{
			TotalDebit:  decimal.RequireFromString("1000.005"),
			TotalCredit: decimal.RequireFromString("1000.00"),
		}}
		result := runCheckFor(t, ledger, CheckKeyBalanceCheck)
		require.Equal(t, CheckStatusPassed, result.Status)
		require.Equal(t, "貸借一致", result.Message)
	})
	t.Run("drift beyond tolerance fails", func(t *testing.T) {
		ledger := &stubLedger{trialBalance: &TrialBalanceTotals{
			TotalDebit:  decimal.RequireFromString("1000.02"),
			TotalCredit: decimal.RequireFromString("1000.00"),
		}}
		result := runCheckFor(t, ledger, CheckKeyBalanceCheck)
		require.Equal(t, CheckStatusFailed, result.Status)
		require.Contains(t, result.Message, "貸借不一致")
	})
}

func TestMonthlyReportAndUnknownKeys(t *testing.T) {
	report := runCheckFor(t, &stubLedger{}, CheckKeyMonthlyReport)
	require.Equal(t, CheckStatusInfo, report.Status)
	require.Equal(t, "報告書生成可能", report.Message)

	unknown := runCheckFor(t, &stubLedger{}, "fiscal_forecast")
	require.Equal(t, CheckStatusSkipped, unknown.Status)
	require.Equal(t, "未実装のチェック項目", unknown.Message)
}

func TestYenFormatting(t *testing.T) {
	require.Equal(t, "¥1,234,567", yen(decimal.NewFromInt(1234567)))
	require.Equal(t, "¥0", yen(decimal.Zero))
	require.Equal(t, "¥-5,000", yen(decimal.NewFromInt(-5000)))
}
