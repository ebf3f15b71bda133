package closing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestBuildTaxSummaryBuckets(t *testing.T) {
	calculatedAt := time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC)
	sums := []TaxLineSum{
		{Direction: TaxDirectionOutput, Rate: decimal.NewFromInt(10), Amount: decimal.NewFromInt(100000)},
		{Direction: TaxDirectionOutput, Rate: decimal.NewFromInt(8), Amount: decimal.NewFromInt(8000)},
		{Direction: TaxDirectionInput, Rate: decimal.NewFromInt(10), Amount: decimal.NewFromInt(40000)},
		{Direction: TaxDirectionInput, Rate: decimal.NewFromInt(8), Amount: decimal.NewFromInt(2000)},
	}

	summary := BuildTaxSummary("2025-07", sums, calculatedAt)
	require.Equal(t, "2025-07", summary.YearMonth)
	require.True(t, summary.OutputTax10.Equal(decimal.NewFromInt(100000)))
	require.True(t, summary.OutputTax8.Equal(decimal.NewFromInt(8000)))
	require.True(t, summary.InputTax10.Equal(decimal.NewFromInt(40000)))
	require.True(t, summary.InputTax8.Equal(decimal.NewFromInt(2000)))
	require.True(t, summary.TotalOutputTax.Equal(decimal.NewFromInt(108000)))
	require.True(t, summary.TotalInputTax.Equal(decimal.NewFromInt(42000)))
	require.True(t, summary.NetTax.Equal(decimal.NewFromInt(66000)))
	require.Equal(t, TaxDirectionPayment, summary.Direction)
	require.Equal(t, calculatedAt, summary.CalculatedAt)
}

func TestBuildTaxSummaryRefund(t *testing.T) {
	sums := []TaxLineSum{
		{Direction: TaxDirectionOutput, Rate: decimal.NewFromInt(10), Amount: decimal.NewFromInt(10000)},
		{Direction: TaxDirectionInput, Rate: decimal.NewFromInt(10), Amount: decimal.NewFromInt(70000)},
	}
	summary := BuildTaxSummary("2025-07", sums, time.Now())
	require.True(t, summary.NetTax.Equal(decimal.NewFromInt(-60000)))
	require.Equal(t, TaxDirectionRefund, summary.Direction)
}

func TestBuildTaxSummaryIgnoresOtherRates(t *testing.T) {
	sums := []TaxLineSum{
		{Direction: TaxDirectionOutput, Rate: decimal.NewFromInt(5), Amount: decimal.NewFromInt(9999)},
		{Direction: TaxDirectionOutput, Rate: decimal.Zero, Amount: decimal.NewFromInt(1234)},
	}
	summary := BuildTaxSummary("2025-07", sums, time.Now())
	require.True(t, summary.TotalOutputTax.IsZero())
	require.True(t, summary.NetTax.IsZero())
	// A zero net is still a payment, never a refund.
	require.Equal(t, TaxDirectionPayment, summary.Direction)
}

func TestBuildTaxSummaryEmpty(t *testing.T) {
	summary := BuildTaxSummary("2025-07", nil, time.Now())
	require.True(t, summary.NetTax.IsZero())
	require.Equal(t, TaxDirectionPayment, summary.Direction)
}
