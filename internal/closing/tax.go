package closing

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tax line directions as recorded on voucher lines: debit-side tax is
// input (仮払), credit-side tax is output (仮受).
const (
	TaxDirectionInput  = "input"
	TaxDirectionOutput = "output"
)

var (
	taxRate8  = decimal.NewFromInt(8)
	taxRate10 = decimal.NewFromInt(10)
)

// BuildTaxSummary folds per-(direction, rate) tax line sums into the
// consumption tax summary for one month. Only the 8% and 10% buckets are
// reportable; sums at other rates are ignored.
func BuildTaxSummary(yearMonth string, sums []TaxLineSum, calculatedAt time.Time) TaxSummary {
	var output10, output8, input10, input8 decimal.Decimal
	for _, s := range sums {
		switch {
		case s.Direction == TaxDirectionOutput && s.Rate.Equal(taxRate10):
			output10 = output10.Add(s.Amount)
		case s.Direction == TaxDirectionOutput && s.Rate.Equal(taxRate8):
			output8 = output8.Add(s.Amount)
		case s.Direction == TaxDirectionInput && s.Rate.Equal(taxRate10):
			input10 = input10.Add(s.Amount)
		case s.Direction == TaxDirectionInput && s.Rate.Equal(taxRate8):
			input8 = input8.Add(s.Amount)
		}
	}

	totalOutput := output10.Add(output8)
	totalInput := input10.Add(input8)
	net := totalOutput.Sub(totalInput)
	direction := TaxDirectionPayment
	if net.IsNegative() {
		direction = TaxDirectionRefund
	}
	return TaxSummary{
		YearMonth:      yearMonth,
		OutputTax10:    output10,
		OutputTax8:     output8,
		InputTax10:     input10,
		InputTax8:      input8,
		TotalOutputTax: totalOutput,
		TotalInputTax:  totalInput,
		NetTax:         net,
		Direction:      direction,
		CalculatedAt:   calculatedAt,
	}
}
