package shared

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidYearMonth indicates a year-month outside the accepted format or range.
var ErrInvalidYearMonth = errors.New("invalid year-month")

var yearMonthPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// YearMonth identifies one accounting period, e.g. "2024-06".
// Accepted years run 2000 through 2100; months 1 through 12.
type YearMonth struct {
	Year  int
	Month time.Month
}

// ParseYearMonth validates and parses a YYYY-MM string.
func ParseYearMonth(s string) (YearMonth, error) {
	if !yearMonthPattern.MatchString(s) {
		return YearMonth{}, fmt.Errorf("%w: %q", ErrInvalidYearMonth, s)
	}
	year, _ := strconv.Atoi(s[:4])
	month, _ := strconv.Atoi(s[5:])
	if year < 2000 || year > 2100 {
		return YearMonth{}, fmt.Errorf("%w: year %d out of range", ErrInvalidYearMonth, year)
	}
	if month < 1 || month > 12 {
		return YearMonth{}, fmt.Errorf("%w: month %d out of range", ErrInvalidYearMonth, month)
	}
	return YearMonth{Year: year, Month: time.Month(month)}, nil
}

// MustYearMonth parses s or panics. Test helper.
func MustYearMonth(s string) YearMonth {
	ym, err := ParseYearMonth(s)
	if err != nil {
		panic(err)
	}
	return ym
}

// String renders the canonical YYYY-MM form.
func (ym YearMonth) String() string {
	return fmt.Sprintf("%04d-%02d", ym.Year, int(ym.Month))
}

// PeriodStart returns midnight UTC on the first day of the month.
func (ym YearMonth) PeriodStart() time.Time {
	return time.Date(ym.Year, ym.Month, 1, 0, 0, 0, 0, time.UTC)
}

// PeriodEnd returns midnight UTC on the last day of the month.
func (ym YearMonth) PeriodEnd() time.Time {
	return ym.PeriodStart().AddDate(0, 1, -1)
}

// Prev returns the preceding month.
func (ym YearMonth) Prev() YearMonth {
	t := ym.PeriodStart().AddDate(0, -1, 0)
	return YearMonth{Year: t.Year(), Month: t.Month()}
}
