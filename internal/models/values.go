package models

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the persisted and displayed calendar-date format
const DateLayout = "2006-01-02"

// MinorUnitExponent is the number of decimal places in one currency unit
const MinorUnitExponent = 2

// AbsAmount returns |amount| for a minor-unit amount
func AbsAmount(amount int64) int64 {
	if amount < 0 {
		return -amount
	}
	return amount
}

// TruncateDate returns UTC midnight of t's calendar date as seen in t's location
func TruncateDate(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the absolute number of calendar days between a and b
func DaysBetween(a, b time.Time) int {
	diff := TruncateDate(a).Sub(TruncateDate(b))
	days := int(math.Round(diff.Hours() / 24))
	if days < 0 {
		return -days
	}
	return days
}

// PeriodOf returns the YYYY-MM accounting period a date falls in
func PeriodOf(t time.Time) string {
	return t.Format("2006-01")
}

// FormatDate renders a calendar date, or "" for the zero time
func FormatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(DateLayout)
}

// ParseDate parses a calendar date from the common formats found in exports
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		DateLayout,
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"02/01/2006",
		"02-01-2006",
		"2006/01/02",
		"20060102",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, s)
		if err == nil {
			return TruncateDate(t), nil
		}
		lastErr = err
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// MustDate parses a YYYY-MM-DD literal and panics on failure
func MustDate(s string) time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

// ParseAmount parses a decimal currency amount into minor units, rounding half away from zero
func ParseAmount(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return AmountFromDecimal(d), nil
}

// AmountFromDecimal converts a unit amount to minor units
func AmountFromDecimal(d decimal.Decimal) int64 {
	return d.Shift(MinorUnitExponent).Round(0).IntPart()
}

// AmountToDecimal converts minor units to a unit amount
func AmountToDecimal(amount int64) decimal.Decimal {
	return decimal.New(amount, -MinorUnitExponent)
}

// FormatAmount renders minor units as a fixed-point decimal string
func FormatAmount(amount int64) string {
	return AmountToDecimal(amount).StringFixed(MinorUnitExponent)
}

// NormalizeDescription upper-cases a description and collapses its whitespace
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}
