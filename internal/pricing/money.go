package pricing

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// applyFraction returns amount × fraction rounded to a whole currency unit.
func applyFraction(amount int64, fraction float64) int64 {
	if amount == 0 || fraction == 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(fraction)).Round(0).IntPart()
}

// applyPercent returns amount × percent / 100 rounded to a whole currency unit.
func applyPercent(amount int64, percent float64) int64 {
	if amount == 0 || percent == 0 {
		return 0
	}
	return decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(percent)).Div(hundred).Round(0).IntPart()
}

// divide returns numerator × factor / denominator rounded to a whole unit.
func divide(numerator int64, factor int, denominator int) int64 {
	if denominator <= 0 || numerator == 0 || factor == 0 {
		return 0
	}
	return decimal.NewFromInt(numerator).
		Mul(decimal.NewFromInt(int64(factor))).
		Div(decimal.NewFromInt(int64(denominator))).
		Round(0).
		IntPart()
}

// FormatRub renders an amount with space-separated thousands, e.g. "25 000 ₽".
func FormatRub(amount int64) string {
	return formatGrouped(amount) + " ₽"
}

func formatGrouped(amount int64) string {
	neg := amount < 0
	if neg {
		amount = -amount
	}
	digits := strconv.FormatInt(amount, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
