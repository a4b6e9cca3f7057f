package services

import "github.com/shopspring/decimal"

// lineTotal is price × quantity in exact decimal arithmetic.
func lineTotal(price float64, quantity int) decimal.Decimal {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity)))
}

// roundMoney rounds to cents and converts back for JSON responses.
func roundMoney(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}

// MinorUnits converts a major-unit price to the processor's integer minor
// units, rounding half away from zero.
func MinorUnits(price float64) int64 {
	return decimal.NewFromFloat(price).Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}
