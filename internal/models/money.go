package models

import "github.com/shopspring/decimal"

// Money converts an amount in the fleet currency to an exact decimal, using
// the shortest representation of v so 0.1 stays 0.1.
func Money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// SumMoney adds amounts exactly.
func SumMoney(values ...float64) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(Money(v))
	}
	return total
}
