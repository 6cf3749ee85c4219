package policy

import (
	"github.com/ukydev/fleet-portal/internal/geo"
	"github.com/ukydev/fleet-portal/internal/models"
)

// Violation names a single failed compliance check.
type Violation string

// Violations are reported in this order.
const (
	AmountExceedsPerTxnLimit Violation = "AmountExceedsPerTxnLimit"
	AmountExceedsDailyLimit  Violation = "AmountExceedsDailyLimit"
	FillCountExceeded        Violation = "FillCountExceeded"
	OutsideHourWindow        Violation = "OutsideHourWindow"
	OutsideGeofence          Violation = "OutsideGeofence"
	MccBlocked               Violation = "MccBlocked"
	MccNotAllowed            Violation = "MccNotAllowed"
)

// Result is the outcome of checking one transaction against one policy.
type Result struct {
	PolicyID   string      `json:"policy_id"`
	Allowed    bool        `json:"allowed"`
	Violations []Violation `json:"violations"`
}

// Evaluate runs every compliance check against txn. Checks are independent
// and never short-circuit. Amounts are compared as exact decimals. The hour
// of day is taken from the transaction timestamp in its own location.
func Evaluate(p models.Policy, txn models.Transaction) Result {
	violations := []Violation{}

	if models.Money(txn.Amount).GreaterThan(models.Money(p.PerTxnLimit)) {
		violations = append(violations, AmountExceedsPerTxnLimit)
	}
	if models.SumMoney(txn.PriorDailySpend, txn.Amount).GreaterThan(models.Money(p.DailyLimit)) {
		violations = append(violations, AmountExceedsDailyLimit)
	}
	if txn.PriorDailyFillCount+1 > p.MaxFillsPerDay {
		violations = append(violations, FillCountExceeded)
	}
	if hour := txn.Timestamp.Hour(); hour < p.StartHour || hour >= p.EndHour {
		violations = append(violations, OutsideHourWindow)
	}
	if p.Geofence != nil && geo.HaversineKm(txn.Location, p.Geofence.Center) > p.Geofence.RadiusKm {
		violations = append(violations, OutsideGeofence)
	}
	blocked := containsCode(p.MCCBlock, txn.MCC)
	if blocked {
		violations = append(violations, MccBlocked)
	}
	if len(p.MCCAllow) > 0 && !blocked && !containsCode(p.MCCAllow, txn.MCC) {
		violations = append(violations, MccNotAllowed)
	}

	return Result{
		PolicyID:   p.ID,
		Allowed:    len(violations) == 0,
		Violations: violations,
	}
}

func containsCode(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
