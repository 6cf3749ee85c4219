package policy

import (
	"errors"
	"fmt"

	"github.com/ukydev/fleet-portal/internal/models"
)

// ErrInvalidPolicy is returned when a policy fails validation on save.
var ErrInvalidPolicy = errors.New("invalid policy")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidPolicy, fmt.Sprintf(format, args...))
}

// Validate checks the policy schema invariants. The returned error wraps
// ErrInvalidPolicy and carries the first failing reason.
func Validate(p models.Policy) error {
	if p.Name == "" {
		return invalid("name is required")
	}
	if !models.IsValidScope(p.Scope) {
		return invalid("unknown scope %q", p.Scope)
	}
	if p.DailyLimit < 0 || p.PerTxnLimit < 0 {
		return invalid("limits must be non-negative")
	}
	if p.PerTxnLimit > p.DailyLimit {
		return invalid("per-transaction limit %.2f exceeds daily limit %.2f", p.PerTxnLimit, p.DailyLimit)
	}
	if p.MaxFillsPerDay < 0 {
		return invalid("max fills per day must be non-negative")
	}
	if p.StartHour < 0 || p.StartHour > 24 || p.EndHour < 0 || p.EndHour > 24 {
		return invalid("hours must be within [0,24]")
	}
	if p.StartHour >= p.EndHour {
		return invalid("start hour %d must be before end hour %d", p.StartHour, p.EndHour)
	}
	if g := p.Geofence; g != nil {
		if g.RadiusKm <= 0 {
			return invalid("geofence radius must be positive")
		}
		if g.Center.Lat < -90 || g.Center.Lat > 90 || g.Center.Lon < -180 || g.Center.Lon > 180 {
			return invalid("geofence center out of range")
		}
	}
	for _, code := range p.MCCAllow {
		if code < 0 {
			return invalid("mcc allow entry %d is negative", code)
		}
	}
	for _, code := range p.MCCBlock {
		if code < 0 {
			return invalid("mcc block entry %d is negative", code)
		}
	}
	return nil
}
