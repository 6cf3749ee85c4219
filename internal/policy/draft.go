package policy

import "github.com/ukydev/fleet-portal/internal/models"

// NewPolicyID is the placeholder id carried by a policy that has never been saved.
const NewPolicyID = "new"

// Draft is a policy being edited. Each setter guards the invariants of the
// fields it touches; Validate still runs on save.
type Draft struct {
	p models.Policy
}

// NewDraft returns a draft prefilled with the editor defaults.
func NewDraft() *Draft {
	return &Draft{p: models.Policy{
		ID:             NewPolicyID,
		Name:           "New policy",
		Scope:          models.ScopeFuelOnly,
		DailyLimit:     2500,
		PerTxnLimit:    1500,
		MaxFillsPerDay: 2,
		StartHour:      6,
		EndHour:        20,
		RequireUnlock:  true,
	}}
}

// EditDraft starts a draft from an existing policy.
func EditDraft(p models.Policy) *Draft {
	return &Draft{p: p.Clone()}
}

// Policy returns a copy of the candidate policy.
func (d *Draft) Policy() models.Policy {
	return d.p.Clone()
}

// SetName sets a non-empty display name.
func (d *Draft) SetName(name string) error {
	if name == "" {
		return invalid("name is required")
	}
	d.p.Name = name
	return nil
}

// SetScope sets one of the supported card scopes.
func (d *Draft) SetScope(scope models.Scope) error {
	if !models.IsValidScope(scope) {
		return invalid("unknown scope %q", scope)
	}
	d.p.Scope = scope
	return nil
}

// SetLimits sets both spend limits together so the per-transaction limit
// can never exceed the daily limit on the draft.
func (d *Draft) SetLimits(daily, perTxn float64) error {
	if daily < 0 || perTxn < 0 {
		return invalid("limits must be non-negative")
	}
	if perTxn > daily {
		return invalid("per-transaction limit %.2f exceeds daily limit %.2f", perTxn, daily)
	}
	d.p.DailyLimit = daily
	d.p.PerTxnLimit = perTxn
	return nil
}

// SetMaxFillsPerDay sets the daily fill cap.
func (d *Draft) SetMaxFillsPerDay(n int) error {
	if n < 0 {
		return invalid("max fills per day must be non-negative")
	}
	d.p.MaxFillsPerDay = n
	return nil
}

// SetHourWindow sets the allowed [start, end) hours.
func (d *Draft) SetHourWindow(start, end int) error {
	if start < 0 || start > 24 || end < 0 || end > 24 {
		return invalid("hours must be within [0,24]")
	}
	if start >= end {
		return invalid("start hour %d must be before end hour %d", start, end)
	}
	d.p.StartHour = start
	d.p.EndHour = end
	return nil
}

// SetRequireUnlock toggles mobile unlock confirmation.
func (d *Draft) SetRequireUnlock(required bool) {
	d.p.RequireUnlock = required
}

// SetGeofence restricts purchases to radiusKm around center.
func (d *Draft) SetGeofence(center models.Location, radiusKm float64) error {
	if radiusKm <= 0 {
		return invalid("geofence radius must be positive")
	}
	if center.Lat < -90 || center.Lat > 90 || center.Lon < -180 || center.Lon > 180 {
		return invalid("geofence center out of range")
	}
	d.p.Geofence = &models.Geofence{Center: center, RadiusKm: radiusKm}
	return nil
}

// ClearGeofence removes the geofence.
func (d *Draft) ClearGeofence() {
	d.p.Geofence = nil
}

// SetMCCAllowText replaces the allow-list from free text and returns the
// tokens that were dropped.
func (d *Draft) SetMCCAllowText(text string) []string {
	codes, dropped := ParseMCCList(text)
	d.p.MCCAllow = codes
	return dropped
}

// SetMCCBlockText replaces the block-list from free text and returns the
// tokens that were dropped.
func (d *Draft) SetMCCBlockText(text string) []string {
	codes, dropped := ParseMCCList(text)
	d.p.MCCBlock = codes
	return dropped
}
