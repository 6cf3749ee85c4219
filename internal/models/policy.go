package models

import "time"

// Scope is the spend category a fuel-card policy covers.
type Scope string

const (
	ScopeFuelOnly         Scope = "Fuel-Only"
	ScopeFuelMaintenance  Scope = "Fuel+Maintenance"
	ScopeFuelTollsParking Scope = "Fuel+Tolls+Parking"
)

// IsValidScope checks if a scope is one of the supported card scopes
func IsValidScope(scope Scope) bool {
	switch scope {
	case ScopeFuelOnly, ScopeFuelMaintenance, ScopeFuelTollsParking:
		return true
	default:
		return false
	}
}

// Geofence is a circular allowed area.
type Geofence struct {
	Center   Location `bson:"center" json:"center" yaml:"center"`
	RadiusKm float64  `bson:"radius_km" json:"radius_km" yaml:"radius_km"`
}

// Policy represents a fuel-card spending policy.
type Policy struct {
	ID             string    `bson:"_id" json:"id" yaml:"id"`
	Name           string    `bson:"name" json:"name" yaml:"name"`
	Scope          Scope     `bson:"scope" json:"scope" yaml:"scope"`
	DailyLimit     float64   `bson:"daily_limit" json:"daily_limit" yaml:"daily_limit"`
	PerTxnLimit    float64   `bson:"per_txn_limit" json:"per_txn_limit" yaml:"per_txn_limit"`
	MaxFillsPerDay int       `bson:"max_fills_per_day" json:"max_fills_per_day" yaml:"max_fills_per_day"`
	StartHour      int       `bson:"start_hour" json:"start_hour" yaml:"start_hour"` // inclusive, 0-23
	EndHour        int       `bson:"end_hour" json:"end_hour" yaml:"end_hour"`       // exclusive, 1-24
	RequireUnlock  bool      `bson:"require_unlock" json:"require_unlock" yaml:"require_unlock"`
	Geofence       *Geofence `bson:"geofence,omitempty" json:"geofence,omitempty" yaml:"geofence,omitempty"`
	MCCAllow       []int     `bson:"mcc_allow,omitempty" json:"mcc_allow,omitempty" yaml:"mcc_allow,omitempty"`
	MCCBlock       []int     `bson:"mcc_block,omitempty" json:"mcc_block,omitempty" yaml:"mcc_block,omitempty"`
}

// Transaction is a card transaction presented for policy evaluation.
// The prior counters describe the vehicle's same-day activity before this transaction.
type Transaction struct {
	VehicleID           string    `json:"vehicle_id,omitempty"`
	Amount              float64   `json:"amount"`
	Timestamp           time.Time `json:"timestamp"`
	Location            Location  `json:"location"`
	MCC                 int       `json:"mcc"`
	PriorDailyFillCount int       `json:"prior_daily_fill_count"`
	PriorDailySpend     float64   `json:"prior_daily_spend"`
}

// Clone returns a copy of p that shares no slices or pointers with it.
func (p Policy) Clone() Policy {
	if p.MCCAllow != nil {
		p.MCCAllow = append([]int(nil), p.MCCAllow...)
	}
	if p.MCCBlock != nil {
		p.MCCBlock = append([]int(nil), p.MCCBlock...)
	}
	if p.Geofence != nil {
		g := *p.Geofence
		p.Geofence = &g
	}
	return p
}
