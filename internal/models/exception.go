package models

import "time"

// ExceptionType classifies why a transaction was flagged.
type ExceptionType string

const (
	ExceptionOffRoute       ExceptionType = "Off-Route"
	ExceptionTankOverfill   ExceptionType = "Tank-Overfill"
	ExceptionAfterHours     ExceptionType = "After-Hours"
	ExceptionCardNotPresent ExceptionType = "Card-Not-Present"
	ExceptionVelocity       ExceptionType = "Velocity"
	ExceptionMCCBlocked     ExceptionType = "MCC-Blocked"
)

// IsValidExceptionType checks if an exception type is known
func IsValidExceptionType(t ExceptionType) bool {
	switch t {
	case ExceptionOffRoute, ExceptionTankOverfill, ExceptionAfterHours,
		ExceptionCardNotPresent, ExceptionVelocity, ExceptionMCCBlocked:
		return true
	default:
		return false
	}
}

// Status is the review state of a flagged transaction.
type Status string

const (
	StatusOpen     Status = "Open"
	StatusApproved Status = "Approved"
	StatusDenied   Status = "Denied"
)

// ExceptionItem represents a flagged card transaction awaiting or past review.
type ExceptionItem struct {
	ID        string        `bson:"_id" json:"id" yaml:"id"`
	Timestamp time.Time     `bson:"timestamp" json:"timestamp" yaml:"timestamp"`
	VehicleID string        `bson:"vehicle_id" json:"vehicle_id" yaml:"vehicle_id"`
	Plate     string        `bson:"plate" json:"plate" yaml:"plate"`
	Driver    string        `bson:"driver" json:"driver" yaml:"driver"`
	Type      ExceptionType `bson:"type" json:"type" yaml:"type"`
	Amount    float64       `bson:"amount" json:"amount" yaml:"amount"`
	Location  string        `bson:"location" json:"location" yaml:"location"` // free text, e.g. "Shell, I-35 exit 12"
	Reason    string        `bson:"reason" json:"reason" yaml:"reason"`
	Status    Status        `bson:"status" json:"status" yaml:"status"`
}
