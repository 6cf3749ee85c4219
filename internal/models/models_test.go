package models

import "testing"

func TestIsValidScope(t *testing.T) {
	tests := []struct {
		name     string
		scope    Scope
		expected bool
	}{
		{"fuel only", ScopeFuelOnly, true},
		{"fuel and maintenance", ScopeFuelMaintenance, true},
		{"fuel tolls parking", ScopeFuelTollsParking, true},
		{"lowercase", "fuel-only", false},
		{"empty scope", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidScope(tt.scope)
			if result != tt.expected {
				t.Errorf("IsValidScope(%s) = %v, want %v", tt.scope, result, tt.expected)
			}
		})
	}
}

func TestIsValidExceptionType(t *testing.T) {
	tests := []struct {
		name     string
		typ      ExceptionType
		expected bool
	}{
		{"off route", ExceptionOffRoute, true},
		{"tank overfill", ExceptionTankOverfill, true},
		{"after hours", ExceptionAfterHours, true},
		{"card not present", ExceptionCardNotPresent, true},
		{"velocity", ExceptionVelocity, true},
		{"mcc blocked", ExceptionMCCBlocked, true},
		{"unknown", "Fraud", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidExceptionType(tt.typ)
			if result != tt.expected {
				t.Errorf("IsValidExceptionType(%s) = %v, want %v", tt.typ, result, tt.expected)
			}
		})
	}
}
