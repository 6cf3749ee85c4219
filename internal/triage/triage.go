package triage

import (
	"errors"
	"fmt"

	"github.com/ukydev/fleet-portal/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrInvalidDecision   = errors.New("invalid decision")
	ErrInvalidFilter     = errors.New("invalid status filter")
)

// StatusFilter selects exceptions by review status.
type StatusFilter string

const (
	FilterAll      StatusFilter = "All"
	FilterOpen     StatusFilter = StatusFilter(models.StatusOpen)
	FilterApproved StatusFilter = StatusFilter(models.StatusApproved)
	FilterDenied   StatusFilter = StatusFilter(models.StatusDenied)
)

// ParseStatusFilter converts a query value into a StatusFilter. An empty value means All.
func ParseStatusFilter(s string) (StatusFilter, error) {
	switch StatusFilter(s) {
	case "":
		return FilterAll, nil
	case FilterAll, FilterOpen, FilterApproved, FilterDenied:
		return StatusFilter(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidFilter, s)
	}
}

// Triage resolves an open exception. The returned item carries the new
// status; on error the input is returned unchanged.
func Triage(item models.ExceptionItem, decision models.Status) (models.ExceptionItem, error) {
	if decision != models.StatusApproved && decision != models.StatusDenied {
		return item, fmt.Errorf("%w: %q", ErrInvalidDecision, decision)
	}
	if item.Status != models.StatusOpen {
		return item, fmt.Errorf("%w: exception %s is already %s", ErrInvalidTransition, item.ID, item.Status)
	}
	item.Status = decision
	return item, nil
}

// Filter returns the items matching f in their original order. FilterAll
// returns items unchanged.
func Filter(items []models.ExceptionItem, f StatusFilter) []models.ExceptionItem {
	if f == FilterAll {
		return items
	}
	out := make([]models.ExceptionItem, 0, len(items))
	for _, it := range items {
		if StatusFilter(it.Status) == f {
			out = append(out, it)
		}
	}
	return out
}

// Counts tallies items per status.
type Counts struct {
	Open     int `json:"open"`
	Approved int `json:"approved"`
	Denied   int `json:"denied"`
}

// Count tallies items by status.
func Count(items []models.ExceptionItem) Counts {
	var c Counts
	for _, it := range items {
		switch it.Status {
		case models.StatusOpen:
			c.Open++
		case models.StatusApproved:
			c.Approved++
		case models.StatusDenied:
			c.Denied++
		}
	}
	return c
}
