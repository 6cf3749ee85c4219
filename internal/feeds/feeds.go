package feeds

import (
	"context"

	"github.com/ukydev/fleet-portal/internal/models"
)

// VehicleFeed returns the current ordered vehicle records.
type VehicleFeed interface {
	FetchVehicles(ctx context.Context) ([]models.Vehicle, error)
}

// PolicyFeed returns the policy records available at load time.
type PolicyFeed interface {
	FetchPolicies(ctx context.Context) ([]models.Policy, error)
}

// ExceptionFeed returns the current exceptions, newest first. It may be
// called repeatedly to refresh.
type ExceptionFeed interface {
	FetchExceptions(ctx context.Context) ([]models.ExceptionItem, error)
}

// Source bundles the three feeds the portal loads from.
type Source interface {
	VehicleFeed
	PolicyFeed
	ExceptionFeed
}
