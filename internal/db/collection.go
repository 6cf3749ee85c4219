package db

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo/options"
)

// Cursor defines the interface for cursor operations.
type Cursor interface {
	All(ctx context.Context, out interface{}) error
	Close(ctx context.Context) error
}

// VehicleCollection defines the interface for vehicle feed reads.
type VehicleCollection interface {
	FindVehicles(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (Cursor, error)
}

// PolicyCollection defines the interface for policy feed reads.
type PolicyCollection interface {
	FindPolicies(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (Cursor, error)
}

// ExceptionCollection defines the interface for exception feed reads.
type ExceptionCollection interface {
	FindExceptions(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (Cursor, error)
}
