package feeds

import (
	"context"
	"fmt"

	"github.com/ukydev/fleet-portal/internal/db"
	"github.com/ukydev/fleet-portal/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo reads the three feeds from MongoDB collections. The portal never
// writes back through it.
type Mongo struct {
	Vehicles   db.VehicleCollection
	Policies   db.PolicyCollection
	Exceptions db.ExceptionCollection
}

// FetchVehicles reads all vehicles ordered by plate.
func (m *Mongo) FetchVehicles(ctx context.Context) ([]models.Vehicle, error) {
	cursor, err := m.Vehicles.FindVehicles(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "plate", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer cursor.Close(ctx)
	vehicles := []models.Vehicle{}
	if err := cursor.All(ctx, &vehicles); err != nil {
		return nil, fmt.Errorf("failed to decode vehicles: %w", err)
	}
	return vehicles, nil
}

// FetchPolicies reads all policies ordered by name.
func (m *Mongo) FetchPolicies(ctx context.Context) ([]models.Policy, error) {
	cursor, err := m.Policies.FindPolicies(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer cursor.Close(ctx)
	policies := []models.Policy{}
	if err := cursor.All(ctx, &policies); err != nil {
		return nil, fmt.Errorf("failed to decode policies: %w", err)
	}
	return policies, nil
}

// FetchExceptions reads all exceptions, newest first.
func (m *Mongo) FetchExceptions(ctx context.Context) ([]models.ExceptionItem, error) {
	cursor, err := m.Exceptions.FindExceptions(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query exceptions: %w", err)
	}
	defer cursor.Close(ctx)
	items := []models.ExceptionItem{}
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode exceptions: %w", err)
	}
	return items, nil
}
