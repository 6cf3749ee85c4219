package feeds

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-portal/internal/db"
	"github.com/ukydev/fleet-portal/internal/models"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MockCollection is a mock implementation of the feed collections
type MockCollection struct {
	mock.Mock
}

func (m *MockCollection) find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (db.Cursor, error) {
	args := m.Called(ctx, filter, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(db.Cursor), args.Error(1)
}

func (m *MockCollection) FindVehicles(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (db.Cursor, error) {
	return m.find(ctx, filter, opts...)
}

func (m *MockCollection) FindPolicies(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (db.Cursor, error) {
	return m.find(ctx, filter, opts...)
}

func (m *MockCollection) FindExceptions(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (db.Cursor, error) {
	return m.find(ctx, filter, opts...)
}

// MockCursor is a mock implementation of db.Cursor
type MockCursor struct {
	mock.Mock
}

func (m *MockCursor) All(ctx context.Context, out interface{}) error {
	args := m.Called(ctx, out)
	return args.Error(0)
}

func (m *MockCursor) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestMongo_FetchVehicles(t *testing.T) {
	coll := new(MockCollection)
	cursor := new(MockCursor)
	want := []models.Vehicle{{ID: "v-1", Plate: "AB-1"}, {ID: "v-2", Plate: "AB-2"}}

	coll.On("find", mock.Anything, mock.Anything, mock.Anything).Return(cursor, nil)
	cursor.On("All", mock.Anything, mock.AnythingOfType("*[]models.Vehicle")).
		Run(func(args mock.Arguments) {
			*args.Get(1).(*[]models.Vehicle) = want
		}).Return(nil)
	cursor.On("Close", mock.Anything).Return(nil)

	feed := &Mongo{Vehicles: coll}
	got, err := feed.FetchVehicles(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want, got)
	coll.AssertExpectations(t)
	cursor.AssertExpectations(t)
}

func TestMongo_FetchPolicies_QueryError(t *testing.T) {
	coll := new(MockCollection)
	coll.On("find", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db error"))

	feed := &Mongo{Policies: coll}
	_, err := feed.FetchPolicies(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to query policies")
}

func TestMongo_FetchExceptions_DecodeError(t *testing.T) {
	coll := new(MockCollection)
	cursor := new(MockCursor)
	coll.On("find", mock.Anything, mock.Anything, mock.Anything).Return(cursor, nil)
	cursor.On("All", mock.Anything, mock.Anything).Return(errors.New("decode error"))
	cursor.On("Close", mock.Anything).Return(nil)

	feed := &Mongo{Exceptions: coll}
	_, err := feed.FetchExceptions(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode exceptions")
	cursor.AssertCalled(t, "Close", mock.Anything)
}
