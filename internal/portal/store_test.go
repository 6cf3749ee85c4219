package portal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/ukydev/fleet-portal/internal/feeds"
	"github.com/ukydev/fleet-portal/internal/geo"
	"github.com/ukydev/fleet-portal/internal/metrics"
	"github.com/ukydev/fleet-portal/internal/models"
	"github.com/ukydev/fleet-portal/internal/notify"
	"github.com/ukydev/fleet-portal/internal/policy"
	"github.com/ukydev/fleet-portal/internal/triage"
)

// MockPublisher is a mock implementation of notify.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event notify.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() {
	m.Called()
}

func testSeed() feeds.Seed {
	return feeds.Seed{
		Vehicles: []models.Vehicle{
			{ID: "v-1", Plate: "TX-1", Driver: "Ana", CurrentLocation: models.Location{Lat: 30.27, Lon: -97.74},
				Spend: models.Spend{Today: 10, Last7Days: 100, Last30Days: 400}},
			{ID: "v-2", Plate: "TX-2", Driver: "Ben", CurrentLocation: models.Location{Lat: 29.76, Lon: -95.37},
				Spend: models.Spend{Today: 5.5, Last7Days: 50, Last30Days: 150}},
		},
		Policies: []models.Policy{
			{ID: "pol-1", Name: "Standard fuel", Scope: models.ScopeFuelOnly, DailyLimit: 2500, PerTxnLimit: 1500,
				MaxFillsPerDay: 2, StartHour: 6, EndHour: 20, MCCAllow: []int{5541, 5542}},
			{ID: "pol-2", Name: "Long haul", Scope: models.ScopeFuelTollsParking, DailyLimit: 6000, PerTxnLimit: 2500,
				MaxFillsPerDay: 4, StartHour: 0, EndHour: 24},
		},
		Exceptions: []models.ExceptionItem{
			{ID: "ex-3", VehicleID: "v-1", Type: models.ExceptionAfterHours, Status: models.StatusOpen},
			{ID: "ex-2", VehicleID: "v-2", Type: models.ExceptionVelocity, Status: models.StatusApproved},
			{ID: "ex-1", VehicleID: "v-1", Type: models.ExceptionOffRoute, Status: models.StatusOpen},
		},
	}
}

func loadedStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s := NewStore(feeds.NewMockFromSeed(testSeed(), 0), opts...)
	require.NoError(t, s.Load(context.Background()))
	return s
}

func TestStore_Load(t *testing.T) {
	s := loadedStore(t)
	assert.Len(t, s.Vehicles(), 2)
	assert.Len(t, s.Policies(), 2)
	assert.Len(t, s.Exceptions(triage.FilterAll), 3)
}

// failingSource fails whichever feeds are flagged.
type failingSource struct {
	*feeds.Mock
	failExceptions bool
	calls          int
	mu             sync.Mutex
}

func (f *failingSource) FetchExceptions(ctx context.Context) ([]models.ExceptionItem, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.failExceptions {
		return nil, errors.New("feed unavailable")
	}
	return f.Mock.FetchExceptions(ctx)
}

func TestStore_Load_FeedError(t *testing.T) {
	src := &failingSource{Mock: feeds.NewMockFromSeed(testSeed(), 0), failExceptions: true}
	s := NewStore(src)
	err := s.Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exception feed")
}

func TestStore_SavePolicy_New(t *testing.T) {
	s := loadedStore(t, WithIDGenerator(func() string { return "pol-minted" }))

	draft := policy.NewDraft()
	require.NoError(t, draft.SetName("Night shift"))
	require.NoError(t, draft.SetHourWindow(0, 8))

	saved, err := s.SavePolicy(context.Background(), draft.Policy())
	require.NoError(t, err)
	assert.Equal(t, "pol-minted", saved.ID)

	policies := s.Policies()
	require.Len(t, policies, 3)
	assert.Equal(t, "pol-minted", policies[2].ID)
	assert.Equal(t, "Night shift", policies[2].Name)
}

func TestStore_SavePolicy_MintsUniqueIDs(t *testing.T) {
	s := loadedStore(t)

	first, err := s.SavePolicy(context.Background(), policy.NewDraft().Policy())
	require.NoError(t, err)
	second, err := s.SavePolicy(context.Background(), policy.NewDraft().Policy())
	require.NoError(t, err)

	assert.NotEqual(t, policy.NewPolicyID, first.ID)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestStore_SavePolicy_ReplacesInPlace(t *testing.T) {
	s := loadedStore(t)

	p, err := s.Policy("pol-1")
	require.NoError(t, err)
	d := policy.EditDraft(p)
	require.NoError(t, d.SetLimits(3000, 1000))

	_, err = s.SavePolicy(context.Background(), d.Policy())
	require.NoError(t, err)

	policies := s.Policies()
	require.Len(t, policies, 2)
	assert.Equal(t, "pol-1", policies[0].ID)
	assert.Equal(t, 3000.0, policies[0].DailyLimit)
	assert.Equal(t, 1000.0, policies[0].PerTxnLimit)
}

func TestStore_SavePolicy_Invalid(t *testing.T) {
	reg := metrics.New()
	s := loadedStore(t, WithMetrics(reg))
	before := s.Policies()

	tests := []struct {
		name   string
		mutate func(p *models.Policy)
	}{
		{"per-txn above daily", func(p *models.Policy) { p.PerTxnLimit = p.DailyLimit + 1 }},
		{"overnight window", func(p *models.Policy) { p.StartHour, p.EndHour = 22, 6 }},
		{"geofence without radius", func(p *models.Policy) {
			p.Geofence = &models.Geofence{Center: models.Location{Lat: 30, Lon: -97}}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := s.Policy("pol-1")
			require.NoError(t, err)
			tt.mutate(&p)
			_, err = s.SavePolicy(context.Background(), p)
			assert.ErrorIs(t, err, policy.ErrInvalidPolicy)
		})
	}

	assert.Equal(t, before, s.Policies())
	for _, p := range s.Policies() {
		assert.LessOrEqual(t, p.PerTxnLimit, p.DailyLimit)
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(reg.PolicySaves.WithLabelValues("invalid")))
}

func TestStore_Policy_ReturnsCopy(t *testing.T) {
	s := loadedStore(t)
	p, err := s.Policy("pol-1")
	require.NoError(t, err)
	p.MCCAllow[0] = 1

	again, err := s.Policy("pol-1")
	require.NoError(t, err)
	assert.Equal(t, []int{5541, 5542}, again.MCCAllow)

	_, err = s.Policy("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Evaluate(t *testing.T) {
	reg := metrics.New()
	s := loadedStore(t, WithMetrics(reg))

	result, err := s.Evaluate("pol-1", models.Transaction{
		Amount:    400,
		Timestamp: time.Date(2024, 5, 14, 23, 0, 0, 0, time.UTC),
		MCC:       5812,
	})
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, []policy.Violation{policy.OutsideHourWindow, policy.MccNotAllowed}, result.Violations)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Evaluations.WithLabelValues("denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Violations.WithLabelValues("MccNotAllowed")))

	_, err = s.Evaluate("missing", models.Transaction{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Triage(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e notify.Event) bool {
		return e.Kind == notify.KindExceptionTriaged && e.ID == "ex-3" && e.Status == "Denied"
	})).Return(nil).Once()

	reg := metrics.New()
	s := loadedStore(t, WithPublisher(pub), WithMetrics(reg))

	item, err := s.Triage(context.Background(), "ex-3", models.StatusDenied)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDenied, item.Status)

	// terminal: a second decision is rejected and nothing changes
	item, err = s.Triage(context.Background(), "ex-3", models.StatusApproved)
	assert.ErrorIs(t, err, triage.ErrInvalidTransition)
	assert.Equal(t, models.StatusDenied, item.Status)

	open := s.Exceptions(triage.FilterOpen)
	require.Len(t, open, 1)
	assert.Equal(t, "ex-1", open[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.OpenItems))

	_, err = s.Triage(context.Background(), "ex-404", models.StatusApproved)
	assert.ErrorIs(t, err, ErrNotFound)

	pub.AssertExpectations(t)
}

func TestStore_Triage_MetricLabelsAreBounded(t *testing.T) {
	reg := metrics.New()
	s := loadedStore(t, WithMetrics(reg))

	for i := 0; i < 50; i++ {
		decision := models.Status(fmt.Sprintf("junk-%d", i))
		_, err := s.Triage(context.Background(), "ex-1", decision)
		assert.ErrorIs(t, err, triage.ErrInvalidDecision)
		_, err = s.Triage(context.Background(), fmt.Sprintf("ex-missing-%d", i), decision)
		assert.ErrorIs(t, err, ErrNotFound)
	}
	_, err := s.Triage(context.Background(), "ex-1", models.StatusApproved)
	require.NoError(t, err)

	assert.Equal(t, 3, testutil.CollectAndCount(reg.Triage))
	assert.Equal(t, 50.0, testutil.ToFloat64(reg.Triage.WithLabelValues("invalid", "rejected")))
	assert.Equal(t, 50.0, testutil.ToFloat64(reg.Triage.WithLabelValues("invalid", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.Triage.WithLabelValues("Approved", "ok")))
}

func TestStore_Triage_PublishFailureDoesNotFail(t *testing.T) {
	pub := new(MockPublisher)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	s := loadedStore(t, WithPublisher(pub))
	item, err := s.Triage(context.Background(), "ex-1", models.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, item.Status)
}

// sequenceSource serves a new batch of exceptions on every fetch.
type sequenceSource struct {
	*feeds.Mock
	mu      sync.Mutex
	fetches int
	delay   time.Duration
}

func (s *sequenceSource) FetchExceptions(ctx context.Context) ([]models.ExceptionItem, error) {
	s.mu.Lock()
	s.fetches++
	n := s.fetches
	s.mu.Unlock()
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return []models.ExceptionItem{
		{ID: fmt.Sprintf("batch-%d", n), Status: models.StatusOpen},
	}, nil
}

func TestStore_RefreshExceptions(t *testing.T) {
	src := &sequenceSource{Mock: feeds.NewMockFromSeed(testSeed(), 0)}
	s := NewStore(src)
	require.NoError(t, s.Load(context.Background()))

	_, err := s.Triage(context.Background(), "batch-1", models.StatusApproved)
	require.NoError(t, err)

	items, err := s.RefreshExceptions(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "batch-2", items[0].ID)

	all := s.Exceptions(triage.FilterAll)
	require.Len(t, all, 1)
	assert.Equal(t, "batch-2", all[0].ID)
	assert.Equal(t, models.StatusOpen, all[0].Status)
}

func TestStore_RefreshExceptions_CompletesAfterCallerGivesUp(t *testing.T) {
	src := &sequenceSource{Mock: feeds.NewMockFromSeed(testSeed(), 0)}
	s := NewStore(src)
	require.NoError(t, s.Load(context.Background()))
	src.delay = 30 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, err := s.RefreshExceptions(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	assert.Eventually(t, func() bool {
		all := s.Exceptions(triage.FilterAll)
		return len(all) == 1 && all[0].ID == "batch-2"
	}, time.Second, 5*time.Millisecond)
}

func TestStore_RefreshExceptions_FeedError(t *testing.T) {
	src := &failingSource{Mock: feeds.NewMockFromSeed(testSeed(), 0)}
	s := NewStore(src)
	require.NoError(t, s.Load(context.Background()))

	src.failExceptions = true
	_, err := s.RefreshExceptions(context.Background())
	assert.Error(t, err)
	assert.Len(t, s.Exceptions(triage.FilterAll), 3)
}

func TestStore_ProjectAndSnapshot(t *testing.T) {
	s := loadedStore(t)
	s.now = func() time.Time { return time.Date(2024, 5, 14, 12, 0, 0, 0, time.UTC) }

	fc := s.Project(geo.Window7d)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, 100.0, fc.Features[0].Properties[geo.WeightProperty])

	snap := s.Snapshot()
	assert.Equal(t, 2, snap.Vehicles)
	assert.Equal(t, 2, snap.Policies)
	assert.Equal(t, 15.5, snap.Spend.Today)
	assert.Equal(t, 150.0, snap.Spend.Last7Days)
	assert.Equal(t, 550.0, snap.Spend.Last30Days)
	assert.Equal(t, triage.Counts{Open: 2, Approved: 1}, snap.Exceptions)
}

func TestStore_ConcurrentTriageIsSerialized(t *testing.T) {
	s := loadedStore(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision := models.StatusApproved
			if i%2 == 0 {
				decision = models.StatusDenied
			}
			if _, err := s.Triage(context.Background(), "ex-1", decision); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}
