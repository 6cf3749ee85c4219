package portal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-portal/internal/feeds"
	"github.com/ukydev/fleet-portal/internal/geo"
	"github.com/ukydev/fleet-portal/internal/metrics"
	"github.com/ukydev/fleet-portal/internal/models"
	"github.com/ukydev/fleet-portal/internal/notify"
	"github.com/ukydev/fleet-portal/internal/policy"
	"github.com/ukydev/fleet-portal/internal/triage"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/sync/errgroup"
)

// ErrNotFound is returned when a policy or exception id is unknown.
var ErrNotFound = errors.New("not found")

// Store owns the vehicle, policy and exception collections for a session.
// Every mutation holds the lock for its whole duration, so actions never
// interleave. Feed fetches run unlocked and are applied atomically.
type Store struct {
	mu         sync.Mutex
	vehicles   []models.Vehicle
	policies   []models.Policy
	exceptions []models.ExceptionItem

	source    feeds.Source
	publisher notify.Publisher
	metrics   *metrics.Registry
	newID     func() string
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPublisher sets where state-change events are sent.
func WithPublisher(p notify.Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Registry) Option {
	return func(s *Store) { s.metrics = m }
}

// WithIDGenerator overrides how new policy ids are minted.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// NewStore creates an empty store over source. Call Load to populate it.
func NewStore(source feeds.Source, opts ...Option) *Store {
	s := &Store{
		source:    source,
		publisher: notify.Noop{},
		metrics:   metrics.New(),
		newID:     func() string { return primitive.NewObjectID().Hex() },
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load fetches all three feeds concurrently. Each collection is replaced as
// soon as its own fetch completes.
func (s *Store) Load(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		vehicles, err := s.source.FetchVehicles(gctx)
		s.metrics.ObserveFetch("vehicles", start, err)
		if err != nil {
			return fmt.Errorf("vehicle feed: %w", err)
		}
		s.mu.Lock()
		s.vehicles = vehicles
		s.mu.Unlock()
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		policies, err := s.source.FetchPolicies(gctx)
		s.metrics.ObserveFetch("policies", start, err)
		if err != nil {
			return fmt.Errorf("policy feed: %w", err)
		}
		s.mu.Lock()
		s.policies = policies
		s.mu.Unlock()
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		items, err := s.source.FetchExceptions(gctx)
		s.metrics.ObserveFetch("exceptions", start, err)
		if err != nil {
			return fmt.Errorf("exception feed: %w", err)
		}
		s.applyExceptions(items)
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	log.WithFields(log.Fields{
		"vehicles":   len(s.vehicles),
		"policies":   len(s.policies),
		"exceptions": len(s.exceptions),
	}).Info("Portal state loaded")
	return nil
}

func (s *Store) applyExceptions(items []models.ExceptionItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.exceptions = items
	s.metrics.OpenItems.Set(float64(triage.Count(items).Open))
}

// Vehicles returns a copy of the vehicle collection.
func (s *Store) Vehicles() []models.Vehicle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Vehicle{}, s.vehicles...)
}

// Project builds the map overlay for the current vehicles.
func (s *Store) Project(w geo.Window) *geojson.FeatureCollection {
	return geo.Project(s.Vehicles(), w)
}

// Policies returns a copy of the policy collection in its stored order.
func (s *Store) Policies() []models.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Policy, len(s.policies))
	for i, p := range s.policies {
		out[i] = p.Clone()
	}
	return out
}

// Policy returns the policy with the given id.
func (s *Store) Policy(id string) (models.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.policyIndex(id); i >= 0 {
		return s.policies[i].Clone(), nil
	}
	return models.Policy{}, fmt.Errorf("policy %s: %w", id, ErrNotFound)
}

func (s *Store) policyIndex(id string) int {
	for i, p := range s.policies {
		if p.ID == id {
			return i
		}
	}
	return -1
}

// SavePolicy validates p and stores it. A draft id (empty or "new") is
// replaced with a freshly minted one; a known id replaces that entry in
// place; any other id is appended. Invalid policies leave the store unchanged.
func (s *Store) SavePolicy(ctx context.Context, p models.Policy) (models.Policy, error) {
	if err := policy.Validate(p); err != nil {
		s.metrics.PolicySaves.WithLabelValues("invalid").Inc()
		log.WithError(err).WithField("policy_id", p.ID).Warn("Rejected policy save")
		return models.Policy{}, err
	}

	p = p.Clone()
	s.mu.Lock()
	if p.ID == "" || p.ID == policy.NewPolicyID {
		p.ID = s.newID()
	}
	replaced := false
	if i := s.policyIndex(p.ID); i >= 0 {
		s.policies[i] = p
		replaced = true
	} else {
		s.policies = append(s.policies, p)
	}
	s.mu.Unlock()

	s.metrics.PolicySaves.WithLabelValues("ok").Inc()
	log.WithFields(log.Fields{
		"policy_id": p.ID,
		"name":      p.Name,
		"replaced":  replaced,
	}).Info("Saved policy")

	s.publish(ctx, notify.Event{Kind: notify.KindPolicySaved, ID: p.ID})
	return p.Clone(), nil
}

// Evaluate checks txn against the stored policy with the given id.
func (s *Store) Evaluate(policyID string, txn models.Transaction) (policy.Result, error) {
	p, err := s.Policy(policyID)
	if err != nil {
		return policy.Result{}, err
	}
	result := policy.Evaluate(p, txn)

	outcome := "allowed"
	if !result.Allowed {
		outcome = "denied"
	}
	s.metrics.Evaluations.WithLabelValues(outcome).Inc()
	for _, v := range result.Violations {
		s.metrics.Violations.WithLabelValues(string(v)).Inc()
	}
	log.WithFields(log.Fields{
		"policy_id":  policyID,
		"vehicle_id": txn.VehicleID,
		"amount":     txn.Amount,
		"mcc":        txn.MCC,
		"allowed":    result.Allowed,
		"violations": result.Violations,
	}).Debug("Evaluated transaction")
	return result, nil
}

// Exceptions returns the exceptions matching f, in feed order.
func (s *Store) Exceptions(f triage.StatusFilter) []models.ExceptionItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.ExceptionItem{}, triage.Filter(s.exceptions, f)...)
}

// decisionLabel keeps the metric label set closed over client input.
func decisionLabel(decision models.Status) string {
	switch decision {
	case models.StatusApproved, models.StatusDenied:
		return string(decision)
	default:
		return "invalid"
	}
}

// Triage applies decision to the exception with the given id.
func (s *Store) Triage(ctx context.Context, id string, decision models.Status) (models.ExceptionItem, error) {
	label := decisionLabel(decision)
	s.mu.Lock()
	idx := -1
	for i, it := range s.exceptions {
		if it.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		s.metrics.Triage.WithLabelValues(label, "not_found").Inc()
		return models.ExceptionItem{}, fmt.Errorf("exception %s: %w", id, ErrNotFound)
	}
	updated, err := triage.Triage(s.exceptions[idx], decision)
	if err != nil {
		current := s.exceptions[idx]
		s.mu.Unlock()
		s.metrics.Triage.WithLabelValues(label, "rejected").Inc()
		log.WithError(err).WithField("exception_id", id).Warn("Rejected triage action")
		return current, err
	}
	s.exceptions[idx] = updated
	s.metrics.OpenItems.Set(float64(triage.Count(s.exceptions).Open))
	s.mu.Unlock()

	s.metrics.Triage.WithLabelValues(label, "ok").Inc()
	log.WithFields(log.Fields{
		"exception_id": id,
		"vehicle_id":   updated.VehicleID,
		"status":       updated.Status,
	}).Info("Triaged exception")

	s.publish(ctx, notify.Event{Kind: notify.KindExceptionTriaged, ID: id, Status: string(updated.Status)})
	return updated, nil
}

type refreshResult struct {
	items []models.ExceptionItem
	err   error
}

// RefreshExceptions refetches the exception feed and replaces the collection
// wholesale. Once started, the fetch always completes and applies; if ctx
// ends first only the caller's wait is abandoned.
func (s *Store) RefreshExceptions(ctx context.Context) ([]models.ExceptionItem, error) {
	done := make(chan refreshResult, 1)
	go func() {
		fetchCtx := context.WithoutCancel(ctx)
		start := time.Now()
		items, err := s.source.FetchExceptions(fetchCtx)
		s.metrics.ObserveFetch("exceptions", start, err)
		if err != nil {
			log.WithError(err).Error("Failed to refresh exceptions")
			done <- refreshResult{err: fmt.Errorf("exception feed: %w", err)}
			return
		}
		s.applyExceptions(items)
		log.WithField("exceptions", len(items)).Info("Refreshed exceptions")
		s.publish(fetchCtx, notify.Event{Kind: notify.KindExceptionsLoaded, Count: len(items)})
		done <- refreshResult{items: append([]models.ExceptionItem{}, items...)}
	}()

	select {
	case r := <-done:
		return r.items, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Snapshot summarizes the current state.
type Snapshot struct {
	Vehicles   int           `json:"vehicles"`
	Policies   int           `json:"policies"`
	Spend      models.Spend  `json:"fleet_spend"`
	Exceptions triage.Counts `json:"exceptions"`
	At         time.Time     `json:"at"`
}

// Snapshot returns the fleet totals shown on the portal toolbar.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Vehicles:   len(s.vehicles),
		Policies:   len(s.policies),
		Exceptions: triage.Count(s.exceptions),
		At:         s.now(),
	}
	today, week, month := decimal.Zero, decimal.Zero, decimal.Zero
	for _, v := range s.vehicles {
		today = today.Add(models.Money(v.Spend.Today))
		week = week.Add(models.Money(v.Spend.Last7Days))
		month = month.Add(models.Money(v.Spend.Last30Days))
	}
	snap.Spend = models.Spend{
		Today:      today.InexactFloat64(),
		Last7Days:  week.InexactFloat64(),
		Last30Days: month.InexactFloat64(),
	}
	return snap
}

func (s *Store) publish(ctx context.Context, event notify.Event) {
	event.At = s.now()
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.WithError(err).WithField("kind", event.Kind).Warn("Failed to publish event")
	}
}
