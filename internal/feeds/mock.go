package feeds

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"github.com/ukydev/fleet-portal/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var defaultSeed []byte

// DefaultLatency is the simulated delay before a mock fetch completes.
const DefaultLatency = 150 * time.Millisecond

// Seed is the fixture the mock feeds serve.
type Seed struct {
	Vehicles   []models.Vehicle       `yaml:"vehicles"`
	Policies   []models.Policy        `yaml:"policies"`
	Exceptions []models.ExceptionItem `yaml:"exceptions"`
}

// ParseSeed decodes a YAML fixture.
func ParseSeed(data []byte) (Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Seed{}, fmt.Errorf("failed to parse seed: %w", err)
	}
	return s, nil
}

// Mock serves fixed in-memory records after a short simulated delay.
type Mock struct {
	seed    Seed
	latency time.Duration
}

// NewMock creates mock feeds over the embedded fixture.
func NewMock(latency time.Duration) (*Mock, error) {
	seed, err := ParseSeed(defaultSeed)
	if err != nil {
		return nil, err
	}
	return NewMockFromSeed(seed, latency), nil
}

// NewMockFromSeed creates mock feeds over a caller-supplied fixture.
func NewMockFromSeed(seed Seed, latency time.Duration) *Mock {
	return &Mock{seed: seed, latency: latency}
}

func (m *Mock) wait(ctx context.Context) error {
	if m.latency <= 0 {
		return nil
	}
	timer := time.NewTimer(m.latency)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchVehicles returns a copy of the fixture vehicles.
func (m *Mock) FetchVehicles(ctx context.Context) ([]models.Vehicle, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return append([]models.Vehicle(nil), m.seed.Vehicles...), nil
}

// FetchPolicies returns a deep copy of the fixture policies.
func (m *Mock) FetchPolicies(ctx context.Context) ([]models.Policy, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	out := make([]models.Policy, len(m.seed.Policies))
	for i, p := range m.seed.Policies {
		out[i] = p.Clone()
	}
	return out, nil
}

// FetchExceptions returns a copy of the fixture exceptions.
func (m *Mock) FetchExceptions(ctx context.Context) ([]models.ExceptionItem, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return append([]models.ExceptionItem(nil), m.seed.Exceptions...), nil
}
