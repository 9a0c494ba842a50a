// Package competitors provides the competitor list of a race context.
// Real competitor data acquisition is not available, MockProvider is a stand-in
// which produces plausible entries around the driver's position.
package competitors

import (
	"slices"

	"github.com/mpapenbr/racestrategy-service-go/pkg/model"
)

type Provider interface {
	Competitors(driver model.DriverState, lap int) []model.Competitor
}

type (
	MockOption   func(*MockProvider)
	MockProvider struct {
		count   int
		gapStep float64
		names   []string
	}
)

//nolint:gochecknoglobals // fixed list for synthetic entries
var defaultNames = []string{
	"Verstappen", "Norris", "Leclerc", "Piastri", "Sainz", "Hamilton", "Russell",
	"Perez", "Gasly", "Ocon", "Albon", "Tsunoda", "Hulkenberg", "Stroll",
	"Bottas", "Zhou", "Magnussen", "Ricciardo", "Sargeant", "Alonso",
}

//nolint:gochecknoglobals // rotation used for synthetic entries
var mockCompounds = []model.Compound{
	model.CompoundMedium, model.CompoundHard, model.CompoundSoft,
}

func WithCount(n int) MockOption {
	return func(m *MockProvider) {
		m.count = n
	}
}

func WithGapStep(sec float64) MockOption {
	return func(m *MockProvider) {
		m.gapStep = sec
	}
}

func WithNames(names []string) MockOption {
	return func(m *MockProvider) {
		m.names = names
	}
}

func NewMockProvider(opts ...MockOption) *MockProvider {
	ret := &MockProvider{count: 4, gapStep: 1.8, names: defaultNames}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Competitors returns up to count entries bracketing the driver's position.
// Gaps grow monotonically with the distance in positions, negative gaps are ahead.
// The result is deterministic for a given position and lap.
func (m *MockProvider) Competitors(driver model.DriverState, lap int) []model.Competitor {
	pos := max(1, driver.Position)
	ret := make([]model.Competitor, 0, m.count)
	// alternate ahead/behind, nearest first
	for dist := 1; len(ret) < m.count && dist <= m.count+pos; dist++ {
		for _, p := range []int{pos - dist, pos + dist} {
			if p < 1 || len(ret) >= m.count {
				continue
			}
			ret = append(ret, m.entry(pos, p, lap, driver.DriverName))
		}
	}
	slices.SortFunc(ret, func(a, b model.Competitor) int { return a.Position - b.Position })
	return ret
}

func (m *MockProvider) entry(driverPos, pos, lap int, driverName string) model.Competitor {
	dist := pos - driverPos
	// small deterministic wobble, always below one gap step
	wobble := float64((lap*7+pos*3)%10) / 10.0 * m.gapStep * 0.4
	gap := float64(dist) * m.gapStep
	if dist < 0 {
		gap -= wobble
	} else {
		gap += wobble
	}
	name := m.names[(pos-1)%len(m.names)]
	if name == driverName {
		name = m.names[(pos)%len(m.names)]
	}
	return model.Competitor{
		Position:     pos,
		Driver:       name,
		TireCompound: mockCompounds[pos%len(mockCompounds)],
		TireAgeLaps:  (lap + pos*3) % 25,
		GapSeconds:   gap,
	}
}

// StaticProvider returns a fixed list, e.g. competitors supplied by a caller
type StaticProvider []model.Competitor

func (s StaticProvider) Competitors(_ model.DriverState, _ int) []model.Competitor {
	ret := slices.Clone([]model.Competitor(s))
	slices.SortFunc(ret, func(a, b model.Competitor) int { return a.Position - b.Position })
	return ret
}
