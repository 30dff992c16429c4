package core

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"

	"landsim/internal/diagnostics"
	"landsim/internal/logging"
	"landsim/pkg/domain"
)

// SimulationContext owns every registry and shared collaborator of one run.
// Components receive it by reference; nothing in the engine is global, so
// several contexts can run side by side in one process.
type SimulationContext struct {
	Zones      *Registry[domain.ZoneID, domain.Zone]
	Households *Registry[domain.HouseholdID, domain.Household]
	Persons    *Registry[domain.PersonID, domain.Person]
	Dwellings  *Registry[domain.DwellingID, domain.Dwelling]
	Jobs       *JobRegistry

	// HouseholdLocks serialises concurrent access to one household and its
	// members. Only the job reconciliation pass needs it.
	HouseholdLocks *LockTable[domain.HouseholdID]

	Diagnostics *diagnostics.Counter
	Logger      logging.Logger
	TravelTimes domain.TravelTimes
	Rules       *domain.RulesEngine

	RunID string
	Seed  uint64
	// Rand is the single sequential generator used by the event models.
	Rand *rand.Rand

	source *rand.PCG
	year   int

	// vacated lists dwellings vacated during the current year in order;
	// entries may have been re-occupied since.
	vacancyMu sync.Mutex
	vacated   []domain.DwellingID
}

// Option configures a SimulationContext.
type Option func(*SimulationContext)

// WithLogger sets the logger shared by all components.
func WithLogger(l logging.Logger) Option {
	return func(s *SimulationContext) {
		if l != nil {
			s.Logger = l
		}
	}
}

// WithDiagnostics injects the issue counter.
func WithDiagnostics(c *diagnostics.Counter) Option {
	return func(s *SimulationContext) {
		if c != nil {
			s.Diagnostics = c
		}
	}
}

// WithSeed fixes the run seed.
func WithSeed(seed uint64) Option {
	return func(s *SimulationContext) { s.Seed = seed }
}

// WithTravelTimes sets the travel time provider.
func WithTravelTimes(tt domain.TravelTimes) Option {
	return func(s *SimulationContext) {
		if tt != nil {
			s.TravelTimes = tt
		}
	}
}

// WithRulesEngine replaces the default integrity rules.
func WithRulesEngine(engine *domain.RulesEngine) Option {
	return func(s *SimulationContext) {
		if engine != nil {
			s.Rules = engine
		}
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) Option {
	return func(s *SimulationContext) {
		if id != "" {
			s.RunID = id
		}
	}
}

// NewSimulationContext builds an empty context.
func NewSimulationContext(opts ...Option) *SimulationContext {
	s := &SimulationContext{
		Zones:          newRegistry(domain.EntityZone, func(z *domain.Zone) domain.ZoneID { return z.ID }),
		Households:     newRegistry(domain.EntityHousehold, func(h *domain.Household) domain.HouseholdID { return h.ID }),
		Persons:        newRegistry(domain.EntityPerson, func(p *domain.Person) domain.PersonID { return p.ID }),
		Dwellings:      newRegistry(domain.EntityDwelling, func(d *domain.Dwelling) domain.DwellingID { return d.ID }),
		Jobs:           newJobRegistry(),
		HouseholdLocks: NewLockTable[domain.HouseholdID](),
		Logger:         logging.Nop(),
		TravelTimes:    uniformTravelTimes{},
		Rules:          NewDefaultRulesEngine(),
		Seed:           1,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Diagnostics == nil {
		s.Diagnostics = diagnostics.New(diagnostics.WithLogger(s.Logger))
	}
	if s.RunID == "" {
		s.RunID = uuid.NewString()
	}
	s.source = newPCG(s.Seed)
	s.Rand = rand.New(s.source)
	return s
}

// Year returns the year currently being simulated.
func (s *SimulationContext) Year() int { return s.year }

// SetYear advances the context clock and the diagnostics year.
func (s *SimulationContext) SetYear(year int) {
	s.year = year
	s.Diagnostics.SetYear(year)
	s.vacancyMu.Lock()
	s.vacated = s.vacated[:0]
	s.vacancyMu.Unlock()
}

// TaskRand returns an independently seeded generator for a concurrent task.
func (s *SimulationContext) TaskRand(label string) *rand.Rand {
	return NewRand(DeriveSeed(s.Seed, s.year, label))
}

// Load populates the registries from a flat population. Persons must
// reference existing households; dangling references are rejected so the
// run never starts from an inconsistent graph.
func (s *SimulationContext) Load(pop domain.Population) error {
	for i := range pop.Zones {
		z := pop.Zones[i]
		if err := s.Zones.Add(&z); err != nil {
			return err
		}
	}
	for i := range pop.Dwellings {
		d := pop.Dwellings[i]
		if d.Price < 0 {
			return fmt.Errorf("dwelling %d: negative price %d", d.ID, d.Price)
		}
		if err := s.Dwellings.Add(&d); err != nil {
			return err
		}
	}
	for i := range pop.Households {
		h := cloneHousehold(pop.Households[i])
		if err := s.Households.Add(&h); err != nil {
			return err
		}
	}
	for i := range pop.Persons {
		p := pop.Persons[i]
		if _, ok := s.Households.Get(p.HouseholdID); !ok {
			return fmt.Errorf("person %d: %w", p.ID, domain.ErrNotFound{Entity: domain.EntityHousehold, ID: int(p.HouseholdID)})
		}
		if err := s.Persons.Add(&p); err != nil {
			return err
		}
	}
	for _, job := range pop.Jobs {
		if err := s.Jobs.Insert(job); err != nil {
			return err
		}
	}
	for _, id := range s.Households.IDs() {
		h, _ := s.Households.Get(id)
		s.RefreshHousehold(h)
	}
	return nil
}

// Export returns the current state as a flat population in identifier order.
func (s *SimulationContext) Export() domain.Population {
	return domain.Population{
		Zones:      s.Zones.Values(nil),
		Households: s.Households.Values(cloneHousehold),
		Persons:    s.Persons.Values(nil),
		Dwellings:  s.Dwellings.Values(nil),
		Jobs:       s.Jobs.Values(),
	}
}

// CheckIntegrity evaluates the integrity rules. Warnings are recorded as
// diagnostics; blocking violations are returned as a RuleViolationError.
func (s *SimulationContext) CheckIntegrity(ctx context.Context) (domain.Result, error) {
	res, err := s.Rules.Evaluate(ctx, registryView{s})
	if err != nil {
		return res, err
	}
	for _, v := range res.Violations {
		switch v.Severity {
		case domain.SeverityWarn:
			s.Diagnostics.Record(v.Rule, diagnostics.IssueIntegrityWarning, v.Message)
		case domain.SeverityLog:
			s.Logger.Debug("integrity note", "rule", v.Rule, "message", v.Message)
		}
	}
	if res.HasBlocking() {
		return res, domain.RuleViolationError{Result: res}
	}
	return res, nil
}

func cloneHousehold(h domain.Household) domain.Household {
	cp := h
	cp.Members = append([]domain.PersonID(nil), h.Members...)
	return cp
}

// uniformTravelTimes is used when no skim is configured.
type uniformTravelTimes struct{}

func (uniformTravelTimes) TravelTime(origin, destination domain.ZoneID) float64 {
	if origin == destination {
		return 0
	}
	return 1800
}

func (uniformTravelTimes) Accessibility(domain.ZoneID) float64 { return 1 }
