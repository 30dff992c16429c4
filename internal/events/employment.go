package events

import (
	"context"
	"fmt"
	"sort"

	"landsim/internal/core"
	"landsim/internal/diagnostics"
	"landsim/internal/guard"
	"landsim/pkg/domain"
)

// MinWorkingAge is the youngest age at which persons join the labour market.
const MinWorkingAge = 16

// ageGroupBounds are the lower bounds of the labour-market age groups.
var ageGroupBounds = []int{16, 25, 35, 45, 55, 65}

// AgeGroupCount is the number of labour-market age groups.
var AgeGroupCount = len(ageGroupBounds)

// AgeGroup returns the labour-market age group of age, or -1 below working age.
func AgeGroup(age int) int {
	group := -1
	for i, lower := range ageGroupBounds {
		if age >= lower {
			group = i
		}
	}
	return group
}

// EmploymentTargets holds the target participation share per gender and
// age group.
type EmploymentTargets map[domain.Gender][]float64

// DefaultEmploymentTargets returns generic participation shares.
func DefaultEmploymentTargets() EmploymentTargets {
	return EmploymentTargets{
		domain.GenderMale:   {0.55, 0.85, 0.88, 0.86, 0.70, 0.10},
		domain.GenderFemale: {0.50, 0.76, 0.79, 0.77, 0.60, 0.07},
	}
}

// Validate checks that each gender has one share in [0,1] per age group.
func (t EmploymentTargets) Validate() error {
	for _, g := range []domain.Gender{domain.GenderMale, domain.GenderFemale} {
		shares, ok := t[g]
		if !ok {
			return fmt.Errorf("employment targets: missing %s", g)
		}
		if len(shares) != AgeGroupCount {
			return fmt.Errorf("employment targets: %s has %d shares, want %d", g, len(shares), AgeGroupCount)
		}
		for i, s := range shares {
			if s < 0 || s > 1 {
				return fmt.Errorf("employment targets: %s group %d share %v outside [0,1]", g, i, s)
			}
		}
	}
	return nil
}

type cohort struct {
	gender domain.Gender
	group  int
}

// EmploymentModel moves persons in and out of employment so that each
// (gender, age group) cohort drifts towards its target participation share.
// Unemployed persons take the vacant job with the shortest commute from
// their home zone.
type EmploymentModel struct {
	sim      *core.SimulationContext
	guard    *guard.Guard
	strategy ProbabilityStrategy
	targets  EmploymentTargets

	rates map[cohort]float64
	// vacancies holds vacant job ids per zone, ascending.
	vacancies map[domain.ZoneID][]domain.JobID
	zones     []domain.ZoneID
	byOrigin  map[domain.ZoneID][]domain.ZoneID
}

// NewEmploymentModel constructs the labour-market model.
func NewEmploymentModel(sim *core.SimulationContext, g *guard.Guard, strategy ProbabilityStrategy, targets EmploymentTargets) *EmploymentModel {
	if targets == nil {
		targets = DefaultEmploymentTargets()
	}
	return &EmploymentModel{sim: sim, guard: g, strategy: strategy, targets: targets}
}

func (m *EmploymentModel) Name() string { return "employment" }

// PrepareYear tallies current participation and indexes vacant jobs. All
// models prepare before any steps, so rates use last year's ages and jobs
// vacated by this year's deaths are first offered next year.
func (m *EmploymentModel) PrepareYear(_ context.Context, _ int) error {
	employed := make(map[cohort]int)
	total := make(map[cohort]int)
	for _, id := range m.sim.Persons.IDs() {
		p, _ := m.sim.Persons.Get(id)
		c, ok := m.cohortOf(*p)
		if !ok {
			continue
		}
		total[c]++
		if p.Employed() {
			employed[c]++
		}
	}
	m.rates = make(map[cohort]float64, len(total))
	for c, n := range total {
		m.rates[c] = float64(employed[c]) / float64(n)
	}

	m.vacancies = make(map[domain.ZoneID][]domain.JobID)
	for _, job := range m.sim.Jobs.Values() {
		if job.Vacant() {
			m.vacancies[job.Zone] = append(m.vacancies[job.Zone], job.ID)
		}
	}
	m.zones = m.zones[:0]
	for z := range m.vacancies {
		m.zones = append(m.zones, z)
	}
	sort.Slice(m.zones, func(i, j int) bool { return m.zones[i] < m.zones[j] })
	m.byOrigin = make(map[domain.ZoneID][]domain.ZoneID)
	return nil
}

func (m *EmploymentModel) cohortOf(p domain.Person) (cohort, bool) {
	group := AgeGroup(p.Age)
	if group < 0 {
		return cohort{}, false
	}
	if _, ok := m.targets[p.Gender]; !ok {
		return cohort{}, false
	}
	return cohort{gender: p.Gender, group: group}, true
}

// Hazard returns the yearly probability of a status change for a person
// whose cohort has participation rate against target share.
func Hazard(employed bool, rate, target float64) float64 {
	if employed {
		if rate <= 0 {
			return 0
		}
		return max(0, (rate-target)/rate)
	}
	if rate >= 1 {
		return 0
	}
	return max(0, (target-rate)/(1-rate))
}

func (m *EmploymentModel) EventsForYear(_ context.Context, _ int) ([]domain.MicroEvent, error) {
	var out []domain.MicroEvent
	for _, id := range m.sim.Persons.IDs() {
		p, _ := m.sim.Persons.Get(id)
		c, ok := m.cohortOf(*p)
		if !ok {
			continue
		}
		prob := Hazard(p.Employed(), m.rates[c], m.targets[c.gender][c.group])
		if hit, _ := draw(m.sim.Rand, prob); !hit {
			continue
		}
		kind := domain.EventFindJob
		if p.Employed() {
			kind = domain.EventQuitJob
		}
		out = append(out, domain.NewPersonEvent(id, kind))
	}
	return out, nil
}

func (m *EmploymentModel) HandleEvent(_ context.Context, ev domain.MicroEvent) (bool, error) {
	p, ok := m.sim.Persons.Get(domain.PersonID(ev.Subject))
	if !ok {
		stale(m.sim, m.Name(), domain.EntityPerson, ev.Subject)
		return false, nil
	}
	h, ok := m.sim.Households.Get(p.HouseholdID)
	if !ok {
		return false, nil
	}
	switch ev.Kind {
	case domain.EventFindJob:
		if p.Employed() || p.Age < MinWorkingAge {
			return false, nil
		}
		jobID, ok := m.nearestVacancy(m.homeZone(h))
		if !ok {
			m.sim.Diagnostics.Record(m.Name(), diagnostics.IssueNoVacantJob, fmt.Sprintf("no vacant job for person %d", p.ID))
			return false, nil
		}
		job, _ := m.sim.Jobs.Get(jobID)
		return m.guard.Run(m.Name(), h, func(s *guard.Scope) error {
			if !m.sim.AssignJob(p, jobID, m.strategy.StartingIncome(*p, job)) {
				return guard.Infeasible("job %d no longer vacant", jobID)
			}
			m.sim.RefreshHousehold(s.Household())
			return nil
		})
	case domain.EventQuitJob:
		if !p.Employed() {
			return false, nil
		}
		return m.guard.Run(m.Name(), h, func(s *guard.Scope) error {
			m.sim.ReleaseJob(p)
			m.sim.RefreshHousehold(s.Household())
			return nil
		})
	default:
		return false, fmt.Errorf("employment: unexpected event kind %q", ev.Kind)
	}
}

func (m *EmploymentModel) homeZone(h *domain.Household) domain.ZoneID {
	if d, ok := m.sim.Dwellings.Get(h.DwellingID); ok {
		return d.Zone
	}
	if len(m.zones) > 0 {
		return m.zones[0]
	}
	return 0
}

// nearestVacancy pops the first still-vacant job from the zone closest to
// origin. Zones are ranked by travel time, ties by zone id.
func (m *EmploymentModel) nearestVacancy(origin domain.ZoneID) (domain.JobID, bool) {
	order, ok := m.byOrigin[origin]
	if !ok {
		order = append([]domain.ZoneID(nil), m.zones...)
		tt := m.sim.TravelTimes
		sort.SliceStable(order, func(i, j int) bool {
			return tt.TravelTime(origin, order[i]) < tt.TravelTime(origin, order[j])
		})
		m.byOrigin[origin] = order
	}
	for _, z := range order {
		list := m.vacancies[z]
		for len(list) > 0 {
			id := list[0]
			list = list[1:]
			if job, ok := m.sim.Jobs.Get(id); ok && job.Vacant() {
				m.vacancies[z] = list
				return id, true
			}
		}
		m.vacancies[z] = list
	}
	return domain.Unemployed, false
}

func (m *EmploymentModel) EndYear(context.Context, int) error {
	m.vacancies = nil
	m.byOrigin = nil
	return nil
}

func (m *EmploymentModel) EndSimulation(context.Context) error { return nil }
