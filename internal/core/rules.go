package core

import "landsim/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in integrity checks.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewHouseholdMembershipRule())
	engine.Register(NewEmploymentLinkRule())
	engine.Register(NewDwellingOccupancyRule())
	engine.Register(NewPriceBoundsRule())
	return engine
}

// registryView exposes the registries to rules as copies.
type registryView struct {
	s *SimulationContext
}

// View returns a read-only view over the registries.
func (s *SimulationContext) View() domain.RuleView { return registryView{s} }

func (v registryView) ListHouseholds() []domain.Household {
	return v.s.Households.Values(cloneHousehold)
}

func (v registryView) ListPersons() []domain.Person { return v.s.Persons.Values(nil) }

func (v registryView) ListDwellings() []domain.Dwelling { return v.s.Dwellings.Values(nil) }

func (v registryView) ListJobs() []domain.Job { return v.s.Jobs.Values() }

func (v registryView) FindHousehold(id domain.HouseholdID) (domain.Household, bool) {
	h, ok := v.s.Households.Get(id)
	if !ok {
		return domain.Household{}, false
	}
	return cloneHousehold(*h), true
}

func (v registryView) FindPerson(id domain.PersonID) (domain.Person, bool) {
	p, ok := v.s.Persons.Get(id)
	if !ok {
		return domain.Person{}, false
	}
	return *p, true
}

func (v registryView) FindDwelling(id domain.DwellingID) (domain.Dwelling, bool) {
	d, ok := v.s.Dwellings.Get(id)
	if !ok {
		return domain.Dwelling{}, false
	}
	return *d, true
}

func (v registryView) FindJob(id domain.JobID) (domain.Job, bool) {
	return v.s.Jobs.Get(id)
}
