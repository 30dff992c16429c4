package core

import "landsim/pkg/domain"

// IDState returns the next identifier each registry would allocate. It is
// kept in checkpoints because entities removed during the run leave gaps
// that a reload from the population alone would reuse.
func (s *SimulationContext) IDState() map[string]int {
	return map[string]int{
		string(domain.EntityHousehold): int(s.Households.Next()),
		string(domain.EntityPerson):    int(s.Persons.Next()),
		string(domain.EntityDwelling):  int(s.Dwellings.Next()),
		string(domain.EntityJob):       int(s.Jobs.Next()),
	}
}

// RestoreIDState raises the allocation counters to a saved state. Unknown
// keys are ignored.
func (s *SimulationContext) RestoreIDState(state map[string]int) {
	for entity, next := range state {
		switch domain.EntityType(entity) {
		case domain.EntityHousehold:
			s.Households.Reserve(domain.HouseholdID(next))
		case domain.EntityPerson:
			s.Persons.Reserve(domain.PersonID(next))
		case domain.EntityDwelling:
			s.Dwellings.Reserve(domain.DwellingID(next))
		case domain.EntityJob:
			s.Jobs.bumpNext(domain.JobID(next - 1))
		}
	}
}
