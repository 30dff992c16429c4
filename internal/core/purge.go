package core

import "landsim/pkg/domain"

// Dangling describes one repaired reference.
type Dangling struct {
	Entity domain.EntityType
	ID     int
	Ref    int
}

// PurgeDanglingEmployment clears person/job references that no longer point
// at a matching record and returns what was repaired. It must run while no
// other goroutine mutates the registries.
func (s *SimulationContext) PurgeDanglingEmployment() []Dangling {
	var repaired []Dangling
	for _, id := range s.Persons.IDs() {
		p, _ := s.Persons.Get(id)
		if !p.Employed() {
			continue
		}
		job, ok := s.Jobs.Get(p.JobID)
		if ok && job.WorkerID == p.ID {
			continue
		}
		repaired = append(repaired, Dangling{Entity: domain.EntityPerson, ID: int(p.ID), Ref: int(p.JobID)})
		p.JobID = domain.Unemployed
		p.Income = 0
		if h, ok := s.Households.Get(p.HouseholdID); ok {
			s.RefreshHousehold(h)
		}
	}
	for _, job := range s.Jobs.Values() {
		if job.Vacant() {
			continue
		}
		p, ok := s.Persons.Get(job.WorkerID)
		if ok && p.JobID == job.ID {
			continue
		}
		repaired = append(repaired, Dangling{Entity: domain.EntityJob, ID: int(job.ID), Ref: int(job.WorkerID)})
		_ = s.Jobs.SetWorker(job.ID, domain.VacantJob)
	}
	return repaired
}
