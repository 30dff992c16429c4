package core

import (
	"fmt"

	"landsim/pkg/domain"
)

// RefreshHousehold recomputes the derived income, size and type of h.
func (s *SimulationContext) RefreshHousehold(h *domain.Household) {
	members := make(map[domain.PersonID]domain.Person, len(h.Members))
	for _, id := range h.Members {
		if p, ok := s.Persons.Get(id); ok {
			members[id] = *p
		}
	}
	h.Derive(members)
}

// AssignJob makes the person the worker of a vacant job. It reports false
// when the job does not exist or is already taken.
func (s *SimulationContext) AssignJob(p *domain.Person, jobID domain.JobID, income int) bool {
	if p.Employed() {
		return false
	}
	if !s.Jobs.Claim(jobID, p.ID) {
		return false
	}
	p.JobID = jobID
	p.Income = income
	return true
}

// ReleaseJob detaches the person from their job, vacating the job if it
// still exists. The person's labour income is dropped.
func (s *SimulationContext) ReleaseJob(p *domain.Person) {
	if !p.Employed() {
		return
	}
	if job, ok := s.Jobs.Get(p.JobID); ok && job.WorkerID == p.ID {
		_ = s.Jobs.SetWorker(p.JobID, domain.VacantJob)
	}
	p.JobID = domain.Unemployed
	p.Income = 0
}

// OccupyDwelling moves the household into a vacant dwelling, vacating the
// dwelling it lived in before.
func (s *SimulationContext) OccupyDwelling(h *domain.Household, dwellingID domain.DwellingID) error {
	d, err := s.Dwellings.Lookup(dwellingID)
	if err != nil {
		return err
	}
	if !d.Vacant() && d.ResidentID != h.ID {
		return fmt.Errorf("dwelling %d occupied by household %d", d.ID, d.ResidentID)
	}
	s.VacateDwelling(h)
	d.ResidentID = h.ID
	h.DwellingID = dwellingID
	return nil
}

// VacateDwelling clears the household's dwelling reference and the
// dwelling's resident reference.
func (s *SimulationContext) VacateDwelling(h *domain.Household) {
	if h.DwellingID == domain.NoDwelling {
		return
	}
	if d, ok := s.Dwellings.Get(h.DwellingID); ok && d.ResidentID == h.ID {
		d.ResidentID = domain.NoHousehold
		s.vacancyMu.Lock()
		s.vacated = append(s.vacated, d.ID)
		s.vacancyMu.Unlock()
	}
	h.DwellingID = domain.NoDwelling
}

// VacancyMark returns a position in the log of dwellings vacated this year.
// Pass it to VacatedSince to read the dwellings vacated afterwards.
func (s *SimulationContext) VacancyMark() int {
	s.vacancyMu.Lock()
	defer s.vacancyMu.Unlock()
	return len(s.vacated)
}

// VacatedSince returns the dwellings vacated after mark and the new mark.
// A mark from a previous year reads the log from its start.
func (s *SimulationContext) VacatedSince(mark int) ([]domain.DwellingID, int) {
	s.vacancyMu.Lock()
	defer s.vacancyMu.Unlock()
	if mark > len(s.vacated) {
		mark = 0
	}
	out := make([]domain.DwellingID, len(s.vacated)-mark)
	copy(out, s.vacated[mark:])
	return out, len(s.vacated)
}

// DetachMember removes the person from their household's member list
// without touching the person record.
func (s *SimulationContext) DetachMember(h *domain.Household, id domain.PersonID) {
	out := h.Members[:0]
	for _, m := range h.Members {
		if m != id {
			out = append(out, m)
		}
	}
	h.Members = out
}

// NewHousehold allocates an empty household without a dwelling.
func (s *SimulationContext) NewHousehold() (*domain.Household, error) {
	h := &domain.Household{ID: s.Households.NextID(), DwellingID: domain.NoDwelling}
	if err := s.Households.Add(h); err != nil {
		return nil, err
	}
	return h, nil
}

// DissolveHousehold removes an empty household and vacates its dwelling.
// It must not run during the job reconciliation pass, which holds
// household locks.
func (s *SimulationContext) DissolveHousehold(h *domain.Household) {
	s.VacateDwelling(h)
	s.Households.Remove(h.ID)
	s.HouseholdLocks.Forget(h.ID)
}

// RemovePerson deletes a person, vacating their job and detaching them from
// their household. A household left without members is dissolved.
func (s *SimulationContext) RemovePerson(id domain.PersonID) error {
	p, err := s.Persons.Lookup(id)
	if err != nil {
		return err
	}
	s.ReleaseJob(p)
	if h, ok := s.Households.Get(p.HouseholdID); ok {
		s.DetachMember(h, id)
		s.Persons.Remove(id)
		if len(h.Members) == 0 {
			s.DissolveHousehold(h)
		} else {
			s.RefreshHousehold(h)
		}
		return nil
	}
	s.Persons.Remove(id)
	return nil
}

// VacantDwellings returns vacant dwelling ids in identifier order.
func (s *SimulationContext) VacantDwellings() []domain.DwellingID {
	var out []domain.DwellingID
	for _, id := range s.Dwellings.IDs() {
		if d, _ := s.Dwellings.Get(id); d.Vacant() {
			out = append(out, id)
		}
	}
	return out
}
