package testutil

import "landsim/pkg/domain"

// PersonSpec describes a person added through PopulationBuilder.
type PersonSpec struct {
	Age    int
	Gender domain.Gender
	Role   domain.Role
	Income int
}

// Adult returns a single working-age person spec.
func Adult(age int, gender domain.Gender) PersonSpec {
	return PersonSpec{Age: age, Gender: gender, Role: domain.RoleSingle}
}

// PopulationBuilder assembles small, consistent populations for tests.
type PopulationBuilder struct {
	pop    domain.Population
	nextHH domain.HouseholdID
	nextP  domain.PersonID
	nextD  domain.DwellingID
	nextJ  domain.JobID
}

// NewPopulation starts an empty population.
func NewPopulation() *PopulationBuilder {
	return &PopulationBuilder{}
}

// Zone adds a zone in region 1.
func (b *PopulationBuilder) Zone(id domain.ZoneID) *PopulationBuilder {
	b.pop.Zones = append(b.pop.Zones, domain.Zone{ID: id, Region: 1})
	return b
}

// Dwelling adds a vacant dwelling and returns its id.
func (b *PopulationBuilder) Dwelling(zone domain.ZoneID, typ domain.DwellingType, price int) domain.DwellingID {
	id := b.nextD
	b.nextD++
	b.pop.Dwellings = append(b.pop.Dwellings, domain.Dwelling{
		ID:         id,
		Zone:       zone,
		Type:       typ,
		ResidentID: domain.NoHousehold,
		Price:      price,
		YearBuilt:  1990,
		Quality:    3,
		Bedrooms:   2,
	})
	return id
}

// Household adds a household living in dwelling (or domain.NoDwelling) and
// returns its id and the ids of its members.
func (b *PopulationBuilder) Household(dwelling domain.DwellingID, members ...PersonSpec) (domain.HouseholdID, []domain.PersonID) {
	id := b.nextHH
	b.nextHH++
	h := domain.Household{ID: id, DwellingID: dwelling}
	var ids []domain.PersonID
	for _, spec := range members {
		pid := b.nextP
		b.nextP++
		b.pop.Persons = append(b.pop.Persons, domain.Person{
			ID:          pid,
			HouseholdID: id,
			Age:         spec.Age,
			Gender:      spec.Gender,
			Role:        spec.Role,
			JobID:       domain.Unemployed,
			Income:      spec.Income,
		})
		h.Members = append(h.Members, pid)
		ids = append(ids, pid)
	}
	b.pop.Households = append(b.pop.Households, h)
	if dwelling != domain.NoDwelling {
		for i := range b.pop.Dwellings {
			if b.pop.Dwellings[i].ID == dwelling {
				b.pop.Dwellings[i].ResidentID = id
			}
		}
	}
	return id, ids
}

// Job adds a vacant job and returns its id.
func (b *PopulationBuilder) Job(zone domain.ZoneID, typ string) domain.JobID {
	id := b.nextJ
	b.nextJ++
	b.pop.Jobs = append(b.pop.Jobs, domain.Job{ID: id, Zone: zone, Type: typ, WorkerID: domain.VacantJob})
	return id
}

// Employ links a person and a job in both directions.
func (b *PopulationBuilder) Employ(person domain.PersonID, job domain.JobID, income int) *PopulationBuilder {
	for i := range b.pop.Persons {
		if b.pop.Persons[i].ID == person {
			b.pop.Persons[i].JobID = job
			b.pop.Persons[i].Income = income
		}
	}
	for i := range b.pop.Jobs {
		if b.pop.Jobs[i].ID == job {
			b.pop.Jobs[i].WorkerID = person
		}
	}
	return b
}

// Build returns the assembled population.
func (b *PopulationBuilder) Build() domain.Population {
	return b.pop
}
