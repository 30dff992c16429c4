package core

import (
	"context"
	"errors"
	"testing"

	"landsim/internal/diagnostics"
	"landsim/pkg/domain"
	"landsim/testutil"
)

func loadContext(t *testing.T, pop domain.Population) *SimulationContext {
	t.Helper()
	s := NewSimulationContext(WithSeed(7))
	if err := s.Load(pop); err != nil {
		t.Fatalf("load: %v", err)
	}
	return s
}

func TestLoadDerivesHouseholdAttributes(t *testing.T) {
	b := testutil.NewPopulation().Zone(1)
	d := b.Dwelling(1, domain.DwellingSFD, 200000)
	hh, members := b.Household(d, testutil.Adult(40, domain.GenderMale), testutil.Adult(38, domain.GenderFemale))
	job := b.Job(1, "retail")
	b.Employ(members[0], job, 45000)
	s := loadContext(t, b.Build())

	h, err := s.Households.Lookup(hh)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if h.Size != 2 || h.Income != 45000 || h.Type != domain.NewHouseholdType(2, domain.IncomeHigh) {
		t.Fatalf("unexpected derived attributes: %+v", *h)
	}
	if s.RunID == "" {
		t.Fatalf("expected a generated run id")
	}
}

func TestLoadRejectsDanglingPerson(t *testing.T) {
	pop := domain.Population{Persons: []domain.Person{{ID: 1, HouseholdID: 9, JobID: domain.Unemployed}}}
	err := NewSimulationContext().Load(pop)
	var nf domain.ErrNotFound
	if !errors.As(err, &nf) || nf.Entity != domain.EntityHousehold {
		t.Fatalf("expected household not found, got %v", err)
	}
}

func TestExportRoundTrip(t *testing.T) {
	b := testutil.NewPopulation().Zone(1)
	d := b.Dwelling(1, domain.DwellingMF234, 90000)
	b.Household(d, testutil.Adult(30, domain.GenderFemale))
	b.Job(1, "office")
	s := loadContext(t, b.Build())

	out := s.Export()
	again := loadContext(t, out).Export()
	if len(again.Households) != 1 || len(again.Persons) != 1 || len(again.Jobs) != 1 || len(again.Dwellings) != 1 {
		t.Fatalf("unexpected export sizes: %+v", again)
	}
	if again.Households[0].Type != out.Households[0].Type {
		t.Fatalf("household type changed across round trip")
	}
}

func TestRemovePersonDissolvesEmptyHousehold(t *testing.T) {
	b := testutil.NewPopulation().Zone(1)
	d := b.Dwelling(1, domain.DwellingSFA, 120000)
	hh, members := b.Household(d, testutil.Adult(80, domain.GenderMale))
	job := b.Job(1, "retail")
	b.Employ(members[0], job, 30000)
	s := loadContext(t, b.Build())

	if err := s.RemovePerson(members[0]); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := s.Households.Get(hh); ok {
		t.Fatalf("expected empty household to be dissolved")
	}
	dw, _ := s.Dwellings.Get(d)
	if !dw.Vacant() {
		t.Fatalf("expected dwelling vacated")
	}
	j, _ := s.Jobs.Get(job)
	if !j.Vacant() {
		t.Fatalf("expected job vacated")
	}
}

func TestDissolveHouseholdDropsLock(t *testing.T) {
	b := testutil.NewPopulation().Zone(1)
	d := b.Dwelling(1, domain.DwellingSFA, 120000)
	hh, members := b.Household(d, testutil.Adult(80, domain.GenderMale))
	s := loadContext(t, b.Build())

	s.HouseholdLocks.Lock(hh)()
	if err := s.RemovePerson(members[0]); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, ok := s.HouseholdLocks.locks[hh]; ok {
		t.Fatalf("expected lock of dissolved household %d to be dropped", hh)
	}
}

func TestVacancyLog(t *testing.T) {
	b := testutil.NewPopulation().Zone(1)
	home := b.Dwelling(1, domain.DwellingSFA, 120000)
	spare := b.Dwelling(1, domain.DwellingSFD, 150000)
	hh, _ := b.Household(home, testutil.Adult(40, domain.GenderFemale))
	s := loadContext(t, b.Build())
	s.SetYear(2020)

	mark := s.VacancyMark()
	h, _ := s.Households.Get(hh)
	if err := s.OccupyDwelling(h, spare); err != nil {
		t.Fatalf("occupy: %v", err)
	}
	got, next := s.VacatedSince(mark)
	if len(got) != 1 || got[0] != home {
		t.Fatalf("vacated = %v, want [%d]", got, home)
	}
	if more, _ := s.VacatedSince(next); len(more) != 0 {
		t.Fatalf("expected nothing after mark, got %v", more)
	}

	s.SetYear(2021)
	if got, next := s.VacatedSince(next); len(got) != 0 || next != 0 {
		t.Fatalf("expected log reset on new year, got %v at %d", got, next)
	}
}

func TestCheckIntegrity(t *testing.T) {
	b := testutil.NewPopulation().Zone(1)
	d := b.Dwelling(1, domain.DwellingSFD, 150000)
	_, members := b.Household(d, testutil.Adult(45, domain.GenderMale))
	job := b.Job(1, "retail")
	b.Employ(members[0], job, 40000)
	counter := diagnostics.New()
	s := NewSimulationContext(WithDiagnostics(counter))
	if err := s.Load(b.Build()); err != nil {
		t.Fatalf("load: %v", err)
	}

	res, err := s.CheckIntegrity(context.Background())
	if err != nil || len(res.Violations) != 0 {
		t.Fatalf("expected clean state, got %+v %v", res, err)
	}

	_ = s.Jobs.SetWorker(job, domain.VacantJob)
	res, err = s.CheckIntegrity(context.Background())
	if err != nil {
		t.Fatalf("warnings must not fail: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Rule != "employment_link" {
		t.Fatalf("expected one employment_link warning, got %+v", res.Violations)
	}
	if counter.Count(diagnostics.IssueIntegrityWarning) != 1 {
		t.Fatalf("expected warning recorded as diagnostic")
	}

	dw, _ := s.Dwellings.Get(d)
	dw.Price = -5
	_, err = s.CheckIntegrity(context.Background())
	var rv domain.RuleViolationError
	if !errors.As(err, &rv) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
}

func TestPurgeDanglingEmployment(t *testing.T) {
	b := testutil.NewPopulation().Zone(1)
	d := b.Dwelling(1, domain.DwellingSFD, 150000)
	hh, members := b.Household(d, testutil.Adult(45, domain.GenderMale), testutil.Adult(44, domain.GenderFemale))
	j1 := b.Job(1, "retail")
	j2 := b.Job(1, "retail")
	b.Employ(members[0], j1, 40000)
	b.Employ(members[1], j2, 30000)
	s := loadContext(t, b.Build())

	s.Jobs.Remove(j1)
	p1, _ := s.Persons.Get(members[1])
	p1.JobID = domain.Unemployed

	repaired := s.PurgeDanglingEmployment()
	if len(repaired) != 2 {
		t.Fatalf("expected two repairs, got %+v", repaired)
	}
	p0, _ := s.Persons.Get(members[0])
	if p0.Employed() {
		t.Fatalf("expected person with removed job to be unemployed")
	}
	if j, _ := s.Jobs.Get(j2); !j.Vacant() {
		t.Fatalf("expected orphaned job to be vacated")
	}
	h, _ := s.Households.Get(hh)
	if h.Income != 30000 {
		t.Fatalf("expected household income recomputed, got %d", h.Income)
	}
}
