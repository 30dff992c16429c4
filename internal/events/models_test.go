package events

import (
	"context"
	"testing"

	"landsim/internal/core"
	"landsim/internal/diagnostics"
	"landsim/internal/guard"
	"landsim/pkg/domain"
	"landsim/testutil"
)

type zoneDistance struct{}

func (zoneDistance) TravelTime(o, d domain.ZoneID) float64 {
	diff := float64(o - d)
	if diff < 0 {
		diff = -diff
	}
	return 600 * diff
}

func (zoneDistance) Accessibility(domain.ZoneID) float64 { return 1 }

func newSim(t *testing.T, pop domain.Population, opts ...core.Option) *core.SimulationContext {
	t.Helper()
	sim := core.NewSimulationContext(opts...)
	if err := sim.Load(pop); err != nil {
		t.Fatalf("load: %v", err)
	}
	return sim
}

func TestLeaveParentSplitsHousehold(t *testing.T) {
	b := testutil.NewPopulation().Zone(1).Zone(2)
	home := b.Dwelling(1, domain.DwellingSFD, 250000)
	spare := b.Dwelling(2, domain.DwellingMF5, 60000)
	hh, members := b.Household(home,
		testutil.PersonSpec{Age: 50, Gender: domain.GenderFemale, Role: domain.RoleSingle, Income: 50000},
		testutil.PersonSpec{Age: 21, Gender: domain.GenderMale, Role: domain.RoleChild, Income: 12000},
	)
	sim := newSim(t, b.Build())
	m := NewLeaveParentModel(sim, guard.New(sim), DefaultStrategy{})
	ctx := context.Background()
	if err := m.PrepareYear(ctx, 2020); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	applied, err := m.HandleEvent(ctx, domain.NewPersonEvent(members[1], domain.EventLeaveParent))
	if err != nil || !applied {
		t.Fatalf("expected split to apply, got %v %v", applied, err)
	}
	if sim.Households.Len() != 2 {
		t.Fatalf("expected two households, got %d", sim.Households.Len())
	}
	parent, _ := sim.Households.Get(hh)
	if len(parent.Members) != 1 || parent.Members[0] != members[0] || parent.DwellingID != home {
		t.Fatalf("unexpected parent household %+v", *parent)
	}
	if parent.Income != 50000 || parent.Size != 1 {
		t.Fatalf("parent aggregates not recomputed: %+v", *parent)
	}
	child, _ := sim.Persons.Get(members[1])
	if child.HouseholdID == hh || child.Role != domain.RoleSingle {
		t.Fatalf("child not moved: %+v", *child)
	}
	nh, _ := sim.Households.Get(child.HouseholdID)
	if len(nh.Members) != 1 || nh.DwellingID != spare {
		t.Fatalf("unexpected new household %+v", *nh)
	}
	if d, _ := sim.Dwellings.Get(spare); d.ResidentID != nh.ID {
		t.Fatalf("spare dwelling not occupied by new household")
	}
}

func TestLeaveParentWithoutVacancyIsNoop(t *testing.T) {
	b := testutil.NewPopulation().Zone(1)
	home := b.Dwelling(1, domain.DwellingSFD, 250000)
	hh, members := b.Household(home,
		testutil.PersonSpec{Age: 50, Gender: domain.GenderFemale, Role: domain.RoleSingle, Income: 50000},
		testutil.PersonSpec{Age: 21, Gender: domain.GenderMale, Role: domain.RoleChild, Income: 12000},
	)
	counter := diagnostics.New()
	sim := newSim(t, b.Build(), core.WithDiagnostics(counter))
	m := NewLeaveParentModel(sim, guard.New(sim), DefaultStrategy{})
	ctx := context.Background()
	if err := m.PrepareYear(ctx, 2020); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	before, _ := sim.Households.Get(hh)
	beforeIncome := before.Income

	applied, err := m.HandleEvent(ctx, domain.NewPersonEvent(members[1], domain.EventLeaveParent))
	if err != nil || applied {
		t.Fatalf("expected no-op, got %v %v", applied, err)
	}
	if got := counter.Count(diagnostics.IssueFailedHouseholdSplit); got != 1 {
		t.Fatalf("expected failed split counted once, got %d", got)
	}
	if sim.Households.Len() != 1 {
		t.Fatalf("expected temporary household removed")
	}
	parent, _ := sim.Households.Get(hh)
	if len(parent.Members) != 2 || parent.Income != beforeIncome {
		t.Fatalf("parent household not restored: %+v", *parent)
	}
	child, _ := sim.Persons.Get(members[1])
	if child.HouseholdID != hh || child.Role != domain.RoleChild {
		t.Fatalf("child not restored: %+v", *child)
	}
}

type scoringRecorder struct {
	DefaultStrategy
	scored []domain.DwellingID
}

func (r *scoringRecorder) DwellingUtility(h domain.Household, d domain.Dwelling, accessibility float64) float64 {
	r.scored = append(r.scored, d.ID)
	return r.DefaultStrategy.DwellingUtility(h, d, accessibility)
}

func TestHousingSearchScoresOnlyVacantDwellings(t *testing.T) {
	b := testutil.NewPopulation().Zone(1)
	home := b.Dwelling(1, domain.DwellingSFD, 250000)
	neighbour := b.Dwelling(1, domain.DwellingSFA, 180000)
	spareA := b.Dwelling(1, domain.DwellingMF5, 60000)
	spareB := b.Dwelling(1, domain.DwellingMF234, 90000)
	_, members := b.Household(home,
		testutil.PersonSpec{Age: 50, Gender: domain.GenderFemale, Role: domain.RoleSingle, Income: 50000},
		testutil.PersonSpec{Age: 21, Gender: domain.GenderMale, Role: domain.RoleChild, Income: 12000},
	)
	other, _ := b.Household(neighbour, testutil.Adult(60, domain.GenderMale))
	sim := newSim(t, b.Build())
	recorder := &scoringRecorder{}
	m := NewLeaveParentModel(sim, guard.New(sim), recorder)
	ctx := context.Background()
	if err := m.PrepareYear(ctx, 2020); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	// The neighbour moves after the index was built: spareB is taken and
	// the neighbour's old dwelling becomes vacant.
	h, _ := sim.Households.Get(other)
	if err := sim.OccupyDwelling(h, spareB); err != nil {
		t.Fatalf("occupy: %v", err)
	}

	applied, err := m.HandleEvent(ctx, domain.NewPersonEvent(members[1], domain.EventLeaveParent))
	if err != nil || !applied {
		t.Fatalf("expected split to apply, got %v %v", applied, err)
	}
	want := []domain.DwellingID{neighbour, spareA}
	if len(recorder.scored) != len(want) {
		t.Fatalf("scored %v, want %v", recorder.scored, want)
	}
	for i, id := range want {
		if recorder.scored[i] != id {
			t.Fatalf("scored %v, want %v", recorder.scored, want)
		}
	}
}

func TestEmploymentPrefersNearestVacancy(t *testing.T) {
	b := testutil.NewPopulation().Zone(1).Zone(2).Zone(3)
	home := b.Dwelling(2, domain.DwellingSFA, 150000)
	hh, members := b.Household(home, testutil.Adult(30, domain.GenderFemale))
	far := b.Job(1, "office")
	near := b.Job(2, "office")
	_ = far
	sim := newSim(t, b.Build(), core.WithTravelTimes(zoneDistance{}))
	m := NewEmploymentModel(sim, guard.New(sim), DefaultStrategy{}, nil)
	ctx := context.Background()
	if err := m.PrepareYear(ctx, 2020); err != nil {
		t.Fatalf("prepare: %v", err)
	}

	applied, err := m.HandleEvent(ctx, domain.NewPersonEvent(members[0], domain.EventFindJob))
	if err != nil || !applied {
		t.Fatalf("expected job found, got %v %v", applied, err)
	}
	p, _ := sim.Persons.Get(members[0])
	if p.JobID != near {
		t.Fatalf("expected nearest job %d, got %d", near, p.JobID)
	}
	want := DefaultStrategy{}.StartingIncome(*p, domain.Job{})
	h, _ := sim.Households.Get(hh)
	if p.Income != want || h.Income != want {
		t.Fatalf("income not propagated: person %d household %d want %d", p.Income, h.Income, want)
	}

	applied, err = m.HandleEvent(ctx, domain.NewPersonEvent(members[0], domain.EventQuitJob))
	if err != nil || !applied {
		t.Fatalf("expected quit, got %v %v", applied, err)
	}
	if j, _ := sim.Jobs.Get(near); !j.Vacant() {
		t.Fatalf("expected job vacated on quit")
	}
	if h.Income != 0 {
		t.Fatalf("expected household income reset, got %d", h.Income)
	}
}

func TestEmploymentNoVacancyCountsIssue(t *testing.T) {
	b := testutil.NewPopulation().Zone(1)
	home := b.Dwelling(1, domain.DwellingSFA, 150000)
	_, members := b.Household(home, testutil.Adult(30, domain.GenderFemale))
	counter := diagnostics.New()
	sim := newSim(t, b.Build(), core.WithDiagnostics(counter))
	m := NewEmploymentModel(sim, guard.New(sim), DefaultStrategy{}, nil)
	ctx := context.Background()
	_ = m.PrepareYear(ctx, 2020)
	applied, err := m.HandleEvent(ctx, domain.NewPersonEvent(members[0], domain.EventFindJob))
	if err != nil || applied {
		t.Fatalf("expected no-op, got %v %v", applied, err)
	}
	if counter.Count(diagnostics.IssueNoVacantJob) != 1 {
		t.Fatalf("expected no_vacant_job issue")
	}
}

func TestDeathWidowsSpouseAndVacatesJob(t *testing.T) {
	b := testutil.NewPopulation().Zone(1)
	home := b.Dwelling(1, domain.DwellingSFD, 150000)
	hh, members := b.Household(home,
		testutil.PersonSpec{Age: 80, Gender: domain.GenderMale, Role: domain.RoleMarried},
		testutil.PersonSpec{Age: 78, Gender: domain.GenderFemale, Role: domain.RoleMarried},
	)
	job := b.Job(1, "retail")
	b.Employ(members[0], job, 20000)
	sim := newSim(t, b.Build())
	m := NewDeathModel(sim, guard.New(sim), DefaultStrategy{})

	applied, err := m.HandleEvent(context.Background(), domain.NewPersonEvent(members[0], domain.EventDeath))
	if err != nil || !applied {
		t.Fatalf("expected death applied, got %v %v", applied, err)
	}
	if _, ok := sim.Persons.Get(members[0]); ok {
		t.Fatalf("expected person removed")
	}
	spouse, _ := sim.Persons.Get(members[1])
	if spouse.Role != domain.RoleSingle {
		t.Fatalf("expected spouse widowed, got %s", spouse.Role)
	}
	if j, _ := sim.Jobs.Get(job); !j.Vacant() {
		t.Fatalf("expected job vacated")
	}
	h, _ := sim.Households.Get(hh)
	if h.Size != 1 {
		t.Fatalf("expected household size 1, got %d", h.Size)
	}

	applied, err = m.HandleEvent(context.Background(), domain.NewPersonEvent(members[0], domain.EventDeath))
	if err != nil || applied {
		t.Fatalf("expected stale event no-op, got %v %v", applied, err)
	}
}

func TestBirthAddsChild(t *testing.T) {
	b := testutil.NewPopulation().Zone(1)
	home := b.Dwelling(1, domain.DwellingSFD, 150000)
	hh, members := b.Household(home, testutil.Adult(29, domain.GenderFemale))
	sim := newSim(t, b.Build())
	m := NewBirthModel(sim, guard.New(sim), DefaultStrategy{})
	m.sex = map[domain.PersonID]float64{members[0]: 0.9}

	applied, err := m.HandleEvent(context.Background(), domain.NewPersonEvent(members[0], domain.EventBirth))
	if err != nil || !applied {
		t.Fatalf("expected birth applied, got %v %v", applied, err)
	}
	h, _ := sim.Households.Get(hh)
	if h.Size != 2 || len(h.Members) != 2 {
		t.Fatalf("expected household of two, got %+v", *h)
	}
	child, _ := sim.Persons.Get(h.Members[1])
	if child.Age != 0 || child.Role != domain.RoleChild || child.Gender != domain.GenderFemale {
		t.Fatalf("unexpected newborn %+v", *child)
	}
}

func TestRenovationStaysWithinBounds(t *testing.T) {
	b := testutil.NewPopulation().Zone(1)
	d := b.Dwelling(1, domain.DwellingSFD, 150000)
	sim := newSim(t, b.Build())
	m := NewRenovationModel(sim, DefaultStrategy{})
	dw, _ := sim.Dwellings.Get(d)
	dw.Quality = MaxQuality
	m.upgrade = map[domain.DwellingID]bool{d: true}
	if applied, _ := m.HandleEvent(context.Background(), domain.NewDwellingEvent(d, domain.EventRenovation)); applied {
		t.Fatalf("expected no upgrade beyond max quality")
	}
	m.upgrade[d] = false
	if applied, _ := m.HandleEvent(context.Background(), domain.NewDwellingEvent(d, domain.EventRenovation)); !applied || dw.Quality != MaxQuality-1 {
		t.Fatalf("expected downgrade, quality %d", dw.Quality)
	}
}
