package events

import (
	"math"

	"landsim/pkg/domain"
)

// ProbabilityStrategy holds the behavioural formulas of a deployment. Every
// method is a pure function of its arguments; the engine itself stays
// agnostic of the rule content.
type ProbabilityStrategy interface {
	DeathProbability(p domain.Person) float64
	BirthProbability(p domain.Person) float64
	LeaveParentsProbability(p domain.Person) float64
	MoveProbability(h domain.Household, current domain.Dwelling) float64
	// RenovationProbabilities returns the chance of a quality upgrade and
	// of a deterioration. Their sum must not exceed one.
	RenovationProbabilities(d domain.Dwelling) (up, down float64)
	StartingIncome(p domain.Person, job domain.Job) int
	// DwellingUtility scores a dwelling for a household; higher is better.
	DwellingUtility(h domain.Household, d domain.Dwelling, accessibility float64) float64
}

// DefaultStrategy is a generic rule set usable when no regional rules are
// configured.
type DefaultStrategy struct{}

var _ ProbabilityStrategy = DefaultStrategy{}

// Gompertz mortality parameters.
const (
	mortalityBase   = 0.00008
	mortalityGrowth = 0.088
	femaleMortality = 0.8
)

func (DefaultStrategy) DeathProbability(p domain.Person) float64 {
	q := mortalityBase * math.Exp(mortalityGrowth*float64(p.Age))
	if p.Gender == domain.GenderFemale {
		q *= femaleMortality
	}
	return math.Min(q, 1)
}

func (DefaultStrategy) BirthProbability(p domain.Person) float64 {
	if p.Gender != domain.GenderFemale || p.Age < 15 || p.Age > 49 {
		return 0
	}
	z := (float64(p.Age) - 30) / 7
	return 0.11 * math.Exp(-z*z)
}

func (DefaultStrategy) LeaveParentsProbability(p domain.Person) float64 {
	if p.Role != domain.RoleChild || p.Age < 18 {
		return 0
	}
	return math.Min(0.05+0.02*float64(p.Age-18), 0.4)
}

// imputedRentShare converts a dwelling price into an annual housing cost.
const imputedRentShare = 0.05

func (DefaultStrategy) MoveProbability(h domain.Household, current domain.Dwelling) float64 {
	p := 0.04
	if h.Income > 0 {
		burden := float64(current.Price) * imputedRentShare / float64(h.Income)
		if burden > 0.4 {
			p += 0.12
		}
	}
	if current.Bedrooms < h.Size-1 {
		p += 0.1
	}
	return p
}

func (DefaultStrategy) RenovationProbabilities(d domain.Dwelling) (float64, float64) {
	var up, down float64
	if d.Quality < 5 {
		up = 0.03
	}
	if d.Quality > 1 {
		down = 0.02
	}
	return up, down
}

func (DefaultStrategy) StartingIncome(p domain.Person, _ domain.Job) int {
	experience := p.Age - 18
	if experience < 0 {
		experience = 0
	}
	if experience > 30 {
		experience = 30
	}
	return 24000 + 900*experience
}

func (DefaultStrategy) DwellingUtility(h domain.Household, d domain.Dwelling, accessibility float64) float64 {
	u := 0.5*accessibility + 0.2*float64(d.Quality)
	if h.Income > 0 {
		burden := float64(d.Price) * imputedRentShare / float64(h.Income)
		u -= 2 * math.Max(0, burden-0.3)
	} else {
		u -= float64(d.Price) / 100000
	}
	if d.Bedrooms < h.Size-1 {
		u -= 0.5
	}
	return u
}
