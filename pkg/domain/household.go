package domain

import "fmt"

// IncomeCategory buckets household income.
type IncomeCategory int

const (
	IncomeLow IncomeCategory = iota + 1
	IncomeMedium
	IncomeHigh
	IncomeVeryHigh
)

// Annual household income thresholds separating the income categories.
const (
	incomeMediumFloor   = 20000
	incomeHighFloor     = 40000
	incomeVeryHighFloor = 60000
)

// CategorizeIncome maps an annual household income to its category.
func CategorizeIncome(income int) IncomeCategory {
	switch {
	case income >= incomeVeryHighFloor:
		return IncomeVeryHigh
	case income >= incomeHighFloor:
		return IncomeHigh
	case income >= incomeMediumFloor:
		return IncomeMedium
	default:
		return IncomeLow
	}
}

// HouseholdType combines a capped size class with an income category, e.g. "size2_inc3".
type HouseholdType string

// NewHouseholdType builds the type label; sizes above four share one class.
func NewHouseholdType(size int, income IncomeCategory) HouseholdType {
	if size > 4 {
		size = 4
	}
	return HouseholdType(fmt.Sprintf("size%d_inc%d", size, int(income)))
}

// Derive recomputes Income, Size and Type from the supplied member records.
// Members not listed in h.Members are ignored.
func (h *Household) Derive(members map[PersonID]Person) {
	income := 0
	size := 0
	for _, id := range h.Members {
		p, ok := members[id]
		if !ok {
			continue
		}
		income += p.Income
		size++
	}
	h.Income = income
	h.Size = size
	h.Type = NewHouseholdType(size, CategorizeIncome(income))
}
