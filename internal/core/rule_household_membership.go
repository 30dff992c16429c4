package core

import (
	"context"
	"fmt"

	"landsim/pkg/domain"
)

// NewHouseholdMembershipRule checks that members point back at their
// household and that no household is empty.
func NewHouseholdMembershipRule() domain.Rule {
	return householdMembershipRule{}
}

type householdMembershipRule struct{}

func (householdMembershipRule) Name() string { return "household_membership" }

func (r householdMembershipRule) Evaluate(_ context.Context, view domain.RuleView) (domain.Result, error) {
	res := domain.Result{}
	for _, h := range view.ListHouseholds() {
		if len(h.Members) == 0 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("household %d has no members", h.ID),
				Entity:   domain.EntityHousehold,
				EntityID: int(h.ID),
			})
			continue
		}
		for _, id := range h.Members {
			p, ok := view.FindPerson(id)
			switch {
			case !ok:
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityWarn,
					Message:  fmt.Sprintf("household %d lists missing person %d", h.ID, id),
					Entity:   domain.EntityHousehold,
					EntityID: int(h.ID),
				})
			case p.HouseholdID != h.ID:
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     r.Name(),
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("person %d listed in household %d but references %d", id, h.ID, p.HouseholdID),
					Entity:   domain.EntityPerson,
					EntityID: int(id),
				})
			}
		}
	}
	for _, p := range view.ListPersons() {
		h, ok := view.FindHousehold(p.HouseholdID)
		if !ok || !h.HasMember(p.ID) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("person %d not a member of household %d", p.ID, p.HouseholdID),
				Entity:   domain.EntityPerson,
				EntityID: int(p.ID),
			})
		}
	}
	return res, nil
}
