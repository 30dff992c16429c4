package core

import (
	"context"
	"fmt"

	"landsim/pkg/domain"
)

// NewDwellingOccupancyRule checks that each dwelling houses at most one
// household and that households and dwellings agree on the link.
func NewDwellingOccupancyRule() domain.Rule {
	return dwellingOccupancyRule{}
}

type dwellingOccupancyRule struct{}

func (dwellingOccupancyRule) Name() string { return "dwelling_occupancy" }

func (r dwellingOccupancyRule) Evaluate(_ context.Context, view domain.RuleView) (domain.Result, error) {
	occupants := make(map[domain.DwellingID][]domain.HouseholdID)
	res := domain.Result{}
	for _, h := range view.ListHouseholds() {
		if h.DwellingID == domain.NoDwelling {
			continue
		}
		occupants[h.DwellingID] = append(occupants[h.DwellingID], h.ID)
		d, ok := view.FindDwelling(h.DwellingID)
		if !ok || d.ResidentID != h.ID {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("household %d references dwelling %d which does not house it", h.ID, h.DwellingID),
				Entity:   domain.EntityHousehold,
				EntityID: int(h.ID),
			})
		}
	}
	for _, d := range view.ListDwellings() {
		if n := len(occupants[d.ID]); n > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("dwelling %d claimed by %d households", d.ID, n),
				Entity:   domain.EntityDwelling,
				EntityID: int(d.ID),
			})
		}
		if d.Vacant() {
			continue
		}
		if _, ok := view.FindHousehold(d.ResidentID); !ok {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("dwelling %d references missing household %d", d.ID, d.ResidentID),
				Entity:   domain.EntityDwelling,
				EntityID: int(d.ID),
			})
		}
	}
	return res, nil
}
