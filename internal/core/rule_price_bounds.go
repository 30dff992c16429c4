package core

import (
	"context"
	"fmt"

	"landsim/pkg/domain"
)

// NewPriceBoundsRule blocks negative dwelling prices.
func NewPriceBoundsRule() domain.Rule {
	return priceBoundsRule{}
}

type priceBoundsRule struct{}

func (priceBoundsRule) Name() string { return "price_bounds" }

func (r priceBoundsRule) Evaluate(_ context.Context, view domain.RuleView) (domain.Result, error) {
	res := domain.Result{}
	for _, d := range view.ListDwellings() {
		if d.Price >= 0 {
			continue
		}
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     r.Name(),
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("dwelling %d has negative price %d", d.ID, d.Price),
			Entity:   domain.EntityDwelling,
			EntityID: int(d.ID),
		})
	}
	return res, nil
}
