package pricing

import (
	"fmt"
	"sort"

	"landsim/internal/core"
	"landsim/pkg/domain"
)

// VacancyKey identifies a dwelling submarket.
type VacancyKey struct {
	Zone domain.ZoneID
	Type domain.DwellingType
}

// Summary reports one pricing pass.
type Summary struct {
	Year         int
	Updated      int
	Skipped      int
	AveragePrice map[domain.DwellingType]float64
}

// Engine applies the curves to every non-restricted dwelling.
type Engine struct {
	sim    *core.SimulationContext
	curves map[domain.DwellingType]Curve
	last   Summary
}

// NewEngine constructs a pricing engine. Missing types fall back to the
// default curves.
func NewEngine(sim *core.SimulationContext, curves map[domain.DwellingType]Curve) (*Engine, error) {
	merged := DefaultCurves()
	for typ, c := range curves {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("pricing curve %s: %w", typ, err)
		}
		merged[typ] = c
	}
	return &Engine{sim: sim, curves: merged}, nil
}

// VacancyRates returns the vacant share of dwellings per zone and type.
func (e *Engine) VacancyRates() map[VacancyKey]float64 {
	total := make(map[VacancyKey]int)
	vacant := make(map[VacancyKey]int)
	for _, id := range e.sim.Dwellings.IDs() {
		d, _ := e.sim.Dwellings.Get(id)
		key := VacancyKey{Zone: d.Zone, Type: d.Type}
		total[key]++
		if d.Vacant() {
			vacant[key]++
		}
	}
	rates := make(map[VacancyKey]float64, len(total))
	for key, n := range total {
		rates[key] = float64(vacant[key]) / float64(n)
	}
	return rates
}

// VacancyRate returns the vacancy rate of one zone and dwelling type.
func (e *Engine) VacancyRate(zone domain.ZoneID, typ domain.DwellingType) (float64, bool) {
	rate, ok := e.VacancyRates()[VacancyKey{Zone: zone, Type: typ}]
	return rate, ok
}

// UpdatePrices recomputes prices for the year. Vacancy rates are taken from
// the state before any price changes.
func (e *Engine) UpdatePrices(year int) Summary {
	rates := e.VacancyRates()
	sum := make(map[domain.DwellingType]float64)
	count := make(map[domain.DwellingType]int)
	s := Summary{Year: year, AveragePrice: make(map[domain.DwellingType]float64)}
	for _, id := range e.sim.Dwellings.IDs() {
		d, _ := e.sim.Dwellings.Get(id)
		curve, ok := e.curves[d.Type]
		if d.Restricted() || !ok {
			s.Skipped++
		} else {
			rate := curve.ChangeRate(rates[VacancyKey{Zone: d.Zone, Type: d.Type}])
			d.Price = int(float64(d.Price)*rate + 0.5)
			s.Updated++
		}
		sum[d.Type] += float64(d.Price)
		count[d.Type]++
	}
	for typ, n := range count {
		s.AveragePrice[typ] = sum[typ] / float64(n)
	}
	e.last = s
	e.sim.Logger.Info("prices updated", "year", year, "updated", s.Updated, "skipped", s.Skipped, "averages", formatAverages(s.AveragePrice))
	return s
}

// Last returns the most recent summary.
func (e *Engine) Last() Summary { return e.last }

func formatAverages(avg map[domain.DwellingType]float64) string {
	types := make([]string, 0, len(avg))
	for typ := range avg {
		types = append(types, string(typ))
	}
	sort.Strings(types)
	out := ""
	for i, typ := range types {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%.0f", typ, avg[domain.DwellingType(typ)])
	}
	return out
}
