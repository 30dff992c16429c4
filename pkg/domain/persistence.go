package domain

import (
	"context"
	"encoding/json"
	"fmt"
)

// Population is the flat, one-record-per-entity form of the registries used
// by readers, writers and checkpoints.
type Population struct {
	Zones      []Zone      `json:"zones"`
	Households []Household `json:"households"`
	Persons    []Person    `json:"persons"`
	Dwellings  []Dwelling  `json:"dwellings"`
	Jobs       []Job       `json:"jobs"`
}

// PopulationReader loads the initial population at run start.
type PopulationReader interface {
	ReadPopulation(ctx context.Context) (Population, error)
}

// PopulationWriter persists a population snapshot for a simulated year.
type PopulationWriter interface {
	WritePopulation(ctx context.Context, year int, pop Population) error
}

// TravelTimes answers zone-to-zone travel time (seconds) and zonal
// accessibility queries. Implementations may be a static skim or an external
// transport simulator; lookups never block.
type TravelTimes interface {
	TravelTime(origin, destination ZoneID) float64
	Accessibility(zone ZoneID) float64
}

// YearlyRefresher is implemented by collaborators whose data changes between
// simulated years, such as skims fetched from a transport simulator.
type YearlyRefresher interface {
	RefreshForYear(ctx context.Context, year int) error
}

// Forecast supplies target job counts per (zone, job type) for a year. Keys
// absent from the returned map mean no change is requested.
type Forecast interface {
	Targets(ctx context.Context, year int) (map[JobKey]int, error)
}

// SnapshotBuckets lists the buckets a population snapshot is stored in, in
// write order.
func SnapshotBuckets() []EntityType {
	return []EntityType{EntityZone, EntityHousehold, EntityPerson, EntityDwelling, EntityJob}
}

// EncodeBucket returns the JSON payload of one bucket. Empty buckets encode
// as an empty array, never null.
func (p Population) EncodeBucket(bucket EntityType) ([]byte, error) {
	var v any
	switch bucket {
	case EntityZone:
		v = nonNil(p.Zones)
	case EntityHousehold:
		v = nonNil(p.Households)
	case EntityPerson:
		v = nonNil(p.Persons)
	case EntityDwelling:
		v = nonNil(p.Dwellings)
	case EntityJob:
		v = nonNil(p.Jobs)
	default:
		return nil, fmt.Errorf("unknown snapshot bucket %q", bucket)
	}
	return json.Marshal(v)
}

// DecodeBucket fills one bucket of p from its JSON payload. Unknown buckets
// are ignored so older readers accept newer snapshots.
func (p *Population) DecodeBucket(bucket EntityType, payload []byte) error {
	var target any
	switch bucket {
	case EntityZone:
		target = &p.Zones
	case EntityHousehold:
		target = &p.Households
	case EntityPerson:
		target = &p.Persons
	case EntityDwelling:
		target = &p.Dwellings
	case EntityJob:
		target = &p.Jobs
	default:
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("decode %s: %w", bucket, err)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
