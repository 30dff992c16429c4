// Package skim provides the travel-time collaborators the event models
// query: a static zone-to-zone matrix, a loader filling it from a SQLite
// skim table, and an HTTP client refreshing it from a transport simulator
// once per simulated year.
package skim

import (
	"math"
	"sync"

	"landsim/pkg/domain"
)

// accessDecay is the travel time (seconds) at which a destination counts
// for 1/e in a derived accessibility score.
const accessDecay = 1800.0

var _ domain.TravelTimes = (*Matrix)(nil)

type pair struct{ from, to domain.ZoneID }

// Matrix is a zone-to-zone travel time table. Lookups never block on I/O;
// Replace swaps the whole table under a write lock.
type Matrix struct {
	mu      sync.RWMutex
	times   map[pair]float64
	access  map[domain.ZoneID]float64
	derived map[domain.ZoneID]float64
	def     float64
}

// Entry is one origin-destination travel time.
type Entry struct {
	Origin      domain.ZoneID `json:"origin" db:"origin"`
	Destination domain.ZoneID `json:"destination" db:"destination"`
	Seconds     float64       `json:"seconds" db:"seconds"`
}

// Score is a precomputed accessibility value for one zone.
type Score struct {
	Zone  domain.ZoneID `json:"zone" db:"zone"`
	Score float64       `json:"score" db:"score"`
}

// NewMatrix returns an empty matrix answering defaultSeconds for unknown
// pairs of distinct zones.
func NewMatrix(defaultSeconds float64) *Matrix {
	return &Matrix{
		times:   make(map[pair]float64),
		access:  make(map[domain.ZoneID]float64),
		derived: make(map[domain.ZoneID]float64),
		def:     defaultSeconds,
	}
}

// Replace installs a new set of entries and scores.
func (m *Matrix) Replace(entries []Entry, scores []Score) {
	times := make(map[pair]float64, len(entries))
	for _, e := range entries {
		times[pair{e.Origin, e.Destination}] = e.Seconds
	}
	access := make(map[domain.ZoneID]float64, len(scores))
	for _, s := range scores {
		access[s.Zone] = s.Score
	}
	derived := deriveAccessibility(times)
	m.mu.Lock()
	m.times, m.access, m.derived = times, access, derived
	m.mu.Unlock()
}

// Len returns the number of stored pairs.
func (m *Matrix) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.times)
}

// TravelTime returns the stored time, zero within a zone, or the default.
func (m *Matrix) TravelTime(origin, destination domain.ZoneID) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if t, ok := m.times[pair{origin, destination}]; ok {
		return t
	}
	if origin == destination {
		return 0
	}
	return m.def
}

// Accessibility returns the precomputed score when present, otherwise the
// mean decayed reachability of all destinations known from zone, otherwise 1.
func (m *Matrix) Accessibility(zone domain.ZoneID) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.access[zone]; ok {
		return s
	}
	if s, ok := m.derived[zone]; ok {
		return s
	}
	return 1
}

func deriveAccessibility(times map[pair]float64) map[domain.ZoneID]float64 {
	sum := make(map[domain.ZoneID]float64)
	n := make(map[domain.ZoneID]int)
	for p, t := range times {
		sum[p.from] += math.Exp(-t / accessDecay)
		n[p.from]++
	}
	out := make(map[domain.ZoneID]float64, len(sum))
	for z, s := range sum {
		out[z] = s / float64(n[z])
	}
	return out
}
