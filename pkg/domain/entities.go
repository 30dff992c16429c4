// Package domain defines the simulated agents, identifier types, event
// proposals, and rule evaluation primitives shared by the landsim engine.
package domain

import "fmt"

// EntityType identifies the kind of agent a record, event, or violation refers to.
type EntityType string

// Supported entity type identifiers used in violations and snapshot buckets.
const (
	// EntityHousehold identifies a household record.
	EntityHousehold EntityType = "household"
	// EntityPerson identifies a person record.
	EntityPerson EntityType = "person"
	// EntityDwelling identifies a dwelling record.
	EntityDwelling EntityType = "dwelling"
	// EntityJob identifies a job record.
	EntityJob EntityType = "job"
	// EntityZone identifies a zone record.
	EntityZone EntityType = "zone"
)

type (
	// HouseholdID identifies a household.
	HouseholdID int
	// PersonID identifies a person.
	PersonID int
	// DwellingID identifies a dwelling.
	DwellingID int
	// JobID identifies a job.
	JobID int
	// ZoneID identifies a zone.
	ZoneID int
)

// Sentinel identifiers. All real identifiers are non-negative.
const (
	// NoHousehold marks a vacant dwelling or a person without a household.
	NoHousehold HouseholdID = -1
	// NoDwelling marks a household without a dwelling.
	NoDwelling DwellingID = -1
	// Unemployed marks a person without a job.
	Unemployed JobID = -1
	// VacantJob marks a job without a worker.
	VacantJob PersonID = -1
)

// Gender of a person.
type Gender int

const (
	GenderMale   Gender = 1
	GenderFemale Gender = 2
)

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	default:
		return fmt.Sprintf("gender(%d)", int(g))
	}
}

// Role is the position of a person within their household.
type Role string

const (
	RoleSingle  Role = "single"
	RoleMarried Role = "married"
	RoleChild   Role = "child"
)

// DwellingType enumerates the structural dwelling classes priced separately.
type DwellingType string

const (
	DwellingSFD    DwellingType = "SFD"     // single-family detached
	DwellingSFA    DwellingType = "SFA"     // single-family attached
	DwellingMF234  DwellingType = "MF234"   // multi-family, 2-4 units
	DwellingMF5    DwellingType = "MF5plus" // multi-family, 5+ units
	DwellingMobile DwellingType = "MH"      // mobile home
)

// DwellingTypes lists all dwelling types in reporting order.
func DwellingTypes() []DwellingType {
	return []DwellingType{DwellingSFD, DwellingSFA, DwellingMF234, DwellingMF5, DwellingMobile}
}

// Zone is a static geographic aggregation unit. The engine never mutates zones.
type Zone struct {
	ID     ZoneID `json:"id"`
	Region int    `json:"region"`
	Name   string `json:"name,omitempty"`
}

// Person is an individual simulated agent.
type Person struct {
	ID          PersonID    `json:"id"`
	HouseholdID HouseholdID `json:"household_id"`
	Age         int         `json:"age"`
	Gender      Gender      `json:"gender"`
	Role        Role        `json:"role"`
	JobID       JobID       `json:"job_id"`
	Income      int         `json:"income"`
}

// Employed reports whether the person currently holds a job.
func (p Person) Employed() bool { return p.JobID != Unemployed }

// Household groups persons sharing one dwelling. Income, Size and Type are
// derived from the members and must be refreshed with Derive after any
// membership or income change.
type Household struct {
	ID         HouseholdID   `json:"id"`
	Members    []PersonID    `json:"members"`
	DwellingID DwellingID    `json:"dwelling_id"`
	Income     int           `json:"income"`
	Size       int           `json:"size"`
	Type       HouseholdType `json:"type"`
}

// HasMember reports whether the person is listed as a member.
func (h Household) HasMember(id PersonID) bool {
	for _, m := range h.Members {
		if m == id {
			return true
		}
	}
	return false
}

// Dwelling is a housing unit.
type Dwelling struct {
	ID         DwellingID   `json:"id"`
	Zone       ZoneID       `json:"zone"`
	Type       DwellingType `json:"type"`
	ResidentID HouseholdID  `json:"resident_id"`
	Price      int          `json:"price"`
	YearBuilt  int          `json:"year_built"`
	Quality    int          `json:"quality"`
	Bedrooms   int          `json:"bedrooms"`
	// Restriction is the affordability restriction share; zero means market rate.
	Restriction float64 `json:"restriction,omitempty"`
}

// Vacant reports whether nobody lives in the dwelling.
func (d Dwelling) Vacant() bool { return d.ResidentID == NoHousehold }

// Restricted reports whether the dwelling is excluded from price adjustment.
func (d Dwelling) Restricted() bool { return d.Restriction > 0 }

// Job is a workplace slot. Jobs are owned by the job registry; persons hold a
// back-reference only.
type Job struct {
	ID       JobID    `json:"id"`
	Zone     ZoneID   `json:"zone"`
	Type     string   `json:"type"`
	WorkerID PersonID `json:"worker_id"`
}

// Vacant reports whether the job has no worker.
func (j Job) Vacant() bool { return j.WorkerID == VacantJob }

// JobKey groups jobs by location and type.
type JobKey struct {
	Zone ZoneID `json:"zone"`
	Type string `json:"type"`
}

func (k JobKey) String() string { return fmt.Sprintf("%d/%s", k.Zone, k.Type) }
