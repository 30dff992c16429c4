package domain

// EventKind names a discrete demographic or market transition.
type EventKind string

// Event kinds proposed by the built-in event models.
const (
	EventBirthday    EventKind = "birthday"
	EventDeath       EventKind = "death"
	EventBirth       EventKind = "birth"
	EventFindJob     EventKind = "find_job"
	EventQuitJob     EventKind = "quit_job"
	EventLeaveParent EventKind = "leave_parental_household"
	EventMove        EventKind = "move"
	EventRenovation  EventKind = "renovation"
)

// MicroEvent is an immutable proposal for one agent in one simulated year.
// Subject is the identifier of the agent the kind refers to (person,
// household or dwelling).
type MicroEvent struct {
	Subject int
	Kind    EventKind
}

// NewPersonEvent builds an event whose subject is a person.
func NewPersonEvent(id PersonID, kind EventKind) MicroEvent {
	return MicroEvent{Subject: int(id), Kind: kind}
}

// NewHouseholdEvent builds an event whose subject is a household.
func NewHouseholdEvent(id HouseholdID, kind EventKind) MicroEvent {
	return MicroEvent{Subject: int(id), Kind: kind}
}

// NewDwellingEvent builds an event whose subject is a dwelling.
func NewDwellingEvent(id DwellingID, kind EventKind) MicroEvent {
	return MicroEvent{Subject: int(id), Kind: kind}
}
