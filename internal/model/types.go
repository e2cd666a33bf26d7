// Package model defines shared data structures.
package model

import "time"

// Difficulty is the tier a boss encounter was fought on.
type Difficulty int

const (
	DifficultyUnknown Difficulty = iota
	DifficultyNormal
	DifficultyVeteran
	DifficultyVeteranHardMode
	DifficultyVeteranPlus1
	DifficultyVeteranPlus2
	DifficultyVeteranPlus3
)

type difficultyInfo struct {
	label  string
	prefix string
	suffix string
}

var difficulties = map[Difficulty]difficultyInfo{
	DifficultyNormal:          {label: "Normal", prefix: "n"},
	DifficultyVeteran:         {label: "Veteran", prefix: "v"},
	DifficultyVeteranHardMode: {label: "Hard Mode", prefix: "v", suffix: " HM"},
	DifficultyVeteranPlus1:    {label: "Veteran+1", prefix: "v", suffix: "+1"},
	DifficultyVeteranPlus2:    {label: "Veteran+2", prefix: "v", suffix: "+2"},
	DifficultyVeteranPlus3:    {label: "Veteran+3", prefix: "v", suffix: "+3"},
}

// DifficultyFromID maps a raw report difficulty id to a tier.
func DifficultyFromID(id int) Difficulty {
	switch id {
	case 120:
		return DifficultyNormal
	case 121:
		return DifficultyVeteran
	case 122:
		return DifficultyVeteranHardMode
	case 123:
		return DifficultyVeteranPlus1
	case 124:
		return DifficultyVeteranPlus2
	case 125:
		return DifficultyVeteranPlus3
	default:
		return DifficultyUnknown
	}
}

// Known reports whether the tier is one of the defined tiers.
func (d Difficulty) Known() bool {
	_, ok := difficulties[d]
	return ok
}

func (d Difficulty) String() string {
	if info, ok := difficulties[d]; ok {
		return info.label
	}
	return "Unknown"
}

// Prefix returns the display prefix ("n" or "v").
func (d Difficulty) Prefix() string { return difficulties[d].prefix }

// Suffix returns the display suffix ("", " HM", "+1", ...).
func (d Difficulty) Suffix() string { return difficulties[d].suffix }

// Encounter is one combat segment of a report.
type Encounter struct {
	ID            int
	Zone          Zone
	ZoneKnown     bool
	EncounterID   int
	EncounterName string
	Difficulty    Difficulty
	Killed        bool
	Boss          bool
}

// IsFinalEncounter reports whether this is the last boss of its zone.
func (e Encounter) IsFinalEncounter() bool {
	return e.Boss && e.ZoneKnown && e.EncounterID == e.Zone.FinalEncounterID
}

// TrialName returns the ledger column name, e.g. "vAA" or "vSS HM".
func (e Encounter) TrialName() string {
	if !e.Boss {
		return "trash-pull"
	}
	return e.Difficulty.Prefix() + e.Zone.ShortCode + e.Difficulty.Suffix()
}

// Participant is a report attendee.
type Participant struct {
	DisplayName  string
	Class        string
	Human        bool
	Anonymous    bool
	EncounterIDs map[int]struct{}
}

// Creditable reports whether the participant may receive closure credit.
func (p Participant) Creditable() bool {
	return p.Human && !p.Anonymous
}

// PresentAt reports whether the participant joined the encounter.
func (p Participant) PresentAt(encounterID int) bool {
	_, ok := p.EncounterIDs[encounterID]
	return ok
}

// ClosureEvent is one final-boss kill and the participants credited for it.
type ClosureEvent struct {
	Encounter Encounter
	Winners   []Participant
}

// TrialName returns the name of the trial that was closed.
func (c ClosureEvent) TrialName() string {
	return c.Encounter.TrialName()
}

// WinnerNames returns the winners' display names in order.
func (c ClosureEvent) WinnerNames() []string {
	names := make([]string, len(c.Winners))
	for i, w := range c.Winners {
		names[i] = w.DisplayName
	}
	return names
}

// ReportState is the registry processing status of a report.
type ReportState string

const (
	StateUnprocessed ReportState = "UNPROCESSED"
	StateProcessed   ReportState = "PROCESSED"
	StateError       ReportState = "ERROR"
)

// ReportMeta holds the descriptive fields of a report.
type ReportMeta struct {
	Title      string
	Owner      string
	OccurredAt time.Time
}

// Report is a registry entry for one report URL.
type Report struct {
	URL          string
	Code         string
	Meta         ReportMeta
	State        ReportState
	Summary      string
	Attendees    []string
	ClosedTrials []string
	Reason       string
	RegisteredAt time.Time
}

// Outcome is what processing a report recorded.
type Outcome struct {
	Summary      string
	ClosedTrials []string
	Attendees    []string
}
