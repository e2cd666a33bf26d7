// Package resolver turns raw report payloads into closure events.
package resolver

import (
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/verte-zerg/trialrank/internal/model"
)

// MalformedReportError is returned when a payload cannot be resolved.
type MalformedReportError struct {
	Field string
	Err   error
}

func (e *MalformedReportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed report (%s): %v", e.Field, e.Err)
	}
	return fmt.Sprintf("malformed report: missing %s", e.Field)
}

func (e *MalformedReportError) Unwrap() error { return e.Err }

var humanClasses = map[string]struct{}{
	"DragonKnight": {},
	"Arcanist":     {},
	"Templar":      {},
	"Nightblade":   {},
	"Sorcerer":     {},
	"Warden":       {},
	"Necromancer":  {},
}

type rawReport struct {
	Start      *int64         `json:"start"`
	Title      *string        `json:"title"`
	Owner      *string        `json:"owner"`
	Friendlies *[]rawFriendly `json:"friendlies"`
	Fights     *[]rawFight    `json:"fights"`
}

type rawFight struct {
	ID         int    `json:"id"`
	Boss       int    `json:"boss"`
	Name       string `json:"name"`
	ZoneName   string `json:"zoneName"`
	Kill       bool   `json:"kill"`
	Difficulty int    `json:"difficulty"`
}

type rawFriendly struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Type        string `json:"type"`
	Anonymous   bool   `json:"anonymous"`
	Fights      []struct {
		ID int `json:"id"`
	} `json:"fights"`
}

// Resolution is the result of resolving one report.
type Resolution struct {
	Meta       model.ReportMeta
	Encounters []model.Encounter
	Closures   []model.ClosureEvent
	Attendees  []model.Participant
}

// Summary returns "N TC" or "NO TC".
func (r Resolution) Summary() string {
	if len(r.Closures) == 0 {
		return "NO TC"
	}
	return strconv.Itoa(len(r.Closures)) + " TC"
}

// ClosedTrials returns the distinct trial names closed, in first-closure order.
func (r Resolution) ClosedTrials() []string {
	names := make([]string, 0, len(r.Closures))
	seen := make(map[string]struct{}, len(r.Closures))
	for _, c := range r.Closures {
		name := c.TrialName()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

// AttendeeNames returns the attendees' display names in order.
func (r Resolution) AttendeeNames() []string {
	names := make([]string, len(r.Attendees))
	for i, a := range r.Attendees {
		names[i] = a.DisplayName
	}
	return names
}

// Resolve decodes a raw payload and derives its closures and attendees.
func Resolve(raw []byte) (Resolution, error) {
	var payload rawReport
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Resolution{}, &MalformedReportError{Field: "payload", Err: err}
	}
	switch {
	case payload.Start == nil:
		return Resolution{}, &MalformedReportError{Field: "start"}
	case payload.Title == nil:
		return Resolution{}, &MalformedReportError{Field: "title"}
	case payload.Owner == nil:
		return Resolution{}, &MalformedReportError{Field: "owner"}
	case payload.Friendlies == nil:
		return Resolution{}, &MalformedReportError{Field: "friendlies"}
	case payload.Fights == nil:
		return Resolution{}, &MalformedReportError{Field: "fights"}
	}

	res := Resolution{
		Meta: model.ReportMeta{
			Title:      *payload.Title,
			Owner:      *payload.Owner,
			OccurredAt: time.UnixMilli(*payload.Start).UTC(),
		},
	}

	participants := make([]model.Participant, 0, len(*payload.Friendlies))
	seen := make(map[string]struct{})
	for _, f := range *payload.Friendlies {
		p := classifyFriendly(f)
		participants = append(participants, p)
		if !p.Creditable() {
			continue
		}
		if _, ok := seen[p.DisplayName]; ok {
			continue
		}
		seen[p.DisplayName] = struct{}{}
		res.Attendees = append(res.Attendees, p)
	}

	for _, f := range *payload.Fights {
		enc := classifyFight(f)
		res.Encounters = append(res.Encounters, enc)
		if !enc.IsFinalEncounter() || !enc.Killed {
			continue
		}
		if !enc.Difficulty.Known() {
			return Resolution{}, &MalformedReportError{
				Field: "fights.difficulty",
				Err:   fmt.Errorf("unknown difficulty %d on fight %d", f.Difficulty, f.ID),
			}
		}
		res.Closures = append(res.Closures, model.ClosureEvent{
			Encounter: enc,
			Winners:   winnersOf(enc.ID, participants),
		})
	}
	return res, nil
}

func classifyFight(f rawFight) model.Encounter {
	enc := model.Encounter{ID: f.ID}
	if f.Difficulty == 0 {
		return enc
	}
	enc.Boss = true
	enc.EncounterID = f.Boss
	enc.EncounterName = f.Name
	enc.Killed = f.Kill
	enc.Difficulty = model.DifficultyFromID(f.Difficulty)
	enc.Zone, enc.ZoneKnown = model.LookupZone(f.ZoneName)
	return enc
}

func classifyFriendly(f rawFriendly) model.Participant {
	p := model.Participant{
		DisplayName: f.DisplayName,
		Class:       f.Type,
		Anonymous:   f.Anonymous,
	}
	if _, ok := humanClasses[f.Type]; !ok {
		return p
	}
	p.Human = true
	p.EncounterIDs = make(map[int]struct{}, len(f.Fights))
	for _, fight := range f.Fights {
		p.EncounterIDs[fight.ID] = struct{}{}
	}
	return p
}

func winnersOf(encounterID int, participants []model.Participant) []model.Participant {
	var winners []model.Participant
	seen := make(map[string]struct{})
	for _, p := range participants {
		if !p.Creditable() || !p.PresentAt(encounterID) {
			continue
		}
		if _, ok := seen[p.DisplayName]; ok {
			continue
		}
		seen[p.DisplayName] = struct{}{}
		winners = append(winners, p)
	}
	return winners
}
