package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsFinalEncounterAnyDifficulty(t *testing.T) {
	zone, ok := LookupZone("AA")
	require.True(t, ok)

	for id := 120; id <= 125; id++ {
		final := Encounter{Zone: zone, ZoneKnown: true, EncounterID: 4, Difficulty: DifficultyFromID(id), Boss: true}
		assert.True(t, final.IsFinalEncounter(), "difficulty %d", id)

		other := final
		other.EncounterID = 3
		assert.False(t, other.IsFinalEncounter(), "difficulty %d", id)
	}
}

func TestIsFinalEncounterRequiresBossAndKnownZone(t *testing.T) {
	zone, _ := LookupZone("Cloudrest")
	assert.False(t, Encounter{Zone: zone, ZoneKnown: true, EncounterID: 27}.IsFinalEncounter())
	assert.False(t, Encounter{EncounterID: 0, Boss: true}.IsFinalEncounter())
}

func TestTrialName(t *testing.T) {
	ss, _ := LookupZone("Sunspire")
	cases := map[int]string{
		120: "nSS",
		121: "vSS",
		122: "vSS HM",
		123: "vSS+1",
		124: "vSS+2",
		125: "vSS+3",
	}
	for id, want := range cases {
		e := Encounter{Zone: ss, ZoneKnown: true, Difficulty: DifficultyFromID(id), Boss: true}
		assert.Equal(t, want, e.TrialName())
	}
	assert.Equal(t, "trash-pull", Encounter{}.TrialName())
}

func TestLookupZone(t *testing.T) {
	for _, name := range []string{"Halls of Fabrication", "The Halls of Fabrication", "HOF"} {
		z, ok := LookupZone(name)
		require.True(t, ok, name)
		assert.Equal(t, 20, z.FinalEncounterID)
	}
	_, ok := LookupZone("hof")
	assert.False(t, ok)
	assert.Len(t, Zones(), 13)
}

func TestCreditable(t *testing.T) {
	assert.True(t, Participant{Human: true}.Creditable())
	assert.False(t, Participant{Human: true, Anonymous: true}.Creditable())
	assert.False(t, Participant{}.Creditable())
	assert.False(t, DifficultyFromID(7).Known())
}
