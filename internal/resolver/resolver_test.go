package resolver

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const twoKillsReport = `{
	"start": 1710000000000,
	"title": "vCR progression",
	"owner": "@lead",
	"friendlies": [
		{"name": "Alpha", "displayName": "@A", "type": "Templar", "anonymous": false, "fights": [{"id": 1}, {"id": 2}, {"id": 3}]},
		{"name": "Bravo", "displayName": "@B", "type": "Sorcerer", "anonymous": false, "fights": [{"id": 2}]},
		{"name": "Charlie", "displayName": "@C", "type": "Warden", "anonymous": false, "fights": [{"id": 3}]},
		{"name": "Familiar", "displayName": "@B", "type": "Pet", "anonymous": false, "fights": [{"id": 3}]},
		{"name": "Hidden", "displayName": "@H", "type": "Arcanist", "anonymous": true, "fights": [{"id": 2}, {"id": 3}]}
	],
	"fights": [
		{"id": 1, "boss": 0, "name": "trash"},
		{"id": 2, "boss": 27, "name": "Z'Maja", "zoneName": "Cloudrest", "kill": true, "difficulty": 121},
		{"id": 3, "boss": 27, "name": "Z'Maja", "zoneName": "Cloudrest", "kill": true, "difficulty": 125},
		{"id": 4, "boss": 26, "name": "Siroria", "zoneName": "Cloudrest", "kill": true, "difficulty": 121},
		{"id": 5, "boss": 27, "name": "Z'Maja", "zoneName": "Cloudrest", "kill": false, "difficulty": 121}
	]
}`

func TestResolveTwoFinalKills(t *testing.T) {
	res, err := Resolve([]byte(twoKillsReport))
	require.NoError(t, err)

	require.Len(t, res.Closures, 2)
	assert.Equal(t, "vCR", res.Closures[0].TrialName())
	assert.Equal(t, []string{"@A", "@B"}, res.Closures[0].WinnerNames())
	assert.Equal(t, "vCR+3", res.Closures[1].TrialName())
	assert.Equal(t, []string{"@A", "@C"}, res.Closures[1].WinnerNames())

	assert.Equal(t, []string{"@A", "@B", "@C"}, res.AttendeeNames())
	assert.Equal(t, "2 TC", res.Summary())
	assert.Equal(t, []string{"vCR", "vCR+3"}, res.ClosedTrials())
	assert.Equal(t, "vCR progression", res.Meta.Title)
	assert.Equal(t, "@lead", res.Meta.Owner)
	assert.Equal(t, time.UnixMilli(1710000000000).UTC(), res.Meta.OccurredAt)
	assert.Len(t, res.Encounters, 5)
	assert.False(t, res.Encounters[0].Boss)
}

func TestResolveIsPure(t *testing.T) {
	first, err := Resolve([]byte(twoKillsReport))
	require.NoError(t, err)
	second, err := Resolve([]byte(twoKillsReport))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestResolveNeverCreditsAnonymous(t *testing.T) {
	res, err := Resolve([]byte(twoKillsReport))
	require.NoError(t, err)
	for _, c := range res.Closures {
		assert.NotContains(t, c.WinnerNames(), "@H")
	}
	assert.NotContains(t, res.AttendeeNames(), "@H")
}

func TestResolveNoClosures(t *testing.T) {
	raw := `{"start": 0, "title": "trash", "owner": "o", "friendlies": [
		{"displayName": "@A", "type": "Nightblade", "fights": [{"id": 1}]}
	], "fights": [{"id": 1, "boss": 3, "zoneName": "AA", "kill": true, "difficulty": 121}]}`
	res, err := Resolve([]byte(raw))
	require.NoError(t, err)
	assert.Empty(t, res.Closures)
	assert.Equal(t, "NO TC", res.Summary())
	assert.Equal(t, []string{"@A"}, res.AttendeeNames())
}

func TestResolveUnknownZoneNeverCloses(t *testing.T) {
	raw := `{"start": 0, "title": "t", "owner": "o", "friendlies": [], "fights": [
		{"id": 1, "boss": 4, "zoneName": "Somewhere Else", "kill": true, "difficulty": 121}
	]}`
	res, err := Resolve([]byte(raw))
	require.NoError(t, err)
	assert.Empty(t, res.Closures)
}

func TestResolveMissingFields(t *testing.T) {
	cases := map[string]string{
		"start":      `{"title": "t", "owner": "o", "friendlies": [], "fights": []}`,
		"title":      `{"start": 1, "owner": "o", "friendlies": [], "fights": []}`,
		"owner":      `{"start": 1, "title": "t", "friendlies": [], "fights": []}`,
		"friendlies": `{"start": 1, "title": "t", "owner": "o", "fights": []}`,
		"fights":     `{"start": 1, "title": "t", "owner": "o", "friendlies": []}`,
		"payload":    `not json`,
	}
	for field, raw := range cases {
		_, err := Resolve([]byte(raw))
		var malformed *MalformedReportError
		require.True(t, errors.As(err, &malformed), field)
		assert.Equal(t, field, malformed.Field)
	}
}

func TestResolveUnknownDifficultyOnFinalKill(t *testing.T) {
	raw := `{"start": 1, "title": "t", "owner": "o", "friendlies": [], "fights": [
		{"id": 1, "boss": 4, "zoneName": "AA", "kill": true, "difficulty": 999}
	]}`
	_, err := Resolve([]byte(raw))
	var malformed *MalformedReportError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "fights.difficulty", malformed.Field)
}
