package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const reportCode = "AAAAaaaa11112222"

const reportPayload = `{
	"start": 1710000000000,
	"title": "vCR farm",
	"owner": "@lead",
	"friendlies": [
		{"displayName": "@A", "type": "Templar", "fights": [{"id": 1}, {"id": 2}]},
		{"displayName": "@B", "type": "Sorcerer", "fights": [{"id": 1}]},
		{"displayName": "@C", "type": "Warden", "fights": [{"id": 2}]}
	],
	"fights": [
		{"id": 1, "boss": 27, "name": "Z'Maja", "zoneName": "Cloudrest", "kill": true, "difficulty": 121},
		{"id": 2, "boss": 27, "name": "Z'Maja", "zoneName": "Cloudrest", "kill": true, "difficulty": 121}
	]
}`

func setupCLI(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/report/fights/"+reportCode {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(reportPayload))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("TRIALRANK_API_KEY", "test-key")
	t.Setenv("NO_COLOR", "1")

	cfgPath := filepath.Join(dir, "config", "trialrank", "config.toml")
	require.NoError(t, os.MkdirAll(filepath.Dir(cfgPath), 0o755))
	cfg := "[esologs]\nbase-url = \"" + srv.URL + "\"\n\n[log]\nlevel = \"error\"\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	links := filepath.Join(dir, "links.txt")
	text := "check https://www.esologs.com/reports/" + reportCode + " and https://www.esologs.com/reports/ZZZZzzzz99998888"
	require.NoError(t, os.WriteFile(links, []byte(text), 0o600))
	return links
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLoadProcessLeaderboard(t *testing.T) {
	links := setupCLI(t)

	out, err := runCLI(t, "load", links)
	require.NoError(t, err)
	assert.Contains(t, out, reportCode+"  registered  2 TC")
	assert.Contains(t, out, "ZZZZzzzz99998888  registered: source unavailable")

	out, err = runCLI(t, "process")
	require.NoError(t, err)
	assert.Contains(t, out, reportCode+"  processed  2 TC")
	assert.Contains(t, out, "ZZZZzzzz99998888  skipped: source unavailable")

	out, err = runCLI(t, "leaderboard", "--top", "2")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "1  @A"))
	assert.Contains(t, lines[1], "2024/03/09")

	out, err = runCLI(t, "logs", "--state", "processed")
	require.NoError(t, err)
	assert.Contains(t, out, reportCode)
	assert.NotContains(t, out, "ZZZZzzzz99998888")
}

func TestRequeueRejectsUnknownReport(t *testing.T) {
	setupCLI(t)
	_, err := runCLI(t, "requeue", "https://www.esologs.com/reports/NOTREGISTERED0000")
	assert.Error(t, err)
}

func TestZonesListsTable(t *testing.T) {
	setupCLI(t)
	out, err := runCLI(t, "zones")
	require.NoError(t, err)
	assert.Contains(t, out, "Cloudrest")
}

func TestParseState(t *testing.T) {
	state, err := parseState("processed")
	require.NoError(t, err)
	assert.EqualValues(t, "PROCESSED", state)

	state, err = parseState("")
	require.NoError(t, err)
	assert.Empty(t, state)

	_, err = parseState("done")
	assert.Error(t, err)
}

func TestProcessRequiresAPIKey(t *testing.T) {
	setupCLI(t)
	t.Setenv("TRIALRANK_API_KEY", "")
	_, err := runCLI(t, "process")
	assert.ErrorContains(t, err, "API key")
}
