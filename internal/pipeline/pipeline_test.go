package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/trialrank/internal/esologs"
	"github.com/verte-zerg/trialrank/internal/ledger"
	"github.com/verte-zerg/trialrank/internal/model"
	"github.com/verte-zerg/trialrank/internal/registry"
	"github.com/verte-zerg/trialrank/internal/sheet"
	"github.com/verte-zerg/trialrank/internal/store"
)

const (
	codeA = "AAAAaaaa11112222"
	codeB = "BBBBbbbb33334444"
	urlA  = "https://www.esologs.com/reports/" + codeA
	urlB  = "https://www.esologs.com/reports/" + codeB
)

// 2024-03-09T16:00:00Z
const twoCloudrestKills = `{
	"start": 1710000000000,
	"title": "vCR farm",
	"owner": "@lead",
	"friendlies": [
		{"displayName": "A", "type": "Templar", "fights": [{"id": 1}, {"id": 2}]},
		{"displayName": "B", "type": "Sorcerer", "fights": [{"id": 1}]},
		{"displayName": "C", "type": "Warden", "fights": [{"id": 2}]}
	],
	"fights": [
		{"id": 1, "boss": 27, "name": "Z'Maja", "zoneName": "Cloudrest", "kill": true, "difficulty": 121},
		{"id": 2, "boss": 27, "name": "Z'Maja", "zoneName": "Cloudrest", "kill": true, "difficulty": 121}
	]
}`

const trashOnly = `{
	"start": 1710000000000,
	"title": "trash",
	"owner": "@lead",
	"friendlies": [{"displayName": "D", "type": "Necromancer", "fights": [{"id": 1}]}],
	"fights": [{"id": 1, "boss": 0, "name": "trash"}]
}`

type fakeSource struct {
	payloads map[string]string
	calls    map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{payloads: map[string]string{}, calls: map[string]int{}}
}

func (f *fakeSource) FetchReport(_ context.Context, code string) ([]byte, error) {
	f.calls[code]++
	payload, ok := f.payloads[code]
	if !ok {
		return nil, &esologs.SourceUnavailableError{Code: code, Status: 503}
	}
	return []byte(payload), nil
}

type env struct {
	store    *store.Store
	source   *fakeSource
	registry *registry.Registry
	ledger   *ledger.Reconciler
	pipeline *Pipeline
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "trialrank.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
	})
	e := &env{
		store:    st,
		source:   newFakeSource(),
		registry: registry.New(st),
	}
	client := sheet.NewClient(st.Table("rank"), sheet.DefaultPolicy(), zerolog.Nop())
	e.ledger = ledger.NewReconciler(client, zerolog.Nop())
	e.pipeline = New(e.source, e.registry, e.ledger, Options{}, zerolog.Nop())
	return e
}

func (e *env) ledgerCells(t *testing.T) [][]string {
	t.Helper()
	cells, err := e.store.Table("rank").ReadAll(context.Background())
	require.NoError(t, err)
	return cells
}

func TestLoadThenProcessEndToEnd(t *testing.T) {
	e := newEnv(t)
	e.source.payloads[codeA] = twoCloudrestKills
	ctx := context.Background()

	loaded, err := e.pipeline.Load(ctx, "tonight "+urlA+" and again "+urlA)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, StatusRegistered, loaded[0].Status)

	batch, err := e.pipeline.Process(ctx)
	require.NoError(t, err)
	require.NoError(t, batch.Aborted)
	require.Len(t, batch.Reports, 1)
	assert.Equal(t, StatusProcessed, batch.Reports[0].Status)
	assert.Equal(t, "2 TC", batch.Reports[0].Summary)

	assert.Equal(t, [][]string{
		{"Username", "Last Log", "Attendances", "Logs Without TC", "vCR"},
		{"A", "2024/03/09", "1", "", "2"},
		{"B", "2024/03/09", "1", "", "1"},
		{"C", "2024/03/09", "1", "", "1"},
	}, e.ledgerCells(t))

	rep, err := e.registry.Get(ctx, urlA)
	require.NoError(t, err)
	assert.Equal(t, model.StateProcessed, rep.State)
	assert.Equal(t, "2 TC", rep.Summary)
	assert.Equal(t, []string{"vCR"}, rep.ClosedTrials)
	assert.Equal(t, []string{"A", "B", "C"}, rep.Attendees)
	assert.Equal(t, "vCR farm", rep.Meta.Title)

	again, err := e.pipeline.Process(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Reports)
	assert.Equal(t, "2", e.ledgerCells(t)[1][4])
}

func TestProcessCountsLogsWithoutClosure(t *testing.T) {
	e := newEnv(t)
	e.source.payloads[codeA] = trashOnly
	ctx := context.Background()

	_, err := e.pipeline.Load(ctx, urlA)
	require.NoError(t, err)
	batch, err := e.pipeline.Process(ctx)
	require.NoError(t, err)
	require.Len(t, batch.Reports, 1)
	assert.Equal(t, "NO TC", batch.Reports[0].Summary)

	assert.Equal(t, [][]string{
		{"Username", "Last Log", "Attendances", "Logs Without TC"},
		{"D", "", "1", "1"},
	}, e.ledgerCells(t))
}

func TestLoadQueuesUnreachableReports(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	loaded, err := e.pipeline.Load(ctx, urlA)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, StatusQueued, loaded[0].Status)

	batch, err := e.pipeline.Process(ctx)
	require.NoError(t, err)
	require.Len(t, batch.Reports, 1)
	assert.Equal(t, StatusSourceUnavailable, batch.Reports[0].Status)

	rep, err := e.registry.Get(ctx, urlA)
	require.NoError(t, err)
	assert.Equal(t, model.StateUnprocessed, rep.State)

	e.source.payloads[codeA] = twoCloudrestKills
	batch, err = e.pipeline.Process(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, batch.Processed())

	rep, err = e.registry.Get(ctx, urlA)
	require.NoError(t, err)
	assert.Equal(t, "vCR farm", rep.Meta.Title)
}

func TestLoadMarksMalformedReports(t *testing.T) {
	e := newEnv(t)
	e.source.payloads[codeA] = `{"title": "no start"}`
	ctx := context.Background()

	loaded, err := e.pipeline.Load(ctx, urlA)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, StatusMalformed, loaded[0].Status)

	rep, err := e.registry.Get(ctx, urlA)
	require.NoError(t, err)
	assert.Equal(t, model.StateError, rep.State)
	assert.Contains(t, rep.Reason, "start")

	unprocessed, err := e.registry.ListUnprocessed(ctx)
	require.NoError(t, err)
	assert.Empty(t, unprocessed)
}

func TestLoadReportsKnownURLs(t *testing.T) {
	e := newEnv(t)
	e.source.payloads[codeA] = twoCloudrestKills
	ctx := context.Background()

	_, err := e.pipeline.Load(ctx, urlA)
	require.NoError(t, err)
	loaded, err := e.pipeline.Load(ctx, urlA)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, StatusKnown, loaded[0].Status)
}

func TestProcessMarksMalformedAsError(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	_, err := e.pipeline.Load(ctx, urlA)
	require.NoError(t, err)

	e.source.payloads[codeA] = `not json`
	batch, err := e.pipeline.Process(ctx)
	require.NoError(t, err)
	require.Len(t, batch.Reports, 1)
	assert.Equal(t, StatusMalformed, batch.Reports[0].Status)

	rep, err := e.registry.Get(ctx, urlA)
	require.NoError(t, err)
	assert.Equal(t, model.StateError, rep.State)
	assert.Empty(t, e.ledgerCells(t))
}

func TestAnalyzeLeavesStateUntouched(t *testing.T) {
	e := newEnv(t)
	e.source.payloads[codeA] = twoCloudrestKills
	ctx := context.Background()

	out, err := e.pipeline.Analyze(ctx, urlA+" "+urlB)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, StatusAnalyzed, out[0].Status)
	assert.Len(t, out[0].Resolution.Closures, 2)
	assert.Equal(t, StatusSourceUnavailable, out[1].Status)

	reports, err := e.registry.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, reports)
	assert.Empty(t, e.ledgerCells(t))
}

// scriptedLedger fails its ApplyClosures calls in order and can run a hook mid-report.
type scriptedLedger struct {
	errs    []error
	calls   int
	applied []string
	hook    func()
	ctxErrs []error
}

func (s *scriptedLedger) ApplyClosures(ctx context.Context, _ []model.ClosureEvent, _ string) error {
	s.calls++
	if s.hook != nil {
		s.hook()
	}
	if s.calls <= len(s.errs) && s.errs[s.calls-1] != nil {
		return s.errs[s.calls-1]
	}
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	return nil
}

func (s *scriptedLedger) ApplyAttendance(ctx context.Context, attendees []string, _ int) error {
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.applied = append(s.applied, attendees...)
	return nil
}

func loadTwo(t *testing.T, e *env) {
	t.Helper()
	e.source.payloads[codeA] = twoCloudrestKills
	e.source.payloads[codeB] = trashOnly
	_, err := e.pipeline.Load(context.Background(), urlA+"\n"+urlB)
	require.NoError(t, err)
}

func TestProcessAbortsBatchWhenLedgerUnavailable(t *testing.T) {
	e := newEnv(t)
	loadTwo(t, e)
	fake := &scriptedLedger{errs: []error{
		&sheet.LedgerUnavailableError{Op: "write-cells", Err: sheet.ErrRateLimited},
	}}
	p := New(e.source, e.registry, fake, Options{}, zerolog.Nop())

	batch, err := p.Process(context.Background())
	require.NoError(t, err)
	require.Len(t, batch.Reports, 1)
	assert.Equal(t, StatusLedgerUnavailable, batch.Reports[0].Status)
	var unavailable *sheet.LedgerUnavailableError
	assert.True(t, errors.As(batch.Aborted, &unavailable))
	assert.Equal(t, 1, fake.calls)

	queued, err := e.registry.ListUnprocessed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{urlA, urlB}, queued)
}

func TestProcessSkipsReportOnBackingStoreError(t *testing.T) {
	e := newEnv(t)
	loadTwo(t, e)
	fake := &scriptedLedger{errs: []error{
		&sheet.BackingStoreError{Op: "read-all", Err: errors.New("disk I/O error")},
	}}
	p := New(e.source, e.registry, fake, Options{}, zerolog.Nop())

	batch, err := p.Process(context.Background())
	require.NoError(t, err)
	require.NoError(t, batch.Aborted)
	require.Len(t, batch.Reports, 2)
	assert.Equal(t, StatusStoreUnavailable, batch.Reports[0].Status)
	assert.Equal(t, StatusProcessed, batch.Reports[1].Status)

	queued, err := e.registry.ListUnprocessed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{urlA}, queued)
}

func TestProcessFinishesCurrentReportOnCancel(t *testing.T) {
	e := newEnv(t)
	loadTwo(t, e)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fake := &scriptedLedger{hook: cancel}
	p := New(e.source, e.registry, fake, Options{}, zerolog.Nop())

	batch, err := p.Process(ctx)
	require.NoError(t, err)
	require.Len(t, batch.Reports, 1)
	assert.Equal(t, StatusProcessed, batch.Reports[0].Status)
	assert.ErrorIs(t, batch.Aborted, context.Canceled)
	assert.Equal(t, []error{nil, nil}, fake.ctxErrs)
	assert.Equal(t, []string{"A", "B", "C"}, fake.applied)

	queued, err := e.registry.ListUnprocessed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{urlB}, queued)
}

func TestProcessEmptyQueue(t *testing.T) {
	e := newEnv(t)
	batch, err := e.pipeline.Process(context.Background())
	require.NoError(t, err)
	assert.Empty(t, batch.Reports)
	assert.NoError(t, batch.Aborted)
}
