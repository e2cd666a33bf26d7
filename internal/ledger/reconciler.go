// Package ledger applies closure events and attendance to the rank ledger.
//
// Exactly-once accounting is not provided here: applying the same report twice
// counts it twice. The registry decides whether a report is applied at all.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/verte-zerg/trialrank/internal/model"
	"github.com/verte-zerg/trialrank/internal/sheet"
)

// Table is the subset of the sheet client the reconciler needs.
type Table interface {
	ReadAll(ctx context.Context) ([][]string, error)
	AppendRow(ctx context.Context, values []string) (int, error)
	AppendCol(ctx context.Context, header string) (int, error)
	WriteCells(ctx context.Context, cells []sheet.Cell) error
}

// Reconciler maps closures and attendance onto ledger cells.
type Reconciler struct {
	table  Table
	logger zerolog.Logger

	// mu serializes row and column discovery against one ledger.
	mu sync.Mutex
}

// NewReconciler returns a Reconciler writing to table.
func NewReconciler(table Table, logger zerolog.Logger) *Reconciler {
	return &Reconciler{
		table:  table,
		logger: logger.With().Str("component", "ledger").Logger(),
	}
}

// ApplyClosures credits every winner of every event and stamps occurredAt as
// their last log date. occurredAt must sort lexicographically (2006/01/02).
func (r *Reconciler) ApplyClosures(ctx context.Context, events []model.ClosureEvent, occurredAt string) error {
	if len(events) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.load(ctx)
	if err != nil {
		return err
	}

	// Columns are created before any row write so the batch can target them.
	for _, name := range distinctTrials(events) {
		if _, ok := snap.trials[name]; ok {
			continue
		}
		col, err := r.table.AppendCol(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to add trial column %q: %w", name, err)
		}
		if col < FirstTrialCol {
			return fmt.Errorf("trial column %q landed on reserved column %d", name, col)
		}
		snap.trials[name] = col
		r.logger.Info().Str("trial", name).Int("col", col).Msg("added trial column")
	}

	b := newBatch(snap)
	for _, ev := range events {
		col := snap.trials[ev.TrialName()]
		for _, w := range ev.Winners {
			if w.DisplayName == "" {
				continue
			}
			row, created := b.ensureRow(w.DisplayName)
			if created {
				r.logger.Info().Str("username", w.DisplayName).Int("row", row).Msg("added user row")
			}
			b.increment(row, col)
			b.stampLatest(row, occurredAt)
		}
	}
	return r.flush(ctx, b)
}

// ApplyAttendance counts one attendance per attendee, and one log without a
// closure when closures is zero. Run it after ApplyClosures for the same report.
func (r *Reconciler) ApplyAttendance(ctx context.Context, attendees []string, closures int) error {
	if len(attendees) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	snap, err := r.load(ctx)
	if err != nil {
		return err
	}
	b := newBatch(snap)
	seen := make(map[string]struct{}, len(attendees))
	for _, name := range attendees {
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		row, created := b.ensureRow(name)
		if created {
			r.logger.Info().Str("username", name).Int("row", row).Msg("added user row")
		}
		b.increment(row, ColAttendances)
		if closures == 0 {
			b.increment(row, ColLogsWithoutTC)
		}
	}
	return r.flush(ctx, b)
}

// Standing is one leaderboard line.
type Standing struct {
	Rank          int
	Username      string
	Attendances   int
	LogsWithoutTC int
	Closures      int
	LastLog       string
}

// Leaderboard returns the top n users by attendances. Ties keep ledger row order.
func (r *Reconciler) Leaderboard(ctx context.Context, n int) ([]Standing, error) {
	cells, err := r.table.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	snap := newSnapshot(cells)
	trialCols := snap.trialCols()

	standings := make([]Standing, 0, len(snap.rows))
	for row := headerRow + 1; row <= len(cells); row++ {
		name := snap.value(row, ColUsername)
		if name == "" || snap.rows[name] != row {
			continue
		}
		s := Standing{
			Username:      name,
			Attendances:   healCount(snap.value(row, ColAttendances)),
			LogsWithoutTC: healCount(snap.value(row, ColLogsWithoutTC)),
			LastLog:       snap.value(row, ColLastLog),
		}
		for _, col := range trialCols {
			s.Closures += healCount(snap.value(row, col))
		}
		standings = append(standings, s)
	}
	sort.SliceStable(standings, func(i, j int) bool {
		return standings[i].Attendances > standings[j].Attendances
	})
	if n > 0 && len(standings) > n {
		standings = standings[:n]
	}
	for i := range standings {
		standings[i].Rank = i + 1
	}
	return standings, nil
}

// load reads the ledger, writing the header row first when the ledger is empty.
func (r *Reconciler) load(ctx context.Context) (*snapshot, error) {
	cells, err := r.table.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	if len(cells) == 0 {
		if _, err := r.table.AppendRow(ctx, FixedHeaders); err != nil {
			return nil, fmt.Errorf("failed to bootstrap ledger: %w", err)
		}
		r.logger.Info().Msg("bootstrapped empty ledger")
		cells = [][]string{append([]string(nil), FixedHeaders...)}
		return newSnapshot(cells), nil
	}

	var missing []sheet.Cell
	for i, h := range FixedHeaders {
		col := i + 1
		if col > len(cells[0]) || cells[0][col-1] == "" {
			missing = append(missing, sheet.Cell{Row: headerRow, Col: col, Value: h})
		}
	}
	if len(missing) > 0 {
		if err := r.table.WriteCells(ctx, missing); err != nil {
			return nil, fmt.Errorf("failed to restore ledger headers: %w", err)
		}
		for len(cells[0]) < len(FixedHeaders) {
			cells[0] = append(cells[0], "")
		}
		for _, c := range missing {
			cells[0][c.Col-1] = c.Value
		}
	}
	return newSnapshot(cells), nil
}

func (r *Reconciler) flush(ctx context.Context, b *batch) error {
	cells := b.cells()
	if len(cells) == 0 {
		return nil
	}
	if err := r.table.WriteCells(ctx, cells); err != nil {
		return fmt.Errorf("failed to write %d ledger cells: %w", len(cells), err)
	}
	r.logger.Debug().Int("cells", len(cells)).Msg("flushed ledger batch")
	return nil
}

func distinctTrials(events []model.ClosureEvent) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, ev := range events {
		name := ev.TrialName()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
