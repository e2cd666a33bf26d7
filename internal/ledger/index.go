package ledger

import (
	"sort"
	"strconv"
	"strings"

	"github.com/verte-zerg/trialrank/internal/sheet"
)

// Reserved columns. Trial counters start at FirstTrialCol.
const (
	ColUsername      = 1
	ColLastLog       = 2
	ColAttendances   = 3
	ColLogsWithoutTC = 4
	FirstTrialCol    = 5

	headerRow = 1
)

// FixedHeaders are the header cells of the reserved columns.
var FixedHeaders = []string{"Username", "Last Log", "Attendances", "Logs Without TC"}

type addr struct {
	row int
	col int
}

// snapshot is a typed index over one full read of the ledger.
type snapshot struct {
	cells   [][]string
	rows    map[string]int
	trials  map[string]int
	lastRow int
}

func newSnapshot(cells [][]string) *snapshot {
	s := &snapshot{
		cells:   cells,
		rows:    make(map[string]int),
		trials:  make(map[string]int),
		lastRow: len(cells),
	}
	if len(cells) > 0 {
		for c := FirstTrialCol; c <= len(cells[0]); c++ {
			name := cells[0][c-1]
			if name == "" {
				continue
			}
			if _, ok := s.trials[name]; !ok {
				s.trials[name] = c
			}
		}
	}
	for r := headerRow + 1; r <= len(cells); r++ {
		name := s.value(r, ColUsername)
		if name == "" {
			continue
		}
		if _, ok := s.rows[name]; !ok {
			s.rows[name] = r
		}
	}
	return s
}

func (s *snapshot) value(row, col int) string {
	if row < 1 || row > len(s.cells) {
		return ""
	}
	line := s.cells[row-1]
	if col < 1 || col > len(line) {
		return ""
	}
	return line[col-1]
}

// trialCols returns the dynamic columns in header order.
func (s *snapshot) trialCols() []int {
	cols := make([]int, 0, len(s.trials))
	for _, c := range s.trials {
		cols = append(cols, c)
	}
	sort.Ints(cols)
	return cols
}

// batch collects cell mutations over a snapshot until they are flushed together.
type batch struct {
	snap    *snapshot
	pending map[addr]string
}

func newBatch(snap *snapshot) *batch {
	return &batch{snap: snap, pending: make(map[addr]string)}
}

func (b *batch) get(row, col int) string {
	if v, ok := b.pending[addr{row, col}]; ok {
		return v
	}
	return b.snap.value(row, col)
}

func (b *batch) set(row, col int, value string) {
	b.pending[addr{row, col}] = value
}

// ensureRow returns the row of username, seeding a new row in this batch when absent.
func (b *batch) ensureRow(username string) (int, bool) {
	if row, ok := b.snap.rows[username]; ok {
		return row, false
	}
	b.snap.lastRow++
	row := b.snap.lastRow
	b.snap.rows[username] = row
	b.set(row, ColUsername, username)
	return row, true
}

func (b *batch) increment(row, col int) {
	b.set(row, col, strconv.Itoa(healCount(b.get(row, col))+1))
}

// stampLatest keeps the later of the stored and given dates.
func (b *batch) stampLatest(row int, date string) {
	if date > b.get(row, ColLastLog) {
		b.set(row, ColLastLog, date)
	}
}

func (b *batch) cells() []sheet.Cell {
	out := make([]sheet.Cell, 0, len(b.pending))
	for a, v := range b.pending {
		out = append(out, sheet.Cell{Row: a.row, Col: a.col, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row == out[j].Row {
			return out[i].Col < out[j].Col
		}
		return out[i].Row < out[j].Row
	})
	return out
}

// healCount reads a counter cell. Blank, text and malformed cells count as zero
// and are overwritten with a valid integer on the next write.
func healCount(value string) int {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return n
}
