package board

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/verte-zerg/trialrank/internal/ledger"
	"github.com/verte-zerg/trialrank/internal/model"
)

var headerStyle = lipgloss.NewStyle().Bold(true)

// Options controls rendering. Color is used only on a terminal unless forced,
// and never when NO_COLOR is set.
type Options struct {
	ForceColor bool
}

// RenderLeaderboard writes the standings as a fixed-width table.
func RenderLeaderboard(w io.Writer, standings []ledger.Standing, opts Options) error {
	if len(standings) == 0 {
		_, err := fmt.Fprintln(w, "No attendance recorded yet.")
		return err
	}
	rows := make([][]string, 0, len(standings))
	for _, s := range standings {
		lastLog := s.LastLog
		if lastLog == "" {
			lastLog = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(s.Rank),
			s.Username,
			strconv.Itoa(s.Attendances),
			strconv.Itoa(s.Closures),
			lastLog,
		})
	}
	headers := []string{"#", "Username", "Attendances", "Closures", "Last Log"}
	return writeTable(w, headers, rows, map[int]bool{0: true, 2: true, 3: true}, opts)
}

// RenderZones writes the zone reference table.
func RenderZones(w io.Writer, zones []model.Zone, opts Options) error {
	rows := make([][]string, 0, len(zones))
	for _, z := range zones {
		rows = append(rows, []string{z.ShortCode, z.Name, strconv.Itoa(z.FinalEncounterID), z.FinalEncounterName})
	}
	headers := []string{"Code", "Zone", "Final ID", "Final Encounter"}
	return writeTable(w, headers, rows, map[int]bool{2: true}, opts)
}

// RenderReports writes registry entries, oldest first.
func RenderReports(w io.Writer, reports []model.Report, opts Options) error {
	if len(reports) == 0 {
		_, err := fmt.Fprintln(w, "No logs registered.")
		return err
	}
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		date := "-"
		if !r.Meta.OccurredAt.IsZero() {
			date = r.Meta.OccurredAt.Format(time.DateOnly)
		}
		summary := r.Summary
		if len(r.ClosedTrials) > 0 {
			summary += " (" + strings.Join(r.ClosedTrials, ", ") + ")"
		}
		rows = append(rows, []string{r.Code, string(r.State), date, r.Meta.Title, summary})
	}
	headers := []string{"Code", "State", "Date", "Title", "Summary"}
	return writeTable(w, headers, rows, nil, opts)
}

func writeTable(w io.Writer, headers []string, rows [][]string, rightAlign map[int]bool, opts Options) error {
	lines := formatTable(headers, rows, rightAlign)
	if len(lines) == 0 {
		return nil
	}
	if shouldUseColor(w, opts.ForceColor) {
		lines[0] = headerStyle.Render(lines[0])
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func shouldUseColor(w io.Writer, force bool) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if force {
		return true
	}
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(file.Fd()))
}
