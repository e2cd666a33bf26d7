package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/verte-zerg/trialrank/internal/model"
)

const logColumns = `url, code, title, owner, occurred_at, state, summary, attendees, closed_trials, reason, registered_at`

// InsertLog stores a new registry entry. It returns false when the URL already exists.
func (s *Store) InsertLog(ctx context.Context, r model.Report) (bool, error) {
	attendees, err := encodeList(r.Attendees)
	if err != nil {
		return false, err
	}
	closed, err := encodeList(r.ClosedTrials)
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO logs (`+logColumns+`, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (url) DO NOTHING`,
		r.URL,
		r.Code,
		r.Meta.Title,
		r.Meta.Owner,
		formatTime(r.Meta.OccurredAt),
		string(r.State),
		r.Summary,
		attendees,
		closed,
		r.Reason,
		formatTime(r.RegisteredAt),
		formatTime(r.RegisteredAt),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// GetLog loads the registry entry for url.
func (s *Store) GetLog(ctx context.Context, url string) (model.Report, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+logColumns+` FROM logs WHERE url = ?`, url)
	r, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Report{}, false, nil
	}
	if err != nil {
		return model.Report{}, false, err
	}
	return r, true, nil
}

// UpdateLog overwrites the mutable fields of an existing entry.
func (s *Store) UpdateLog(ctx context.Context, r model.Report) error {
	attendees, err := encodeList(r.Attendees)
	if err != nil {
		return err
	}
	closed, err := encodeList(r.ClosedTrials)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE logs SET title = ?, owner = ?, occurred_at = ?, state = ?, summary = ?,
			attendees = ?, closed_trials = ?, reason = ?, updated_at = ?
		 WHERE url = ?`,
		r.Meta.Title,
		r.Meta.Owner,
		formatTime(r.Meta.OccurredAt),
		string(r.State),
		r.Summary,
		attendees,
		closed,
		r.Reason,
		time.Now().UTC().Format(time.RFC3339Nano),
		r.URL,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("log %s not found", r.URL)
	}
	return nil
}

// ListLogs returns entries in insertion order. An empty state lists all entries.
func (s *Store) ListLogs(ctx context.Context, state model.ReportState) ([]model.Report, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if state != "" {
		clauses = append(clauses, "state = ?")
		args = append(args, string(state))
	}
	query := fmt.Sprintf(`SELECT %s FROM logs WHERE %s ORDER BY id ASC`, logColumns, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer closeRows(rows)

	var reports []model.Report
	for rows.Next() {
		r, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reports, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLog(row scanner) (model.Report, error) {
	var r model.Report
	var occurredAt, state, attendees, closed, registeredAt string
	if err := row.Scan(&r.URL, &r.Code, &r.Meta.Title, &r.Meta.Owner, &occurredAt, &state,
		&r.Summary, &attendees, &closed, &r.Reason, &registeredAt); err != nil {
		return model.Report{}, err
	}
	r.State = model.ReportState(state)
	var err error
	if r.Meta.OccurredAt, err = parseTime(occurredAt); err != nil {
		return model.Report{}, err
	}
	if r.RegisteredAt, err = parseTime(registeredAt); err != nil {
		return model.Report{}, err
	}
	if r.Attendees, err = decodeList(attendees); err != nil {
		return model.Report{}, err
	}
	if r.ClosedTrials, err = decodeList(closed); err != nil {
		return model.Report{}, err
	}
	return r, nil
}

func encodeList(values []string) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}

func decodeList(raw string) ([]string, error) {
	var values []string
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return values, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, raw)
}
