package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/verte-zerg/trialrank/internal/sheet"
)

// Table is one named sparse sheet inside the store. It implements sheet.Backend.
type Table struct {
	db   *sql.DB
	name string
}

// Table returns the sheet called name.
func (s *Store) Table(name string) *Table {
	return &Table{db: s.db, name: name}
}

// ReadAll returns every row up to the last populated one. Rows are ragged.
func (t *Table) ReadAll(ctx context.Context) ([][]string, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT row, col, value FROM cells WHERE sheet = ? ORDER BY row, col`, t.name)
	if err != nil {
		return nil, classify(err)
	}
	defer closeRows(rows)

	var table [][]string
	for rows.Next() {
		var r, c int
		var value string
		if err := rows.Scan(&r, &c, &value); err != nil {
			return nil, classify(err)
		}
		for len(table) < r {
			table = append(table, nil)
		}
		line := table[r-1]
		for len(line) < c {
			line = append(line, "")
		}
		line[c-1] = value
		table[r-1] = line
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return table, nil
}

// FindRow returns the first row whose cell in col equals value.
func (t *Table) FindRow(ctx context.Context, col int, value string) (int, bool, error) {
	return t.findOne(ctx,
		`SELECT row FROM cells WHERE sheet = ? AND col = ? AND value = ? ORDER BY row LIMIT 1`,
		t.name, col, value)
}

// FindCol returns the first column whose cell in row equals value.
func (t *Table) FindCol(ctx context.Context, row int, value string) (int, bool, error) {
	return t.findOne(ctx,
		`SELECT col FROM cells WHERE sheet = ? AND row = ? AND value = ? ORDER BY col LIMIT 1`,
		t.name, row, value)
}

func (t *Table) findOne(ctx context.Context, query string, args ...any) (int, bool, error) {
	var idx int
	err := t.db.QueryRowContext(ctx, query, args...).Scan(&idx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, classify(err)
	}
	return idx, true, nil
}

// ReadCell returns the value at (row, col), or "" when unset.
func (t *Table) ReadCell(ctx context.Context, row, col int) (string, error) {
	var value string
	err := t.db.QueryRowContext(ctx,
		`SELECT value FROM cells WHERE sheet = ? AND row = ? AND col = ?`, t.name, row, col).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", classify(err)
	}
	return value, nil
}

// WriteCells applies the whole batch in one transaction. An empty value clears the cell.
func (t *Table) WriteCells(ctx context.Context, cells []sheet.Cell) (err error) {
	for _, c := range cells {
		if c.Row < 1 || c.Col < 1 {
			return fmt.Errorf("invalid cell address (%d, %d)", c.Row, c.Col)
		}
	}
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer func() {
		if err != nil {
			rollback(tx)
		}
	}()

	upsert, err := tx.PrepareContext(ctx,
		`INSERT INTO cells (sheet, row, col, value) VALUES (?, ?, ?, ?)
		 ON CONFLICT (sheet, row, col) DO UPDATE SET value = excluded.value`)
	if err != nil {
		return classify(err)
	}
	defer func() {
		if cerr := upsert.Close(); cerr != nil {
			// Best-effort statement close.
			_ = cerr
		}
	}()

	for _, c := range cells {
		if c.Value == "" {
			if _, err = tx.ExecContext(ctx,
				`DELETE FROM cells WHERE sheet = ? AND row = ? AND col = ?`, t.name, c.Row, c.Col); err != nil {
				return classify(err)
			}
			continue
		}
		if _, err = upsert.ExecContext(ctx, t.name, c.Row, c.Col, c.Value); err != nil {
			return classify(err)
		}
	}
	if err = tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

// AppendRow writes values into the row after the last populated row.
func (t *Table) AppendRow(ctx context.Context, values []string) (int, error) {
	var row int
	err := t.inTx(ctx, func(tx *sql.Tx) error {
		var last int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(row), 0) FROM cells WHERE sheet = ?`, t.name).Scan(&last); err != nil {
			return err
		}
		row = last + 1
		for i, v := range values {
			if v == "" {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO cells (sheet, row, col, value) VALUES (?, ?, ?, ?)`, t.name, row, i+1, v); err != nil {
				return err
			}
		}
		return nil
	})
	return row, err
}

// AppendCol writes header into the header row after the last populated header.
func (t *Table) AppendCol(ctx context.Context, header string) (int, error) {
	if header == "" {
		return 0, fmt.Errorf("column header is empty")
	}
	var col int
	err := t.inTx(ctx, func(tx *sql.Tx) error {
		var last int
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(col), 0) FROM cells WHERE sheet = ? AND row = 1`, t.name).Scan(&last); err != nil {
			return err
		}
		col = last + 1
		_, err := tx.ExecContext(ctx,
			`INSERT INTO cells (sheet, row, col, value) VALUES (?, 1, ?, ?)`, t.name, col, header)
		return err
	})
	return col, err
}

func (t *Table) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	if err := fn(tx); err != nil {
		rollback(tx)
		return classify(err)
	}
	return classify(tx.Commit())
}
