package storage

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/runger/claimguard/internal/dataset"
)

// AcceptedTable is the table holding the rows of accepted files.
const AcceptedTable = "good_raw_data"

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ResetTable drops and recreates table with one TEXT column per entry of
// columns. The identifier column is INTEGER and is added first when
// columns does not name it.
func (s *SQLiteStore) ResetTable(ctx context.Context, table string, columns []string, identifier string) error {
	if table == "" {
		return errors.New("table name is required")
	}
	if len(columns) == 0 {
		return errors.New("at least one column is required")
	}

	cols := columns
	if identifier != "" && !contains(columns, identifier) {
		cols = append([]string{identifier}, columns...)
	}

	defs := make([]string, len(cols))
	for i, c := range cols {
		typ := "TEXT"
		if c == identifier {
			typ = "INTEGER"
		}
		defs[i] = quoteIdent(c) + " " + typ
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdent(table)); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	if _, err := tx.ExecContext(ctx, `CREATE TABLE `+quoteIdent(table)+` (`+strings.Join(defs, ", ")+`)`); err != nil {
		return fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return tx.Commit()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// TableColumns returns the column names and declared types of table in
// definition order.
func (s *SQLiteStore) TableColumns(ctx context.Context, table string) ([]string, []string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer rows.Close()

	var names, types []string
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, nil, err
		}
		names = append(names, name)
		types = append(types, typ)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(names) == 0 {
		return nil, nil, fmt.Errorf("table %s does not exist", table)
	}
	return names, types, nil
}

// InsertFile inserts every row of the CSV file at path in one
// transaction. Columns are matched by header name; table columns absent
// from the file stay NULL. Any failure rolls the whole file back.
func (s *SQLiteStore) InsertFile(ctx context.Context, table, path string) (int, error) {
	f, err := dataset.ReadCSV(path)
	if err != nil {
		return 0, err
	}

	names, types, err := s.TableColumns(ctx, table)
	if err != nil {
		return 0, err
	}
	integer := make(map[string]bool, len(names))
	for i, n := range names {
		integer[n] = strings.EqualFold(types[i], "INTEGER")
	}

	quoted := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		if _, ok := integer[c]; !ok {
			return 0, fmt.Errorf("column %q of %s is not in table %s", c, filepath.Base(path), table)
		}
		quoted[i] = quoteIdent(c)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.Columns)), ", ")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+quoteIdent(table)+` (`+strings.Join(quoted, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(f.Columns))
	for r, row := range f.Rows {
		for i, v := range row {
			if v == "" && integer[f.Columns[i]] {
				args[i] = nil
			} else {
				args[i] = v
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("failed to insert row %d of %s: %w", r+1, filepath.Base(path), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit %s: %w", filepath.Base(path), err)
	}
	return len(f.Rows), nil
}

// LoadDirectory inserts every CSV file of dir in name order. A file whose
// insert fails is rolled back and moved to quarantineDir; the remaining
// files still load.
func (s *SQLiteStore) LoadDirectory(ctx context.Context, table, dir, quarantineDir string) (*LoadResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	res := &LoadResult{Loaded: make(map[string]int)}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		n, err := s.InsertFile(ctx, table, filepath.Join(dir, name))
		if err == nil {
			res.Loaded[name] = n
			res.Rows += n
			continue
		}
		if ctx.Err() != nil {
			return res, ctx.Err()
		}

		if err := os.MkdirAll(quarantineDir, 0o755); err != nil {
			return res, fmt.Errorf("failed to create quarantine directory: %w", err)
		}
		if err := os.Rename(filepath.Join(dir, name), filepath.Join(quarantineDir, name)); err != nil {
			return res, fmt.Errorf("failed to quarantine %s: %w", name, err)
		}
		res.Quarantined = append(res.Quarantined, name)
	}
	return res, nil
}

// ExportCSV writes every row of table to path as CSV with every field
// quoted and CRLF line endings, header first. NULL becomes an empty
// field. It returns the number of data rows written.
func (s *SQLiteStore) ExportCSV(ctx context.Context, table, path string) (int, error) {
	names, _, err := s.TableColumns(ctx, table)
	if err != nil {
		return 0, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT * FROM `+quoteIdent(table)+` ORDER BY rowid`)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", table, err)
	}
	defer rows.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	writeQuoted(w, names)

	vals := make([]sql.NullString, len(names))
	ptrs := make([]any, len(names))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	record := make([]string, len(names))
	count := 0
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			tmp.Close()
			return 0, fmt.Errorf("failed to scan %s: %w", table, err)
		}
		for i, v := range vals {
			record[i] = v.String
		}
		writeQuoted(w, record)
		count++
	}
	if err := rows.Err(); err != nil {
		tmp.Close()
		return 0, err
	}

	if err := w.Flush(); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return 0, err
	}
	return count, nil
}

// writeQuoted writes one quote-all CRLF record. bufio.Writer keeps the
// first error and reports it on Flush.
func writeQuoted(w *bufio.Writer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			w.WriteByte(',')
		}
		w.WriteByte('"')
		w.WriteString(strings.ReplaceAll(f, `"`, `""`))
		w.WriteByte('"')
	}
	w.WriteString("\r\n")
}
