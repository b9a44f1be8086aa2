package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/claimguard/internal/dataset"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestResetTable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	require.NoError(t, store.ResetTable(ctx, AcceptedTable, []string{"months", "policy_csl"}, "record_id"))

	names, types, err := store.TableColumns(ctx, AcceptedTable)
	require.NoError(t, err)
	assert.Equal(t, []string{"record_id", "months", "policy_csl"}, names)
	assert.Equal(t, []string{"INTEGER", "TEXT", "TEXT"}, types)

	// Identifier already listed keeps its position.
	require.NoError(t, store.ResetTable(ctx, AcceptedTable, []string{"a", "record_id"}, "record_id"))
	names, _, err = store.TableColumns(ctx, AcceptedTable)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "record_id"}, names)

	assert.Error(t, store.ResetTable(ctx, "", []string{"a"}, ""))
	assert.Error(t, store.ResetTable(ctx, AcceptedTable, nil, ""))
}

func TestInsertFile_AndExport(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	require.NoError(t, store.ResetTable(ctx, AcceptedTable, []string{"months", "note"}, "record_id"))

	dir := t.TempDir()
	path := writeFile(t, dir, "fraudDetection_021119920_010222.csv",
		"record_id,months,note\n0,328,\"has, comma\"\n1,228,\"say \"\"hi\"\"\"\n")
	n, err := store.InsertFile(ctx, AcceptedTable, path)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// A file without the identifier column leaves it NULL.
	path = writeFile(t, dir, "fraudDetection_021119920_010223.csv", "note,months\n?,134\n")
	n, err = store.InsertFile(ctx, AcceptedTable, path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	out := filepath.Join(t.TempDir(), "TrainingFileFromDB", "InputFile.csv")
	count, err := store.ExportCSV(ctx, AcceptedTable, out)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	want := strings.Join([]string{
		`"record_id","months","note"`,
		`"0","328","has, comma"`,
		`"1","228","say ""hi"""`,
		`"","134","?"`,
	}, "\r\n") + "\r\n"
	assert.Equal(t, want, string(raw))

	// The export reads back as a regular frame.
	f, err := dataset.ReadCSV(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"record_id", "months", "note"}, f.Columns)
	assert.Equal(t, []string{"1", "228", `say "hi"`}, f.Rows[1])
}

func TestInsertFile_UnknownColumnRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	require.NoError(t, store.ResetTable(ctx, AcceptedTable, []string{"months"}, "record_id"))
	path := writeFile(t, t.TempDir(), "bad.csv", "months,extra\n1,2\n")

	_, err := store.InsertFile(ctx, AcceptedTable, path)
	assert.ErrorContains(t, err, "extra")

	var n int
	require.NoError(t, store.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM good_raw_data`).Scan(&n))
	assert.Equal(t, 0, n)
}

func TestLoadDirectory_QuarantinesFailedFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	require.NoError(t, store.ResetTable(ctx, AcceptedTable, []string{"months"}, "record_id"))

	good := t.TempDir()
	bad := filepath.Join(t.TempDir(), "Bad_Raw")
	writeFile(t, good, "a.csv", "record_id,months\n0,1\n1,2\n")
	writeFile(t, good, "b.csv", "record_id,wrong\n0,1\n")
	writeFile(t, good, "c.csv", "months\n3\n")
	writeFile(t, good, "notes.txt", "ignored")

	res, err := store.LoadDirectory(ctx, AcceptedTable, good, bad)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"a.csv": 2, "c.csv": 1}, res.Loaded)
	assert.Equal(t, []string{"b.csv"}, res.Quarantined)
	assert.Equal(t, 3, res.Rows)

	assert.FileExists(t, filepath.Join(bad, "b.csv"))
	assert.NoFileExists(t, filepath.Join(good, "b.csv"))
}

func TestLoadDirectory_Cancelled(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	defer store.Close()

	require.NoError(t, store.ResetTable(context.Background(), AcceptedTable, []string{"months"}, ""))
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", "months\n1\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.LoadDirectory(ctx, AcceptedTable, dir, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExportCSV_MissingTable(t *testing.T) {
	t.Parallel()
	store := newTestStore(t)
	defer store.Close()

	_, err := store.ExportCSV(context.Background(), "nope", filepath.Join(t.TempDir(), "out.csv"))
	assert.Error(t, err)
}
