package rawvalidation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/claimguard/internal/dataset"
	"github.com/runger/claimguard/internal/schema"
)

// testSchema declares 21 columns: a positional index plus 20 named ones.
func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	var cols []string
	for i := 1; i <= 20; i++ {
		cols = append(cols, fmt.Sprintf(`"c%d": "varchar"`, i))
	}
	doc := fmt.Sprintf(`{"SampleFileName": "fraudDetection_20230101_120000.csv",
"LengthOfDateStampInFile": 8, "LengthOfTimeStampInFile": 6, "NumberofColumns": 21,
"ColName": {%s}}`, strings.Join(cols, ", "))
	s, err := schema.Parse([]byte(doc))
	require.NoError(t, err)
	return s
}

// csvContent builds a file with an unnamed index column, n named columns
// and the given rows; empty marks a column whose values are all blank.
func csvContent(n int, rows int, empty int) string {
	var b strings.Builder
	header := []string{""}
	for i := 1; i <= n; i++ {
		header = append(header, fmt.Sprintf("c%d", i))
	}
	b.WriteString(strings.Join(header, ",") + "\n")
	for r := 0; r < rows; r++ {
		fields := []string{fmt.Sprint(r)}
		for i := 1; i <= n; i++ {
			if i == empty {
				fields = append(fields, "")
				continue
			}
			fields = append(fields, fmt.Sprintf("v%d_%d", r, i))
		}
		b.WriteString(strings.Join(fields, ",") + "\n")
	}
	return b.String()
}

type fixture struct {
	intake string
	parts  Partitions
	v      *Validator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		intake: filepath.Join(root, "Training_Batch_Files"),
		parts: Partitions{
			Accepted:    filepath.Join(root, "validated", "Good_Raw"),
			Quarantine:  filepath.Join(root, "validated", "Bad_Raw"),
			ArchiveRoot: filepath.Join(root, "TrainingArchiveBadData"),
		},
	}
	require.NoError(t, os.MkdirAll(f.intake, 0o755))
	clock := func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	f.v = New(f.parts, WithClock(clock))
	return f
}

func (f *fixture) write(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(f.intake, name), []byte(content), 0o644))
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCheckName(t *testing.T) {
	s := testSchema(t)

	tests := []struct {
		name   string
		reason Reason
	}{
		{"fraudDetection_20230101_120000.csv", ReasonNone},
		{"fraudDetection_2023101_120000.csv", ReasonDateStamp},
		{"fraudDetection_20230101_12000.csv", ReasonTimeStamp},
		{"fraudDetection_20230101_1200000.csv", ReasonTimeStamp},
		{"fraudDetection_20230101.csv", ReasonNamePattern},
		{"fraudDetection_20230101_120000.txt", ReasonNamePattern},
		{"claims_20230101_120000.csv", ReasonNamePattern},
		{"fraudDetection_2023-0101_120000.csv", ReasonNamePattern},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, _ := checkName(tt.name, s)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestPreparePartitions_Idempotent(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.v.PreparePartitions())
	require.NoError(t, os.WriteFile(filepath.Join(f.parts.Accepted, "keep.csv"), []byte("a\n1\n"), 0o644))
	require.NoError(t, f.v.PreparePartitions())

	assert.Equal(t, []string{"keep.csv"}, dirNames(t, f.parts.Accepted))
	assert.Empty(t, dirNames(t, f.parts.Quarantine))
}

func TestPreparePartitions_StorageError(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	v := New(Partitions{Accepted: filepath.Join(blocker, "Good_Raw"), Quarantine: filepath.Join(blocker, "Bad_Raw")})
	err := v.PreparePartitions()

	var se *StorageError
	require.True(t, errors.As(err, &se), "got %v", err)
	assert.Equal(t, "create", se.Op)
}

func TestClassifyByName_CopiesNeverMoves(t *testing.T) {
	f := newFixture(t)
	s := testSchema(t)
	require.NoError(t, f.v.PreparePartitions())

	f.write(t, "fraudDetection_20230101_120000.csv", "x")
	f.write(t, "fraudDetection_2023101_120000.csv", "x")

	err := f.v.ClassifyByName(f.intake, []string{"fraudDetection_20230101_120000.csv", "fraudDetection_2023101_120000.csv"}, s)
	require.NoError(t, err)

	assert.Equal(t, []string{"fraudDetection_20230101_120000.csv"}, dirNames(t, f.parts.Accepted))
	assert.Equal(t, []string{"fraudDetection_2023101_120000.csv"}, dirNames(t, f.parts.Quarantine))
	assert.Len(t, dirNames(t, f.intake), 2, "intake must be left intact")

	assert.Equal(t, StateNameValid, f.v.Ledger().State("fraudDetection_20230101_120000.csv"))
	assert.Equal(t, StateNameInvalid, f.v.Ledger().State("fraudDetection_2023101_120000.csv"))
}

func TestClassifyByName_RepeatedPasses(t *testing.T) {
	f := newFixture(t)
	s := testSchema(t)
	f.write(t, "fraudDetection_20230101_120000.csv", "x")
	names := []string{"fraudDetection_20230101_120000.csv"}

	for pass := 0; pass < 2; pass++ {
		require.NoError(t, f.v.ResetPartitions())
		require.NoError(t, f.v.ClassifyByName(f.intake, names, s), "pass %d", pass)
		assert.Equal(t, StateNameValid, f.v.Ledger().State(names[0]))
		assert.Len(t, f.v.Ledger().Outcomes(), 1)
	}
	assert.Equal(t, names, dirNames(t, f.parts.Accepted))
}

func TestValidateColumnCount(t *testing.T) {
	f := newFixture(t)
	s := testSchema(t)
	require.NoError(t, f.v.PreparePartitions())

	files := map[string]string{
		"fraudDetection_20230101_000001.csv": csvContent(20, 2, 0), // 21 columns with the index
		"fraudDetection_20230101_000002.csv": csvContent(19, 2, 0), // 20
		"fraudDetection_20230101_000003.csv": csvContent(21, 2, 0), // 22
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(f.parts.Accepted, name), []byte(content), 0o644))
	}

	require.NoError(t, f.v.ValidateColumnCount(s))

	assert.Equal(t, []string{"fraudDetection_20230101_000001.csv"}, dirNames(t, f.parts.Accepted))
	assert.ElementsMatch(t, []string{"fraudDetection_20230101_000002.csv", "fraudDetection_20230101_000003.csv"}, dirNames(t, f.parts.Quarantine))
	assert.Equal(t, StateColumnCountValid, f.v.Ledger().State("fraudDetection_20230101_000001.csv"))
	assert.Equal(t, StateColumnCountInvalid, f.v.Ledger().State("fraudDetection_20230101_000002.csv"))
}

func TestValidateColumnCount_UnreadableIsQuarantined(t *testing.T) {
	f := newFixture(t)
	s := testSchema(t)
	require.NoError(t, f.v.PreparePartitions())

	require.NoError(t, os.WriteFile(filepath.Join(f.parts.Accepted, "fraudDetection_20230101_000001.csv"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.parts.Accepted, "fraudDetection_20230101_000002.csv"), []byte(csvContent(20, 1, 0)), 0o644))

	require.NoError(t, f.v.ValidateColumnCount(s))

	assert.Equal(t, []string{"fraudDetection_20230101_000002.csv"}, dirNames(t, f.parts.Accepted))
	outcomes := f.v.Report().Quarantined
	require.Len(t, outcomes, 1)
	assert.Equal(t, ReasonUnreadable, outcomes[0].Reason)
}

func TestValidateNoAllNullColumns(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.v.PreparePartitions())

	full := "fraudDetection_20230101_000001.csv"
	partial := "fraudDetection_20230101_000002.csv"
	empty := "fraudDetection_20230101_000003.csv"
	headerOnly := "fraudDetection_20230101_000004.csv"

	partialContent := ",c1,c2\n0,NA,x\n1,5,y\n"
	require.NoError(t, os.WriteFile(filepath.Join(f.parts.Accepted, full), []byte(csvContent(2, 3, 0)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.parts.Accepted, partial), []byte(partialContent), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.parts.Accepted, empty), []byte(csvContent(2, 3, 2)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.parts.Accepted, headerOnly), []byte(",c1,c2\n"), 0o644))

	require.NoError(t, f.v.ValidateNoAllNullColumns())

	assert.ElementsMatch(t, []string{full, partial}, dirNames(t, f.parts.Accepted))
	assert.ElementsMatch(t, []string{empty, headerOnly}, dirNames(t, f.parts.Quarantine))

	frame, err := dataset.ReadCSV(filepath.Join(f.parts.Accepted, partial))
	require.NoError(t, err)
	assert.Equal(t, []string{"record_id", "c1", "c2"}, frame.Columns)
	assert.Equal(t, "NA", frame.Rows[0][1], "partial nulls are kept as-is")

	report := f.v.Report()
	reasons := map[string]Reason{}
	for _, o := range report.Quarantined {
		reasons[o.Name] = o.Reason
	}
	assert.Equal(t, ReasonAllNullColumn, reasons[empty])
	assert.Equal(t, ReasonNoDataRows, reasons[headerOnly])
}

func TestValidateNoAllNullColumns_CustomIdentifier(t *testing.T) {
	f := newFixture(t)
	f.v = New(f.parts, WithIdentifierColumn("Wafer"), WithMissingMarkers([]string{"", "?"}))
	require.NoError(t, f.v.PreparePartitions())

	name := "fraudDetection_20230101_000001.csv"
	require.NoError(t, os.WriteFile(filepath.Join(f.parts.Accepted, name), []byte("Unnamed: 0,c1,c2\n0,?,a\n1,?,b\n"), 0o644))
	require.NoError(t, f.v.ValidateNoAllNullColumns())
	assert.Equal(t, []string{name}, dirNames(t, f.parts.Quarantine), "? counts as missing")

	require.NoError(t, os.WriteFile(filepath.Join(f.parts.Accepted, "fraudDetection_20230101_000002.csv"), []byte("Unnamed: 0,c1\n0,a\n"), 0o644))
	require.NoError(t, f.v.ValidateNoAllNullColumns())
	header, err := dataset.ReadHeader(filepath.Join(f.parts.Accepted, "fraudDetection_20230101_000002.csv"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Wafer", "c1"}, header)
}

func TestArchiveAndClearQuarantine(t *testing.T) {
	f := newFixture(t)

	dest, err := f.v.ArchiveAndClearQuarantine()
	require.NoError(t, err)
	assert.Empty(t, dest, "missing quarantine is skipped silently")

	require.NoError(t, f.v.PreparePartitions())
	require.NoError(t, os.WriteFile(filepath.Join(f.parts.Quarantine, "bad1.csv"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.parts.Quarantine, "bad2.csv"), []byte("y"), 0o644))

	dest, err = f.v.ArchiveAndClearQuarantine()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.parts.ArchiveRoot, "BadData_2024-03-09_140507"), dest)
	assert.Equal(t, []string{"bad1.csv", "bad2.csv"}, dirNames(t, dest))

	_, err = os.Stat(f.parts.Quarantine)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_EndToEnd(t *testing.T) {
	f := newFixture(t)
	s := testSchema(t)

	good := []string{
		"fraudDetection_20230101_120000.csv",
		"fraudDetection_20230102_120000.csv",
		"fraudDetection_20230103_120000.csv",
	}
	for _, name := range good {
		f.write(t, name, csvContent(20, 3, 0))
	}
	f.write(t, "fraudDetection_2023101_120000.csv", csvContent(20, 3, 0))
	f.write(t, "claims_20230101_120000.csv", csvContent(20, 3, 0))
	require.NoError(t, os.Mkdir(filepath.Join(f.intake, "subdir"), 0o755))

	// Leftovers from an earlier unarchived run are discarded.
	require.NoError(t, f.v.PreparePartitions())
	require.NoError(t, os.WriteFile(filepath.Join(f.parts.Quarantine, "stale.csv"), []byte("x"), 0o644))

	report, err := f.v.Run(context.Background(), f.intake, s)
	require.NoError(t, err)

	assert.Equal(t, good, report.AcceptedNames())
	assert.ElementsMatch(t, []string{"fraudDetection_2023101_120000.csv", "claims_20230101_120000.csv"}, report.QuarantinedNames())
	assert.Equal(t, good, dirNames(t, f.parts.Accepted))
	assert.Len(t, dirNames(t, f.parts.Quarantine), 2)

	dest, err := f.v.ArchiveAndClearQuarantine()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"fraudDetection_2023101_120000.csv", "claims_20230101_120000.csv"}, dirNames(t, dest))
	_, err = os.Stat(f.parts.Quarantine)
	assert.True(t, os.IsNotExist(err))
}

func TestRun_QuarantineIsMonotonic(t *testing.T) {
	f := newFixture(t)
	s := testSchema(t)

	// Bad name and bad column count: only the first failure is recorded.
	f.write(t, "fraudDetection_2023101_120000.csv", csvContent(5, 1, 0))
	// Passes the name check, fails the column count.
	f.write(t, "fraudDetection_20230101_120000.csv", csvContent(5, 1, 0))

	report, err := f.v.Run(context.Background(), f.intake, s)
	require.NoError(t, err)
	require.Len(t, report.Quarantined, 2)

	reasons := map[string]Reason{}
	for _, o := range report.Quarantined {
		reasons[o.Name] = o.Reason
	}
	assert.Equal(t, ReasonDateStamp, reasons["fraudDetection_2023101_120000.csv"])
	assert.Equal(t, ReasonColumnCount, reasons["fraudDetection_20230101_120000.csv"])
	assert.Empty(t, report.Accepted)
}

func TestRun_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.v.Run(ctx, f.intake, testSchema(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_MissingIntake(t *testing.T) {
	f := newFixture(t)
	_, err := f.v.Run(context.Background(), filepath.Join(f.intake, "absent"), testSchema(t))

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "list", se.Op)
}
