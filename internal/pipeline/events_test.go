package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLog_WriteEvents(t *testing.T) {
	dir := t.TempDir()
	l, err := OpenRunLog(dir, "run-001")
	require.NoError(t, err)
	defer l.Close()

	l.Write(EventRunStart, RunStartData{RunID: "run-001", Mode: "training", BatchDir: "/batch", Schema: "/schema.json"})
	l.Write(EventStageEnd, StageEndData{RunID: "run-001", Stage: "cluster", Status: StatusFailed, DurationMs: 12, Error: "no knee"})

	assert.Equal(t, filepath.Join(dir, "run-001.jsonl"), l.Path())
	content, err := os.ReadFile(l.Path())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 2)

	var evt Event
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &evt))
	assert.Equal(t, EventRunStart, evt.Type)
	assert.Greater(t, evt.Timestamp, int64(0))

	dataBytes, err := json.Marshal(evt.Data)
	require.NoError(t, err)
	var start RunStartData
	require.NoError(t, json.Unmarshal(dataBytes, &start))
	assert.Equal(t, RunStartData{RunID: "run-001", Mode: "training", BatchDir: "/batch", Schema: "/schema.json"}, start)

	var end struct {
		Type string       `json:"type"`
		Data StageEndData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &end))
	assert.Equal(t, EventStageEnd, end.Type)
	assert.Equal(t, "no knee", end.Data.Error)
}

func TestRunLog_AppendsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 2; i++ {
		l, err := OpenRunLog(dir, "run-x")
		require.NoError(t, err)
		l.Write(EventRunEnd, RunEndData{RunID: "run-x", Status: StatusPassed})
		require.NoError(t, l.Close())
	}

	content, err := os.ReadFile(filepath.Join(dir, "run-x.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(content), "\n"))
}

func TestRunLog_NilIsNoop(t *testing.T) {
	var l *RunLog
	l.Write(EventRunStart, nil)
	assert.NoError(t, l.Close())
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"0b6f4c1e-7c1a-4b7e-9d55-1a2b3c4d5e6f", "0b6f4c1e-7c1a-4b7e-9d55-1a2b3c4d5e6f"},
		{"../etc/passwd", "_etc_passwd"},
		{"a b/c", "a_b_c"},
		{"..", "run"},
		{"", "run"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeName(tt.in), "sanitizeName(%q)", tt.in)
	}
}
