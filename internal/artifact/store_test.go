package artifact

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "models"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.now = func() time.Time { return time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC) }
	return s
}

func slotEntries(t *testing.T, s *Store, key string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(s.Dir(), key))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

type centroids struct {
	K int
	C [][]float64
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	want := centroids{K: 2, C: [][]float64{{0, 1}, {5, 6}}}
	require.NoError(t, s.SaveValue("KMeans", KindPartitioner, "KMeans", NoCluster, want))

	var got centroids
	a, err := s.LoadValue("KMeans", &got)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, KindPartitioner, a.Kind)
	assert.Equal(t, NoCluster, a.ClusterID)
	assert.Equal(t, []string{"KMeans.gob"}, slotEntries(t, s, "KMeans"))
}

func TestSave_ReplacesWholeSlot(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(Artifact{Key: "KMeans", Kind: KindPartitioner, Payload: []byte("old")}))

	// Leftovers from an interrupted write are removed on the next save.
	stray := filepath.Join(s.Dir(), "KMeans", ".KMeans.tmp")
	require.NoError(t, os.WriteFile(stray, []byte("partial"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "KMeans", "extra.sav"), nil, 0o644))

	require.NoError(t, s.Save(Artifact{Key: "KMeans", Kind: KindPartitioner, Payload: []byte("new")}))

	a, err := s.Load("KMeans")
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), a.Payload)
	assert.Equal(t, []string{"KMeans.gob"}, slotEntries(t, s, "KMeans"))
}

func TestLoad_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Load("missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "missing", nf.Key)
	assert.True(t, IsNotFound(err))
}

func TestInvalidKeys(t *testing.T) {
	s := newTestStore(t)
	for _, key := range []string{"", "../x", "a/b", ".hidden", IndexFile} {
		assert.Error(t, s.Save(Artifact{Key: key}), "key %q", key)
	}
}

func TestResolveKeyForCluster_Exact(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []int{1, 10, 11} {
		key := KeyForCluster("LogisticRegression", id)
		require.NoError(t, s.Save(Artifact{Key: key, Kind: KindClassifier, Algorithm: "LogisticRegression", ClusterID: id}))
	}

	key, err := s.ResolveKeyForCluster(1)
	require.NoError(t, err)
	assert.Equal(t, "LogisticRegression-1", key)

	key, err = s.ResolveKeyForCluster(10)
	require.NoError(t, err)
	assert.Equal(t, "LogisticRegression-10", key)

	_, err = s.ResolveKeyForCluster(0)
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, 0, nf.ClusterID)
}

func TestResolveKeyForCluster_RetrainReplacesAlgorithm(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(Artifact{Key: "LogisticRegression-2", Kind: KindClassifier, ClusterID: 2}))
	require.NoError(t, s.Save(Artifact{Key: "GradientBoosting-2", Kind: KindClassifier, ClusterID: 2}))

	key, err := s.ResolveKeyForCluster(2)
	require.NoError(t, err)
	assert.Equal(t, "GradientBoosting-2", key)

	_, err = s.Load("LogisticRegression-2")
	assert.True(t, IsNotFound(err))

	metas, err := s.List()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "GradientBoosting-2", metas[0].Key)
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(Artifact{Key: "KMeans", Kind: KindPartitioner, ClusterID: NoCluster, Payload: []byte("abc")}))
	require.NoError(t, s.Save(Artifact{Key: "Encoder", Kind: KindEncoder, ClusterID: NoCluster}))

	metas, err := s.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "Encoder", metas[0].Key)
	assert.Equal(t, "KMeans", metas[1].Key)
	assert.Equal(t, 3, metas[1].Size)
	assert.Equal(t, 2024, metas[1].CreatedAt.Year())
}

func TestReset(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(Artifact{Key: "KMeans", Kind: KindPartitioner, ClusterID: NoCluster}))
	require.NoError(t, s.Save(Artifact{Key: "GradientBoosting-0", Kind: KindClassifier, ClusterID: 0}))

	require.NoError(t, s.Reset())

	metas, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, metas)

	_, err = s.ResolveKeyForCluster(0)
	assert.True(t, IsNotFound(err))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, IndexFile, entries[0].Name())
}

func TestReopen_KeepsIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "models")
	s, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Save(Artifact{Key: "GradientBoosting-4", Kind: KindClassifier, ClusterID: 4}))
	require.NoError(t, s.Close())

	s, err = Open(dir, nil)
	require.NoError(t, err)
	defer s.Close()

	key, err := s.ResolveKeyForCluster(4)
	require.NoError(t, err)
	assert.Equal(t, "GradientBoosting-4", key)
}
