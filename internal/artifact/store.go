// Package artifact persists fitted models. Each key owns one directory
// holding exactly one serialized artifact, and a bbolt index records
// metadata and the classifier trained for each cluster.
package artifact

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// IndexFile is the name of the bbolt index inside the models directory.
const IndexFile = "index.db"

// Artifact kinds.
const (
	KindPartitioner = "Partitioner"
	KindClassifier  = "Classifier"
	KindEncoder     = "Encoder"
)

// NoCluster marks an artifact that is not bound to a cluster.
const NoCluster = -1

var (
	bucketMeta     = []byte("artifacts")
	bucketClusters = []byte("clusters")
)

// Artifact is one persisted model and the metadata needed to find it.
type Artifact struct {
	Key       string
	Kind      string
	Algorithm string
	ClusterID int
	Payload   []byte
	CreatedAt time.Time
}

// Meta describes a stored artifact without its payload.
type Meta struct {
	Key       string    `json:"key"`
	Kind      string    `json:"kind"`
	Algorithm string    `json:"algorithm"`
	ClusterID int       `json:"cluster_id"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// NotFoundError is returned when no artifact exists for a key or cluster.
type NotFoundError struct {
	Key       string
	ClusterID int
}

func (e *NotFoundError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("artifact not found for cluster %d", e.ClusterID)
	}
	return fmt.Sprintf("artifact not found: %s", e.Key)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// KeyForCluster returns the storage key of the classifier trained for a
// cluster, for example "GradientBoosting-3".
func KeyForCluster(algorithm string, clusterID int) string {
	return fmt.Sprintf("%s-%d", algorithm, clusterID)
}

// Store is a directory of artifact slots plus its index.
type Store struct {
	dir    string
	db     *bbolt.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens or creates the store rooted at dir.
func Open(dir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create models directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(dir, IndexFile), 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open artifact index: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketClusters)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init artifact index: %w", err)
	}

	return &Store{dir: dir, db: db, logger: logger, now: time.Now}, nil
}

// Close closes the index.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dir returns the models directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) slot(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *Store) file(key string) string {
	return filepath.Join(s.slot(key), key+".gob")
}

func validKey(key string) error {
	switch {
	case key == "":
		return errors.New("artifact key is empty")
	case strings.ContainsAny(key, `/\`), strings.HasPrefix(key, "."):
		return fmt.Errorf("invalid artifact key %q", key)
	case key == IndexFile:
		return fmt.Errorf("artifact key %q is reserved", key)
	}
	return nil
}

// Save replaces the artifact stored under a.Key. The new file is written
// to a temporary name and renamed into place, so the previous artifact
// stays readable until the replacement is complete.
func (s *Store) Save(a Artifact) error {
	if err := validKey(a.Key); err != nil {
		return err
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&a); err != nil {
		return fmt.Errorf("encode artifact %s: %w", a.Key, err)
	}

	slot := s.slot(a.Key)
	if err := os.MkdirAll(slot, 0o755); err != nil {
		return fmt.Errorf("create slot %s: %w", a.Key, err)
	}

	tmp := filepath.Join(slot, "."+a.Key+".tmp")
	if err := writeSynced(tmp, buf.Bytes()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write artifact %s: %w", a.Key, err)
	}
	final := s.file(a.Key)
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace artifact %s: %w", a.Key, err)
	}

	// The slot holds exactly one artifact.
	entries, err := os.ReadDir(slot)
	if err != nil {
		return fmt.Errorf("read slot %s: %w", a.Key, err)
	}
	for _, e := range entries {
		if e.Name() == filepath.Base(final) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(slot, e.Name())); err != nil {
			return fmt.Errorf("clean slot %s: %w", a.Key, err)
		}
	}

	meta := Meta{
		Key:       a.Key,
		Kind:      a.Kind,
		Algorithm: a.Algorithm,
		ClusterID: a.ClusterID,
		Size:      len(a.Payload),
		CreatedAt: a.CreatedAt,
	}
	if err := s.index(meta); err != nil {
		return err
	}

	s.logger.Debug("artifact saved", "key", a.Key, "kind", a.Kind, "bytes", buf.Len())
	return nil
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func clusterKey(id int) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(int64(id)))
	return b
}

func (s *Store) index(meta Meta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketMeta).Put([]byte(meta.Key), data); err != nil {
			return err
		}
		if meta.Kind != KindClassifier || meta.ClusterID == NoCluster {
			return nil
		}

		clusters := tx.Bucket(bucketClusters)
		// A cluster maps to one classifier; drop the slot of a
		// different algorithm trained for it earlier.
		if prev := clusters.Get(clusterKey(meta.ClusterID)); prev != nil && string(prev) != meta.Key {
			if err := tx.Bucket(bucketMeta).Delete(prev); err != nil {
				return err
			}
			if err := os.RemoveAll(s.slot(string(prev))); err != nil {
				return err
			}
		}
		return clusters.Put(clusterKey(meta.ClusterID), []byte(meta.Key))
	})
}

// Load reads the artifact stored under key.
func (s *Store) Load(key string) (*Artifact, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.file(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, &NotFoundError{Key: key, ClusterID: NoCluster}
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", key, err)
	}

	var a Artifact
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&a); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", key, err)
	}
	return &a, nil
}

// ResolveKeyForCluster returns the key of the classifier trained for
// the cluster.
func (s *Store) ResolveKeyForCluster(id int) (string, error) {
	var key string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if v := tx.Bucket(bucketClusters).Get(clusterKey(id)); v != nil {
			key = string(v)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if key == "" {
		return "", &NotFoundError{ClusterID: id}
	}
	return key, nil
}

// List returns the metadata of every stored artifact ordered by key.
func (s *Store) List() ([]Meta, error) {
	var out []Meta
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketMeta).ForEach(func(_, v []byte) error {
			var m Meta
			if err := json.Unmarshal(v, &m); err != nil {
				return err
			}
			out = append(out, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Reset removes every slot and index entry.
func (s *Store) Reset() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read models directory: %w", err)
	}
	for _, e := range entries {
		if e.Name() == IndexFile || strings.HasPrefix(e.Name(), IndexFile) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			return fmt.Errorf("remove slot %s: %w", e.Name(), err)
		}
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketMeta, bucketClusters} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}
