package artifact

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// Encode gob-encodes v into an artifact payload.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode decodes a payload produced by Encode into v.
func Decode(payload []byte, v any) error {
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(v); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	return nil
}

// SaveValue encodes v and stores it under key.
func (s *Store) SaveValue(key, kind, algorithm string, clusterID int, v any) error {
	payload, err := Encode(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	return s.Save(Artifact{
		Key:       key,
		Kind:      kind,
		Algorithm: algorithm,
		ClusterID: clusterID,
		Payload:   payload,
	})
}

// LoadValue loads the artifact under key and decodes its payload into v.
func (s *Store) LoadValue(key string, v any) (*Artifact, error) {
	a, err := s.Load(key)
	if err != nil {
		return nil, err
	}
	if err := Decode(a.Payload, v); err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	return a, nil
}
