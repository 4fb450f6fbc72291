package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Keys under which session state is persisted.
const (
	KeyRules         = "rules"
	KeyTopologyNodes = "topology_nodes"
	KeyTopologyEdges = "topology_edges"
	KeyLastReport    = "last_report"
)

// KVStorage handles key-value persistence of JSON documents.
type KVStorage struct {
	db *DB
}

// NewKVStorage creates a new key-value storage handler.
func NewKVStorage(db *DB) *KVStorage {
	return &KVStorage{db: db}
}

// Get returns the raw value for key. The bool is false when the key is absent.
func (s *KVStorage) Get(key string) ([]byte, bool, error) {
	var value string
	err := s.db.WithRLock(func() error {
		return s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	})
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return []byte(value), true, nil
}

// Put stores value under key, replacing any previous value.
func (s *KVStorage) Put(key string, value []byte) error {
	query := `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			  ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	err := s.db.WithLock(func() error {
		_, err := s.db.Exec(query, key, string(value), time.Now())
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write key %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *KVStorage) Delete(key string) error {
	err := s.db.WithLock(func() error {
		_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// Keys lists stored keys in alphabetical order.
func (s *KVStorage) Keys() ([]string, error) {
	var keys []string
	err := s.db.WithRLock(func() error {
		rows, err := s.db.Query(`SELECT key FROM kv ORDER BY key`)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				return err
			}
			keys = append(keys, k)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	return keys, nil
}

// LoadJSON decodes the value under key into dst. It reports false when the key is absent.
func (s *KVStorage) LoadJSON(key string, dst interface{}) (bool, error) {
	data, ok, err := s.Get(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return true, fmt.Errorf("failed to decode key %q: %w", key, err)
	}
	return true, nil
}

// SaveJSON encodes v and stores it under key.
func (s *KVStorage) SaveJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode key %q: %w", key, err)
	}
	return s.Put(key, data)
}
