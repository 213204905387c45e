package state

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/pinsync/internal/events"
)

// JSONStore keeps one JSON file per key, written atomically with a checksum
// and a backup of the previous version.
type JSONStore struct {
	baseDir string
	logger  *events.Logger

	mu sync.RWMutex
}

// entry is the on-disk wrapper for one value.
type entry struct {
	Key           string          `json:"key"`
	Value         json.RawMessage `json:"value"`
	SchemaVersion int             `json:"schema_version"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Checksum      string          `json:"checksum"`
}

// NewJSONStore creates a JSON file store rooted at baseDir.
func NewJSONStore(baseDir string, logger *events.Logger) (*JSONStore, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	return &JSONStore{
		baseDir: baseDir,
		logger:  logger.WithField("component", "json_store"),
	}, nil
}

// Get reads a value, falling back to the backup when the file is damaged.
func (s *JSONStore) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := s.keyPath(key)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}

	value, err := decodeEntry(data)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Warn("State file damaged, trying backup")
		if backup, berr := s.loadBackup(key); berr == nil {
			return backup, nil
		}
		return nil, ErrCorrupt
	}

	return value, nil
}

// Set writes a value atomically. Values must be valid JSON.
func (s *JSONStore) Set(key string, value []byte) error {
	var compact bytes.Buffer
	if err := json.Compact(&compact, value); err != nil {
		return fmt.Errorf("value for %s is not valid JSON: %w", key, err)
	}
	value = compact.Bytes()

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.keyPath(key)

	s.logger.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(value),
	}).Debug("Saving value")

	hash := sha256.Sum256(value)
	data, err := json.MarshalIndent(entry{
		Key:           key,
		Value:         json.RawMessage(value),
		SchemaVersion: CurrentSchemaVersion,
		UpdatedAt:     time.Now().UTC(),
		Checksum:      hex.EncodeToString(hash[:]),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := copyFile(path, path+".backup"); err != nil {
			s.logger.WithError(err).Warn("Failed to create backup")
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if file, err := os.Open(tmpPath); err == nil {
		_ = file.Sync()
		file.Close()
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename state file: %w", err)
	}

	return nil
}

// Delete removes a value and its backup.
func (s *JSONStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.keyPath(key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove state file: %w", err)
	}
	_ = os.Remove(path + ".backup")
	return nil
}

// Keys lists stored keys.
func (s *JSONStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("read state directory: %w", err)
	}

	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}

	return sortedKeys(keys), nil
}

// Close releases resources.
func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) keyPath(key string) string {
	return filepath.Join(s.baseDir, url.PathEscape(key)+".json")
}

func (s *JSONStore) loadBackup(key string) ([]byte, error) {
	data, err := os.ReadFile(s.keyPath(key) + ".backup")
	if err != nil {
		return nil, err
	}
	return decodeEntry(data)
}

func decodeEntry(data []byte) ([]byte, error) {
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	// MarshalIndent reformats the value, so checksums cover the compact form.
	var compact bytes.Buffer
	if err := json.Compact(&compact, e.Value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	e.Value = compact.Bytes()

	if e.Checksum != "" {
		hash := sha256.Sum256(e.Value)
		if hex.EncodeToString(hash[:]) != e.Checksum {
			return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
		}
	}

	if e.SchemaVersion > CurrentSchemaVersion {
		return nil, fmt.Errorf("%w: schema version %d", ErrCorrupt, e.SchemaVersion)
	}

	return []byte(e.Value), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
