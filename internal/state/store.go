package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Store is the durable string-keyed cache. It is never authoritative; the
// cluster listing overwrites what it holds.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error

	// Delete removes key. Missing keys are not an error.
	Delete(key string) error

	// Keys lists all stored keys in sorted order.
	Keys() ([]string, error)

	// Close releases resources.
	Close() error
}

// Errors
var (
	ErrNotFound = errors.New("key not found")
	ErrCorrupt  = errors.New("stored value is corrupt")
	ErrClosed   = errors.New("store is closed")
)

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1

// Well-known keys.
const (
	KeyPins       = "pins.v1"
	KeyTagOptions = "tag_options.v1"
	KeyAccount    = "account.v1"
)

// GetJSON decodes the value stored under key into v.
func GetJSON(s Store, key string, v interface{}) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(s Store, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.Set(key, data)
}

// Migrate copies every key from src to dst and returns the number copied.
func Migrate(src, dst Store) (int, error) {
	keys, err := src.Keys()
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}

	copied := 0
	for _, key := range keys {
		value, err := src.Get(key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return copied, fmt.Errorf("read %s: %w", key, err)
		}
		if err := dst.Set(key, value); err != nil {
			return copied, fmt.Errorf("write %s: %w", key, err)
		}
		copied++
	}

	return copied, nil
}

func sortedKeys(keys []string) []string {
	sort.Strings(keys)
	return keys
}
