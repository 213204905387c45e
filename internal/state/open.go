package state

import (
	"fmt"

	"github.com/TheMichaelB/pinsync/internal/config"
	"github.com/TheMichaelB/pinsync/internal/events"
)

// Open creates the backend selected by cfg.State.
func Open(cfg *config.Config, logger *events.Logger) (Store, error) {
	switch cfg.State.Backend {
	case "json", "":
		return NewJSONStore(cfg.StatePath(), logger)
	case "sqlite":
		return NewSQLiteStore(cfg.StatePath(), logger)
	case "bolt":
		return NewBoltStore(cfg.StatePath(), logger)
	case "s3":
		return NewS3Store(cfg.State.S3Bucket, cfg.State.S3Prefix, logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown state backend: %s", cfg.State.Backend)
	}
}
