package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/TheMichaelB/pinsync/internal/config"
	"github.com/TheMichaelB/pinsync/internal/events"
	"github.com/TheMichaelB/pinsync/internal/models"
)

// ErrFileTooLarge is returned for files above the size limit.
var ErrFileTooLarge = errors.New("file too large")

// Walker turns local files and folders into upload items.
type Walker struct {
	logger *events.Logger

	// Security settings
	allowSymlinks bool
	includeHidden bool
	maxFileSize   int64
	maxPathLength int
}

// NewWalker creates a walker with the upload limits from cfg.
func NewWalker(cfg config.UploadConfig, logger *events.Logger) *Walker {
	w := &Walker{
		logger:        logger.WithField("component", "walker"),
		allowSymlinks: cfg.FollowSymlinks,
		includeHidden: cfg.IncludeHidden,
		maxFileSize:   cfg.MaxFileSize,
		maxPathLength: 4096,
	}
	if w.maxFileSize <= 0 {
		w.maxFileSize = 1024 * 1024 * 1024 // 1GB
	}
	return w
}

// Collect returns every file under root, sorted by relative path. Relative
// paths start with root's base name, the shape a folder upload expects.
func (w *Walker) Collect(root string) ([]models.UploadItem, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve folder: %w", err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat folder: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", root)
	}

	base := filepath.Base(absRoot)
	var items []models.UploadItem

	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if p == absRoot {
			return nil
		}

		if !w.includeHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			if !w.allowSymlinks {
				w.logger.WithField("path", p).Debug("Skipping symlink")
				return nil
			}
			target, err := os.Stat(p)
			if err != nil || target.IsDir() {
				w.logger.WithField("path", p).Debug("Skipping symlink to directory or missing target")
				return nil
			}
		} else if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return err
		}
		item, err := w.item(p, path.Join(base, filepath.ToSlash(rel)))
		if err != nil {
			return err
		}
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].RelativePath < items[j].RelativePath
	})

	w.logger.WithFields(map[string]interface{}{
		"root":  root,
		"files": len(items),
		"bytes": models.TotalSize(items),
	}).Debug("Collected folder")

	return items, nil
}

// Files returns one top-level item per path, named by its base name.
func (w *Walker) Files(paths []string) ([]models.UploadItem, error) {
	items := make([]models.UploadItem, 0, len(paths))
	for _, p := range paths {
		info, err := os.Lstat(p)
		if err != nil {
			return nil, fmt.Errorf("stat file: %w", err)
		}
		if info.Mode()&os.ModeSymlink != 0 && !w.allowSymlinks {
			return nil, fmt.Errorf("symlinks not allowed: %s", p)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("is a directory: %s", p)
		}

		item, err := w.item(p, filepath.Base(p))
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

// item builds a lazily opened upload item for the file at p.
func (w *Walker) item(p, rel string) (models.UploadItem, error) {
	if err := w.validatePath(rel); err != nil {
		return models.UploadItem{}, err
	}

	info, err := os.Stat(p)
	if err != nil {
		return models.UploadItem{}, fmt.Errorf("stat file: %w", err)
	}
	if info.Size() > w.maxFileSize {
		return models.UploadItem{}, fmt.Errorf("%w: %s is %d bytes (max: %d)", ErrFileTooLarge, rel, info.Size(), w.maxFileSize)
	}

	return models.UploadItem{
		RelativePath: models.NormalizePath(rel),
		Size:         info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(p)
		},
	}, nil
}

// validatePath checks a relative upload path.
func (w *Walker) validatePath(rel string) error {
	if strings.ContainsRune(rel, 0) {
		return fmt.Errorf("path contains null bytes: %q", rel)
	}
	if len(rel) > w.maxPathLength {
		return fmt.Errorf("path too long: %d characters (max: %d)", len(rel), w.maxPathLength)
	}
	return validatePlatformPath(rel)
}

// validatePlatformPath checks platform-specific name restrictions.
func validatePlatformPath(rel string) error {
	if runtime.GOOS != "windows" {
		return nil
	}

	reserved := map[string]bool{
		"CON": true, "PRN": true, "AUX": true, "NUL": true,
		"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
		"COM6": true, "COM7": true, "COM8": true, "COM9": true,
		"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
		"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
	}
	for _, part := range strings.Split(rel, "/") {
		name := strings.ToUpper(strings.TrimSuffix(part, path.Ext(part)))
		if reserved[name] {
			return fmt.Errorf("invalid path: contains reserved name '%s'", part)
		}
	}
	return nil
}
