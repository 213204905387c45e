package pins

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/TheMichaelB/pinsync/internal/models"
	"github.com/TheMichaelB/pinsync/internal/transport"
)

// Upload kinds for metrics.
const (
	kindFile   = "file"
	kindFolder = "folder"
)

// cleanupTimeout bounds the staging removal after a folder upload.
const cleanupTimeout = 30 * time.Second

// ProgressFunc is called after each unit of work with the number done and
// the total.
type ProgressFunc func(current, total int)

// UploadOptions describes the pin to create.
type UploadOptions struct {
	// Name is the display name. Files default to their base name, folders
	// to the first path segment.
	Name     string
	Tags     []string
	Owner    string
	Progress ProgressFunc
}

// BatchResult tallies a multi-file upload.
type BatchResult struct {
	Succeeded int
	Failed    int
	Items     []models.PinnedItem
	Errors    []error
}

// UploadFile adds one payload, pins it with full metadata and waits for it
// to become visible. Non-visibility is logged, not returned.
func (s *Service) UploadFile(ctx context.Context, item models.UploadItem, opts UploadOptions) (*models.PinnedItem, error) {
	ctx, logger := s.withOperation(ctx, "upload_file")

	pinned, err := s.uploadFile(ctx, item, opts)
	s.metrics.RecordUpload(kindFile, item.Size, err)
	if err != nil {
		logger.WithError(err).WithField("path", item.RelativePath).Error("Upload failed")
		return nil, err
	}

	s.set.Prepend(*pinned)
	return pinned, nil
}

func (s *Service) uploadFile(ctx context.Context, item models.UploadItem, opts UploadOptions) (*models.PinnedItem, error) {
	logger := s.logger.WithField("path", item.RelativePath)
	name := opts.Name
	if name == "" {
		name = item.BaseName()
	}
	tags := models.NormalizeTags(opts.Tags)

	logger.Debug("Adding content")
	added, err := s.content.Add(ctx, item, transport.AddOptions{})
	if err != nil {
		return nil, addError(item.RelativePath, err)
	}
	logger = logger.WithField("cid", added.CID)

	var relativePath string
	if item.Dir() != "" {
		relativePath = item.RelativePath
	}
	uploadedAt := s.now()
	meta := models.FileMetadata(name, item.Size, tags, opts.Owner, relativePath, uploadedAt)

	logger.Debug("Pinning content")
	if err := s.pinWithFallback(ctx, added.CID, name, meta); err != nil {
		return nil, err
	}

	s.waiter.Wait(ctx, added.CID)

	logger.WithField("size", item.Size).Info("Uploaded file")

	return &models.PinnedItem{
		ID:           s.newID(),
		CID:          added.CID,
		Name:         name,
		Size:         item.Size,
		CreatedAt:    meta[models.MetaUploadedAt],
		Tags:         tags,
		Owner:        meta[models.MetaOwner],
		RelativePath: relativePath,
	}, nil
}

// UploadBatch uploads items one after another. A failed item is tallied
// and does not stop the rest.
func (s *Service) UploadBatch(ctx context.Context, items []models.UploadItem, opts UploadOptions) *BatchResult {
	ctx, logger := s.withOperation(ctx, "upload_batch")
	result := &BatchResult{}

	for i, item := range items {
		itemOpts := opts
		itemOpts.Name = ""
		itemOpts.Progress = nil

		pinned, err := s.UploadFile(ctx, item, itemOpts)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err)
		} else {
			result.Succeeded++
			result.Items = append(result.Items, *pinned)
		}

		if opts.Progress != nil {
			opts.Progress(i+1, len(items))
		}
	}

	logger.WithFields(map[string]interface{}{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	}).Info("Batch upload finished")

	return result
}

// UploadFolder stages every item in a scratch tree, pins the tree's root
// identifier and removes the scratch tree whatever the outcome.
func (s *Service) UploadFolder(ctx context.Context, items []models.UploadItem, opts UploadOptions) (*models.PinnedItem, error) {
	ctx, logger := s.withOperation(ctx, "upload_folder")

	if len(items) == 0 {
		return nil, errors.New("folder upload: no files")
	}

	total := models.TotalSize(items)
	pinned, err := s.uploadFolder(ctx, items, opts)
	s.metrics.RecordUpload(kindFolder, total, err)
	if err != nil {
		logger.WithError(err).Error("Folder upload failed")
		return nil, err
	}

	s.set.Prepend(*pinned)
	return pinned, nil
}

func (s *Service) uploadFolder(ctx context.Context, items []models.UploadItem, opts UploadOptions) (*models.PinnedItem, error) {
	root := folderRoot(items)
	name := opts.Name
	if name == "" {
		name = root
	}
	tags := models.NormalizeTags(opts.Tags)

	base := fmt.Sprintf("/upload-temp-%d", s.now().UnixMilli())
	stagingRoot := path.Join(base, root)
	logger := s.logger.WithFields(map[string]interface{}{
		"folder":  name,
		"staging": base,
		"files":   len(items),
	})

	// Cleanup outlives a cancelled upload.
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
		defer cancel()
		if rmErr := s.content.Remove(rmCtx, base); rmErr != nil {
			logger.WithError(rmErr).Warn("Failed to remove staging directory")
		} else {
			logger.Debug("Removed staging directory")
		}
	}()

	logger.Debug("Creating staging directory")
	if err := s.content.MakeDir(ctx, stagingRoot); err != nil {
		return nil, &models.PinError{Kind: models.ErrStagingFailed, Path: stagingRoot, Err: err}
	}

	created := map[string]bool{stagingRoot: true}
	for i, item := range items {
		added, err := s.content.Add(ctx, item, transport.AddOptions{NoPin: true})
		if err != nil {
			return nil, &models.PinError{Kind: models.ErrFolderItemFailed, Path: item.RelativePath, Err: err}
		}

		if opts.Progress != nil {
			opts.Progress(i+1, len(items))
		}

		dst := stagePath(base, root, item.RelativePath)
		if dir := path.Dir(dst); !created[dir] {
			if err := s.content.MakeDir(ctx, dir); err != nil && !alreadyExists(err) {
				logger.WithError(err).WithField("dir", dir).Warn("Failed to create staging sub-directory")
			}
			created[dir] = true
		}

		if err := s.content.Copy(ctx, added.CID, dst); err != nil && !alreadyExists(err) {
			return nil, &models.PinError{Kind: models.ErrFolderItemFailed, CID: added.CID, Path: item.RelativePath, Err: err}
		}

		logger.WithFields(map[string]interface{}{
			"path": item.RelativePath,
			"cid":  added.CID,
		}).Debug("Staged file")
	}

	cid, err := s.content.StatHash(ctx, stagingRoot)
	if err != nil {
		return nil, &models.PinError{Kind: models.ErrStagingFailed, Path: stagingRoot, Err: err}
	}
	logger = logger.WithField("cid", cid)

	uploadedAt := s.now()
	size := models.TotalSize(items)
	meta := models.FolderMetadata(name, size, len(items), tags, opts.Owner, uploadedAt)

	if err := s.pinWithFallback(ctx, cid, name, meta); err != nil {
		return nil, err
	}

	s.waiter.Wait(ctx, cid)

	logger.WithField("size", size).Info("Uploaded folder")

	return &models.PinnedItem{
		ID:        s.newID(),
		CID:       cid,
		Name:      models.StripFolderMarker(name),
		Size:      size,
		CreatedAt: meta[models.MetaUploadedAt],
		Tags:      tags,
		Owner:     meta[models.MetaOwner],
		IsFolder:  true,
		FileCount: models.IntPtr(len(items)),
	}, nil
}

// addError classifies a content add failure.
func addError(relativePath string, err error) error {
	if errors.Is(err, models.ErrNoIdentifierReturned) {
		return &models.PinError{Kind: models.ErrNoIdentifierReturned, Path: relativePath}
	}
	return &models.PinError{Kind: models.ErrContentAddFailed, Path: relativePath, Err: err}
}

// folderRoot returns the first path segment shared by the items, or
// "folder" when they have none.
func folderRoot(items []models.UploadItem) string {
	first := items[0].RelativePath
	if i := strings.Index(first, "/"); i > 0 {
		return first[:i]
	}
	return "folder"
}

// stagePath places rel under base/root, whether or not rel already starts
// with root.
func stagePath(base, root, rel string) string {
	return path.Join(base, root, strings.TrimPrefix(rel, root+"/"))
}

func alreadyExists(err error) bool {
	var httpErr *models.HTTPError
	if errors.As(err, &httpErr) {
		return strings.Contains(strings.ToLower(httpErr.Body), "already exists")
	}
	return false
}
