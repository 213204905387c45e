package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/TheMichaelB/pinsync/internal/events"
	"github.com/TheMichaelB/pinsync/internal/models"
)

// ContentStore is the content-addressed store API (add plus the mutable
// filesystem used for staging folders).
type ContentStore interface {
	Add(ctx context.Context, item models.UploadItem, opts AddOptions) (*AddResult, error)
	MakeDir(ctx context.Context, path string) error
	Copy(ctx context.Context, cid, dst string) error
	StatHash(ctx context.Context, path string) (string, error)
	Remove(ctx context.Context, path string) error
}

// AddOptions controls a content add.
type AddOptions struct {
	// NoPin adds without a local pin, for folder leaves that are only staged.
	NoPin bool
}

// AddResult is the record selected from an add response.
type AddResult struct {
	CID  string
	Name string
	Size string
}

// ContentClient talks to the content store HTTP API.
type ContentClient struct {
	http   *HTTPClient
	logger *events.Logger
}

// NewContentClient wraps an HTTP client pointed at the content store.
func NewContentClient(httpClient *HTTPClient, logger *events.Logger) *ContentClient {
	return &ContentClient{
		http:   httpClient,
		logger: logger.WithField("component", "content_client"),
	}
}

const (
	addPath   = "/api/v0/add"
	mkdirPath = "/api/v0/files/mkdir"
	cpPath    = "/api/v0/files/cp"
	statPath  = "/api/v0/files/stat"
	rmPath    = "/api/v0/files/rm"
)

// Add streams the item as a multipart upload. A non-2xx status is returned
// as *models.HTTPError; a response without an identifier as
// models.ErrNoIdentifierReturned.
func (c *ContentClient) Add(ctx context.Context, item models.UploadItem, opts AddOptions) (*AddResult, error) {
	query := url.Values{}
	query.Set("progress", "false")
	if opts.NoPin {
		query.Set("pin", "false")
	} else {
		query.Set("wrap-with-directory", "false")
	}

	body, contentType := multipartBody(item)

	resp, err := c.http.Post(ctx, addPath, query, body, contentType)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.MethodPost, addPath); err != nil {
		return nil, err
	}

	c.logger.WithFields(map[string]interface{}{
		"path": item.RelativePath,
		"raw":  truncate(resp.Body, 1024),
	}).Debug("Add response")

	result, ok := ParseAddResponse(resp.Text())
	if !ok {
		return nil, models.ErrNoIdentifierReturned
	}
	return result, nil
}

// ParseAddResponse selects the first record with a non-empty Name, else the
// last record, and reads its identifier.
func ParseAddResponse(raw string) (*AddResult, bool) {
	records := models.ParseRecords(raw)
	if len(records) == 0 {
		return nil, false
	}

	selected := records[len(records)-1]
	for _, r := range records {
		if _, ok := r.String("Name"); ok {
			selected = r
			break
		}
	}

	cid, ok := models.AddIdentifierField.String(selected)
	if !ok {
		return nil, false
	}

	name, _ := selected.String("Name")
	size, _ := selected.String("Size")
	return &AddResult{CID: cid, Name: name, Size: size}, true
}

// MakeDir creates path and any missing parents.
func (c *ContentClient) MakeDir(ctx context.Context, path string) error {
	query := url.Values{}
	query.Set("arg", path)
	query.Set("parents", "true")
	return c.post(ctx, mkdirPath, query)
}

// Copy places the content at cid into the staging tree at dst.
func (c *ContentClient) Copy(ctx context.Context, cid, dst string) error {
	query := url.Values{}
	query.Add("arg", "/ipfs/"+cid)
	query.Add("arg", dst)
	return c.post(ctx, cpPath, query)
}

// StatHash returns the aggregate identifier of the tree at path.
func (c *ContentClient) StatHash(ctx context.Context, path string) (string, error) {
	query := url.Values{}
	query.Set("arg", path)
	query.Set("hash", "true")

	resp, err := c.http.Post(ctx, statPath, query, nil, "")
	if err != nil {
		return "", err
	}
	if err := checkStatus(resp, http.MethodPost, statPath); err != nil {
		return "", err
	}

	var stat struct {
		Hash string `json:"Hash"`
	}
	if err := json.Unmarshal(resp.Body, &stat); err != nil {
		return "", fmt.Errorf("parse stat response: %w", err)
	}
	if stat.Hash == "" {
		return "", models.ErrNoIdentifierReturned
	}
	return stat.Hash, nil
}

// Remove deletes path recursively.
func (c *ContentClient) Remove(ctx context.Context, path string) error {
	query := url.Values{}
	query.Set("arg", path)
	query.Set("recursive", "true")
	return c.post(ctx, rmPath, query)
}

func (c *ContentClient) post(ctx context.Context, path string, query url.Values) error {
	resp, err := c.http.Post(ctx, path, query, nil, "")
	if err != nil {
		return err
	}
	return checkStatus(resp, http.MethodPost, path)
}

// multipartBody streams the item through a pipe so large files are never
// held in memory.
func multipartBody(item models.UploadItem) (io.Reader, string) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writePart(mw, item)
		if cerr := mw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err)
	}()

	return pr, mw.FormDataContentType()
}

func writePart(mw *multipart.Writer, item models.UploadItem) error {
	part, err := mw.CreateFormFile("file", item.BaseName())
	if err != nil {
		return fmt.Errorf("create form file: %w", err)
	}

	if item.Open == nil {
		return nil
	}
	src, err := item.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", item.RelativePath, err)
	}
	defer src.Close()

	if _, err := io.Copy(part, src); err != nil {
		return fmt.Errorf("copy %s: %w", item.RelativePath, err)
	}
	return nil
}
