package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/TheMichaelB/pinsync/internal/events"
	"github.com/TheMichaelB/pinsync/internal/models"
)

// Cluster is the cluster pin API.
type Cluster interface {
	Pin(ctx context.Context, cid, name string, meta models.Metadata) error
	GetPin(ctx context.Context, cid string) (models.Record, error)
	ListPins(ctx context.Context) ([]models.Record, error)
	Unpin(ctx context.Context, cid string) error
	Peers(ctx context.Context) (int, error)
}

// Pinner pins an identifier with metadata. Both the cluster and the
// fallback pinning service satisfy it.
type Pinner interface {
	Pin(ctx context.Context, cid, name string, meta models.Metadata) error
}

// ClusterClient talks to the cluster REST API.
type ClusterClient struct {
	http   *HTTPClient
	logger *events.Logger
}

// NewClusterClient wraps an HTTP client pointed at the cluster API.
func NewClusterClient(httpClient *HTTPClient, logger *events.Logger) *ClusterClient {
	return &ClusterClient{
		http:   httpClient,
		logger: logger.WithField("component", "cluster_client"),
	}
}

func pinPath(cid string) string {
	return "/pins/" + url.PathEscape(cid)
}

// Pin pins cid with the full metadata record. The same call replaces the
// metadata of an existing pin.
func (c *ClusterClient) Pin(ctx context.Context, cid, name string, meta models.Metadata) error {
	path := pinPath(cid)
	resp, err := c.http.Post(ctx, path, meta.Query(name), nil, "")
	if err != nil {
		return err
	}

	c.logger.WithFields(map[string]interface{}{
		"cid":    cid,
		"status": resp.StatusCode,
	}).Debug("Pin response")

	return checkStatus(resp, http.MethodPost, path)
}

// GetPin looks up a single pin.
func (c *ClusterClient) GetPin(ctx context.Context, cid string) (models.Record, error) {
	path := pinPath(cid)
	resp, err := c.http.Get(ctx, path, nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(resp, http.MethodGet, path); err != nil {
		return nil, err
	}

	records := models.ParseRecords(resp.Text())
	if len(records) == 0 {
		return models.Record{}, nil
	}
	return records[0], nil
}

// ListPins fetches the full pin listing. 204 means no pins.
func (c *ClusterClient) ListPins(ctx context.Context) ([]models.Record, error) {
	resp, err := c.http.Get(ctx, "/pins", nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if err := checkStatus(resp, http.MethodGet, "/pins"); err != nil {
		return nil, err
	}
	return models.ParseRecords(resp.Text()), nil
}

// Unpin removes the pin for cid.
func (c *ClusterClient) Unpin(ctx context.Context, cid string) error {
	path := pinPath(cid)
	resp, err := c.http.Delete(ctx, path, nil)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.MethodDelete, path)
}

// Peers returns the number of cluster peers.
func (c *ClusterClient) Peers(ctx context.Context) (int, error) {
	resp, err := c.http.Get(ctx, "/peers", nil)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode == http.StatusNoContent {
		return 0, nil
	}
	if err := checkStatus(resp, http.MethodGet, "/peers"); err != nil {
		return 0, err
	}
	return countPeers(resp.Body), nil
}

// countPeers reads a JSON array or object, falling back to NDJSON.
func countPeers(body []byte) int {
	var doc interface{}
	if err := json.Unmarshal(bytes.TrimSpace(body), &doc); err == nil {
		switch v := doc.(type) {
		case []interface{}:
			return len(v)
		case map[string]interface{}:
			return len(v)
		}
	}
	return len(models.ParseRecords(string(body)))
}

// PinningClient is the fallback pinning service, used only when a cluster
// pin fails.
type PinningClient struct {
	http   *HTTPClient
	logger *events.Logger
}

// NewPinningClient wraps an HTTP client pointed at the pinning service.
func NewPinningClient(httpClient *HTTPClient, logger *events.Logger) *PinningClient {
	return &PinningClient{
		http:   httpClient,
		logger: logger.WithField("component", "pinning_client"),
	}
}

type pinRequest struct {
	CID  string            `json:"cid"`
	Name string            `json:"name"`
	Meta map[string]string `json:"meta"`
}

// Pin posts {cid, name, meta} as JSON.
func (c *PinningClient) Pin(ctx context.Context, cid, name string, meta models.Metadata) error {
	body, err := json.Marshal(pinRequest{
		CID:  cid,
		Name: models.StripFolderMarker(name),
		Meta: meta,
	})
	if err != nil {
		return fmt.Errorf("marshal pin request: %w", err)
	}

	resp, err := c.http.Post(ctx, "/pins", nil, bytes.NewReader(body), "application/json")
	if err != nil {
		return err
	}

	c.logger.WithFields(map[string]interface{}{
		"cid":    cid,
		"status": resp.StatusCode,
	}).Debug("Pinning service response")

	return checkStatus(resp, http.MethodPost, "/pins")
}
