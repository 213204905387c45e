package transport

import (
	"github.com/TheMichaelB/pinsync/internal/config"
	"github.com/TheMichaelB/pinsync/internal/events"
)

// Service names used in logs and metrics.
const (
	ServiceContent = "ipfs"
	ServiceCluster = "cluster"
	ServicePinning = "pinning"
)

// Endpoints bundles the clients for the three backend services.
type Endpoints struct {
	Content *ContentClient
	Cluster *ClusterClient
	Pinning *PinningClient

	clients []*HTTPClient
}

// NewEndpoints builds one HTTP client per configured service.
func NewEndpoints(cfg *config.APIConfig, logger *events.Logger) *Endpoints {
	content := NewHTTPClient(cfg, ServiceContent, cfg.IPFSURL, logger)
	cluster := NewHTTPClient(cfg, ServiceCluster, cfg.ClusterURL, logger)
	pinning := NewHTTPClient(cfg, ServicePinning, cfg.PinningURL, logger)

	return &Endpoints{
		Content: NewContentClient(content, logger),
		Cluster: NewClusterClient(cluster, logger),
		Pinning: NewPinningClient(pinning, logger),
		clients: []*HTTPClient{content, cluster, pinning},
	}
}

// SetObserver installs fn on every underlying HTTP client.
func (e *Endpoints) SetObserver(fn RequestObserver) {
	for _, c := range e.clients {
		c.SetObserver(fn)
	}
}
