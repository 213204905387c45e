package transport

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/TheMichaelB/pinsync/internal/models"
)

// MockContentStore is an in-memory ContentStore for tests. Added content
// gets a deterministic identifier derived from its path and bytes.
type MockContentStore struct {
	mu sync.Mutex

	// Error injection, keyed by relative path for Add and by destination
	// path for MakeDir and Copy.
	AddErrors   map[string]error
	MkdirErrors map[string]error
	CopyErrors  map[string]error
	StatError   error
	RemoveError error

	// Request tracking
	Adds    []MockAdd
	Mkdirs  []string
	Copies  []MockCopy
	Stats   []string
	Removes []string

	// CIDs maps a relative path to the identifier Add returns for it.
	CIDs map[string]string

	// StatHashes maps a staged path to the identifier StatHash returns.
	StatHashes map[string]string

	nextID int
	tree   map[string]string
}

// MockAdd records one Add call.
type MockAdd struct {
	Path  string
	Data  string
	NoPin bool
	CID   string
}

// MockCopy records one Copy call.
type MockCopy struct {
	CID string
	Dst string
}

// NewMockContentStore creates an empty mock store.
func NewMockContentStore() *MockContentStore {
	return &MockContentStore{
		AddErrors:   make(map[string]error),
		MkdirErrors: make(map[string]error),
		CopyErrors:  make(map[string]error),
		CIDs:        make(map[string]string),
		StatHashes:  make(map[string]string),
		tree:        make(map[string]string),
	}
}

// Add mocks a content add.
func (m *MockContentStore) Add(ctx context.Context, item models.UploadItem, opts AddOptions) (*AddResult, error) {
	var data []byte
	if item.Open != nil {
		rc, err := item.Open()
		if err != nil {
			return nil, err
		}
		data, err = io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.AddErrors[item.RelativePath]; ok {
		m.Adds = append(m.Adds, MockAdd{Path: item.RelativePath, Data: string(data), NoPin: opts.NoPin})
		return nil, err
	}

	m.nextID++
	cid, ok := m.CIDs[item.RelativePath]
	if !ok {
		cid = fmt.Sprintf("bafymock%04d", m.nextID)
	}
	m.Adds = append(m.Adds, MockAdd{Path: item.RelativePath, Data: string(data), NoPin: opts.NoPin, CID: cid})

	return &AddResult{CID: cid, Name: item.BaseName(), Size: fmt.Sprint(len(data))}, nil
}

// MakeDir mocks directory creation.
func (m *MockContentStore) MakeDir(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Mkdirs = append(m.Mkdirs, path)
	if err, ok := m.MkdirErrors[path]; ok {
		return err
	}
	return nil
}

// Copy mocks placing content into the staging tree.
func (m *MockContentStore) Copy(ctx context.Context, cid, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Copies = append(m.Copies, MockCopy{CID: cid, Dst: dst})
	if err, ok := m.CopyErrors[dst]; ok {
		return err
	}
	m.tree[dst] = cid
	return nil
}

// StatHash returns the configured hash for path, or one derived from the
// staged entries below it.
func (m *MockContentStore) StatHash(ctx context.Context, path string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Stats = append(m.Stats, path)
	if m.StatError != nil {
		return "", m.StatError
	}
	if h, ok := m.StatHashes[path]; ok {
		return h, nil
	}

	var entries []string
	for p := range m.tree {
		if strings.HasPrefix(p, path+"/") {
			entries = append(entries, p)
		}
	}
	sort.Strings(entries)
	return fmt.Sprintf("bafydir%d", len(entries)), nil
}

// Remove mocks recursive removal.
func (m *MockContentStore) Remove(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Removes = append(m.Removes, path)
	if m.RemoveError != nil {
		return m.RemoveError
	}
	for p := range m.tree {
		if p == path || strings.HasPrefix(p, path+"/") {
			delete(m.tree, p)
		}
	}
	return nil
}

// MockCluster is an in-memory Cluster for tests.
type MockCluster struct {
	mu sync.Mutex

	// Error injection
	PinError   error
	GetError   error
	ListError  error
	UnpinError error
	PeersError error

	// PeerCount is returned by Peers.
	PeerCount int

	// HideFromGet keeps pins out of GetPin for the first N lookups per cid.
	HideFromGet int

	// Request tracking
	PinRequests   []MockPin
	GetRequests   []string
	ListRequests  int
	UnpinRequests []string

	pins      map[string]models.Record
	order     []string
	getCounts map[string]int
}

// MockPin records one Pin call.
type MockPin struct {
	CID  string
	Name string
	Meta models.Metadata
}

// NewMockCluster creates an empty mock cluster.
func NewMockCluster() *MockCluster {
	return &MockCluster{
		pins:      make(map[string]models.Record),
		getCounts: make(map[string]int),
	}
}

// Pin records the pin and stores it in the listing.
func (m *MockCluster) Pin(ctx context.Context, cid, name string, meta models.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.PinRequests = append(m.PinRequests, MockPin{CID: cid, Name: name, Meta: copyMeta(meta)})
	if m.PinError != nil {
		return m.PinError
	}
	m.put(cid, name, meta)
	return nil
}

// AddPin seeds the listing directly.
func (m *MockCluster) AddPin(cid, name string, meta models.Metadata) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.put(cid, name, meta)
}

// AddRecord seeds the listing with a raw record.
func (m *MockCluster) AddRecord(cid string, rec models.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pins[cid]; !ok {
		m.order = append(m.order, cid)
	}
	m.pins[cid] = rec
}

func (m *MockCluster) put(cid, name string, meta models.Metadata) {
	metaObj := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		metaObj[k] = v
	}
	if _, ok := m.pins[cid]; !ok {
		m.order = append(m.order, cid)
	}
	m.pins[cid] = models.Record{
		"cid":  cid,
		"name": name,
		"meta": metaObj,
	}
}

// GetPin returns the stored record, or a 404 *models.HTTPError when absent.
func (m *MockCluster) GetPin(ctx context.Context, cid string) (models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetRequests = append(m.GetRequests, cid)
	if m.GetError != nil {
		return nil, m.GetError
	}

	m.getCounts[cid]++
	if rec, ok := m.pins[cid]; ok && m.getCounts[cid] > m.HideFromGet {
		return rec, nil
	}
	return nil, &models.HTTPError{Method: "GET", Endpoint: pinPath(cid), StatusCode: 404, Body: "not found"}
}

// ListPins returns the listing in insertion order.
func (m *MockCluster) ListPins(ctx context.Context) ([]models.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ListRequests++
	if m.ListError != nil {
		return nil, m.ListError
	}

	records := make([]models.Record, 0, len(m.order))
	for _, cid := range m.order {
		records = append(records, m.pins[cid])
	}
	return records, nil
}

// Unpin removes the pin from the listing.
func (m *MockCluster) Unpin(ctx context.Context, cid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UnpinRequests = append(m.UnpinRequests, cid)
	if m.UnpinError != nil {
		return m.UnpinError
	}

	delete(m.pins, cid)
	for i, c := range m.order {
		if c == cid {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

// Peers returns PeerCount.
func (m *MockCluster) Peers(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.PeersError != nil {
		return 0, m.PeersError
	}
	return m.PeerCount, nil
}

// Pinned reports whether cid is in the listing.
func (m *MockCluster) Pinned(cid string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.pins[cid]
	return ok
}

// LastPin returns the most recent Pin call.
func (m *MockCluster) LastPin() (MockPin, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.PinRequests) == 0 {
		return MockPin{}, false
	}
	return m.PinRequests[len(m.PinRequests)-1], true
}

// MockPinner records fallback pins.
type MockPinner struct {
	mu sync.Mutex

	Err      error
	Requests []MockPin
}

// Pin records the call.
func (m *MockPinner) Pin(ctx context.Context, cid, name string, meta models.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Requests = append(m.Requests, MockPin{CID: cid, Name: name, Meta: copyMeta(meta)})
	return m.Err
}

func copyMeta(meta models.Metadata) models.Metadata {
	out := make(models.Metadata, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
