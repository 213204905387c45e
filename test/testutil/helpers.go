package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/pinsync/internal/config"
)

// LogEntry represents a captured log entry for testing
type LogEntry struct {
	Level   string                 `json:"level"`
	Message string                 `json:"msg"`
	Time    time.Time              `json:"time"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// TestServer fakes the content store, cluster and pinning service on one
// HTTP server.
type TestServer struct {
	*httptest.Server
	mu sync.RWMutex

	// Content store
	blobs map[string][]byte // cid -> bytes
	tree  map[string]string // staged path -> cid
	dirs  map[string]bool

	// Cluster
	pins      map[string]map[string]interface{}
	pinOrder  []string
	peerCount int

	// Failure injection
	addFailures  map[string]int // file name -> status
	pinStatus    int
	fallback     int
	removeStatus int
	unpinStatus  int

	calls         map[string]int
	fallbackPins  []string
	removedPaths  []string
	lastPinParams map[string]map[string]string
}

// NewTestServer creates a new fake backend.
func NewTestServer() *TestServer {
	ts := &TestServer{
		blobs:         make(map[string][]byte),
		tree:          make(map[string]string),
		dirs:          make(map[string]bool),
		pins:          make(map[string]map[string]interface{}),
		addFailures:   make(map[string]int),
		calls:         make(map[string]int),
		lastPinParams: make(map[string]map[string]string),
		peerCount:     3,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v0/add", ts.handleAdd)
	mux.HandleFunc("/api/v0/files/mkdir", ts.handleMkdir)
	mux.HandleFunc("/api/v0/files/cp", ts.handleCopy)
	mux.HandleFunc("/api/v0/files/stat", ts.handleStat)
	mux.HandleFunc("/api/v0/files/rm", ts.handleRemove)
	mux.HandleFunc("/pins", ts.handlePins)
	mux.HandleFunc("/pins/", ts.handlePin)
	mux.HandleFunc("/peers", ts.handlePeers)

	ts.Server = httptest.NewServer(mux)
	return ts
}

// APIConfig points every endpoint at the server.
func (ts *TestServer) APIConfig() config.APIConfig {
	return config.APIConfig{
		IPFSURL:    ts.URL,
		ClusterURL: ts.URL,
		PinningURL: ts.URL,
		Timeout:    5 * time.Second,
		MaxRetries: 0,
		UserAgent:  "pinsync-test",
	}
}

// FailAdd makes adds of the named file return status.
func (ts *TestServer) FailAdd(name string, status int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.addFailures[name] = status
}

// FailPin makes cluster pins return status. Zero clears it.
func (ts *TestServer) FailPin(status int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.pinStatus = status
}

// FailFallback makes pinning service pins return status.
func (ts *TestServer) FailFallback(status int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.fallback = status
}

// FailRemove makes staging removal return status.
func (ts *TestServer) FailRemove(status int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.removeStatus = status
}

// FailUnpin makes unpins return status.
func (ts *TestServer) FailUnpin(status int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.unpinStatus = status
}

// SetPeers sets the number of peers reported.
func (ts *TestServer) SetPeers(n int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.peerCount = n
}

// AddPin seeds a pin with string metadata.
func (ts *TestServer) AddPin(cid, name string, meta map[string]string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	m := make(map[string]interface{}, len(meta))
	for k, v := range meta {
		m[k] = v
	}
	ts.storePin(cid, name, m)
}

// Calls returns how often "METHOD /path" was requested.
func (ts *TestServer) Calls(key string) int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.calls[key]
}

// Pinned reports whether cid is pinned.
func (ts *TestServer) Pinned(cid string) bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	_, ok := ts.pins[cid]
	return ok
}

// PinMeta returns the metadata of the last cluster pin call for cid.
func (ts *TestServer) PinMeta(cid string) map[string]string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	out := make(map[string]string)
	for k, v := range ts.lastPinParams[cid] {
		out[k] = v
	}
	return out
}

// FallbackPins returns the identifiers pinned through the pinning service.
func (ts *TestServer) FallbackPins() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return append([]string(nil), ts.fallbackPins...)
}

// RemovedPaths returns every path passed to files/rm.
func (ts *TestServer) RemovedPaths() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return append([]string(nil), ts.removedPaths...)
}

// Staged returns the paths currently in the staging tree.
func (ts *TestServer) Staged() []string {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	paths := make([]string, 0, len(ts.tree))
	for p := range ts.tree {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (ts *TestServer) count(r *http.Request, p string) {
	ts.mu.Lock()
	ts.calls[r.Method+" "+p]++
	ts.mu.Unlock()
}

func (ts *TestServer) handleAdd(w http.ResponseWriter, r *http.Request) {
	ts.count(r, "/api/v0/add")

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()
	data, _ := io.ReadAll(file)

	ts.mu.Lock()
	status, fail := ts.addFailures[header.Filename]
	ts.mu.Unlock()
	if fail {
		http.Error(w, "add failed", status)
		return
	}

	cid := ContentID(data)
	ts.mu.Lock()
	ts.blobs[cid] = data
	ts.mu.Unlock()

	w.Header().Set("Content-Type", "application/x-ndjson")
	enc := json.NewEncoder(w)
	_ = enc.Encode(map[string]string{"Name": header.Filename, "Hash": cid, "Size": fmt.Sprint(len(data))})
}

func (ts *TestServer) handleMkdir(w http.ResponseWriter, r *http.Request) {
	ts.count(r, "/api/v0/files/mkdir")
	p := r.URL.Query().Get("arg")

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if ts.dirs[p] && r.URL.Query().Get("parents") != "true" {
		http.Error(w, "file already exists", http.StatusInternalServerError)
		return
	}
	for d := p; d != "/" && d != "."; d = path.Dir(d) {
		ts.dirs[d] = true
	}
	w.WriteHeader(http.StatusOK)
}

func (ts *TestServer) handleCopy(w http.ResponseWriter, r *http.Request) {
	ts.count(r, "/api/v0/files/cp")
	args := r.URL.Query()["arg"]
	if len(args) != 2 {
		http.Error(w, "two arguments required", http.StatusBadRequest)
		return
	}
	cid := strings.TrimPrefix(args[0], "/ipfs/")
	dst := args[1]

	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, ok := ts.blobs[cid]; !ok {
		http.Error(w, "file does not exist", http.StatusInternalServerError)
		return
	}
	if !ts.dirs[path.Dir(dst)] {
		http.Error(w, "parent directory does not exist", http.StatusInternalServerError)
		return
	}
	if _, ok := ts.tree[dst]; ok {
		http.Error(w, "directory already has entry by that name", http.StatusInternalServerError)
		return
	}
	ts.tree[dst] = cid
	w.WriteHeader(http.StatusOK)
}

func (ts *TestServer) handleStat(w http.ResponseWriter, r *http.Request) {
	ts.count(r, "/api/v0/files/stat")
	p := r.URL.Query().Get("arg")

	ts.mu.RLock()
	var entries []string
	for staged, cid := range ts.tree {
		if strings.HasPrefix(staged, p+"/") {
			entries = append(entries, strings.TrimPrefix(staged, p+"/")+"="+cid)
		}
	}
	exists := ts.dirs[p]
	ts.mu.RUnlock()

	if !exists {
		http.Error(w, "file does not exist", http.StatusInternalServerError)
		return
	}
	sort.Strings(entries)
	_ = writeJSON(w, map[string]interface{}{
		"Hash": ContentID([]byte(strings.Join(entries, "\n"))),
		"Type": "directory",
	})
}

func (ts *TestServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	ts.count(r, "/api/v0/files/rm")
	p := r.URL.Query().Get("arg")

	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.removedPaths = append(ts.removedPaths, p)
	if ts.removeStatus != 0 {
		http.Error(w, "remove failed", ts.removeStatus)
		return
	}
	for staged := range ts.tree {
		if staged == p || strings.HasPrefix(staged, p+"/") {
			delete(ts.tree, staged)
		}
	}
	for d := range ts.dirs {
		if d == p || strings.HasPrefix(d, p+"/") {
			delete(ts.dirs, d)
		}
	}
	w.WriteHeader(http.StatusOK)
}

// handlePins serves the cluster listing and the pinning service.
func (ts *TestServer) handlePins(w http.ResponseWriter, r *http.Request) {
	ts.count(r, "/pins")

	switch r.Method {
	case http.MethodGet:
		ts.mu.RLock()
		defer ts.mu.RUnlock()
		if len(ts.pinOrder) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		for _, cid := range ts.pinOrder {
			_ = enc.Encode(ts.pins[cid])
		}

	case http.MethodPost:
		var req struct {
			CID  string            `json:"cid"`
			Name string            `json:"name"`
			Meta map[string]string `json:"meta"`
		}
		if err := decodeJSON(r.Body, &req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		ts.mu.Lock()
		defer ts.mu.Unlock()
		if ts.fallback != 0 {
			http.Error(w, "pinning service unavailable", ts.fallback)
			return
		}
		meta := make(map[string]interface{}, len(req.Meta))
		for k, v := range req.Meta {
			meta[k] = v
		}
		ts.fallbackPins = append(ts.fallbackPins, req.CID)
		ts.storePin(req.CID, req.Name, meta)
		w.WriteHeader(http.StatusAccepted)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (ts *TestServer) handlePin(w http.ResponseWriter, r *http.Request) {
	ts.count(r, "/pins/")
	cid := strings.TrimPrefix(r.URL.Path, "/pins/")

	ts.mu.Lock()
	defer ts.mu.Unlock()

	switch r.Method {
	case http.MethodGet:
		pin, ok := ts.pins[cid]
		if !ok {
			http.Error(w, "pin not found", http.StatusNotFound)
			return
		}
		_ = writeJSON(w, pin)

	case http.MethodPost:
		if ts.pinStatus != 0 {
			http.Error(w, "cluster pin failed", ts.pinStatus)
			return
		}
		params := make(map[string]string)
		meta := make(map[string]interface{})
		for k, v := range r.URL.Query() {
			if strings.HasPrefix(k, "meta-") {
				params[strings.TrimPrefix(k, "meta-")] = v[0]
				meta[strings.TrimPrefix(k, "meta-")] = v[0]
			}
		}
		ts.lastPinParams[cid] = params
		ts.storePin(cid, r.URL.Query().Get("name"), meta)
		_ = writeJSON(w, ts.pins[cid])

	case http.MethodDelete:
		if ts.unpinStatus != 0 {
			http.Error(w, "unpin failed", ts.unpinStatus)
			return
		}
		if _, ok := ts.pins[cid]; !ok {
			http.Error(w, "pin not found", http.StatusNotFound)
			return
		}
		delete(ts.pins, cid)
		for i, c := range ts.pinOrder {
			if c == cid {
				ts.pinOrder = append(ts.pinOrder[:i], ts.pinOrder[i+1:]...)
				break
			}
		}
		w.WriteHeader(http.StatusOK)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (ts *TestServer) handlePeers(w http.ResponseWriter, r *http.Request) {
	ts.count(r, "/peers")

	ts.mu.RLock()
	n := ts.peerCount
	ts.mu.RUnlock()

	if n == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	peers := make([]map[string]string, n)
	for i := range peers {
		peers[i] = map[string]string{"id": fmt.Sprintf("peer-%d", i)}
	}
	_ = writeJSON(w, peers)
}

// storePin records a pin in the listing. Callers hold ts.mu.
func (ts *TestServer) storePin(cid, name string, meta map[string]interface{}) {
	if _, ok := ts.pins[cid]; !ok {
		ts.pinOrder = append(ts.pinOrder, cid)
	}
	allocations := make([]string, ts.peerCount)
	for i := range allocations {
		allocations[i] = fmt.Sprintf("peer-%d", i)
	}
	ts.pins[cid] = map[string]interface{}{
		"cid":         cid,
		"name":        name,
		"allocations": allocations,
		"metadata":    meta,
	}
}

// ContentID derives a fake identifier from content.
func ContentID(data []byte) string {
	sum := sha256.Sum256(data)
	return "bafy" + hex.EncodeToString(sum[:])[:40]
}

// TestHelpers provides common test helper functions.
type TestHelpers struct {
	t       *testing.T
	tempDir string
}

// NewTestHelpers creates test helpers.
func NewTestHelpers(t *testing.T) *TestHelpers {
	tempDir := t.TempDir()
	return &TestHelpers{
		t:       t,
		tempDir: tempDir,
	}
}

// TempDir returns the temporary directory for this test.
func (h *TestHelpers) TempDir() string {
	return h.tempDir
}

// CreateTempFile creates a temporary file with content.
func (h *TestHelpers) CreateTempFile(name, content string) string {
	return h.CreateTempBinaryFile(name, []byte(content))
}

// CreateTempBinaryFile creates a temporary binary file.
func (h *TestHelpers) CreateTempBinaryFile(name string, content []byte) string {
	path := filepath.Join(h.tempDir, name)

	err := os.MkdirAll(filepath.Dir(path), 0755)
	require.NoError(h.t, err)

	err = os.WriteFile(path, content, 0644)
	require.NoError(h.t, err)

	return path
}

// AssertFileExists checks that a file exists.
func (h *TestHelpers) AssertFileExists(path string) {
	_, err := os.Stat(path)
	assert.NoError(h.t, err, "File should exist: %s", path)
}

// TestTimeout provides timeout context for tests.
func TestTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

// TestContext creates a test context with reasonable timeout.
func TestContext() (context.Context, context.CancelFunc) {
	return TestTimeout(30 * time.Second)
}

// TestConfigWithDir creates a test configuration against server with state
// under dataDir.
func TestConfigWithDir(server *TestServer, dataDir string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.API = server.APIConfig()
	cfg.Visibility = config.VisibilityConfig{
		Attempts:  2,
		BaseDelay: time.Millisecond,
		Step:      time.Millisecond,
	}
	cfg.State.Backend = "json"
	cfg.State.DataDir = dataDir
	cfg.Wallet.Provider = "static"
	cfg.Log = config.LogConfig{Level: "debug", Format: "json"}
	return cfg
}

// WaitForCondition waits for a condition to be true with timeout.
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration, message string) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			t.Fatalf("Timeout waiting for condition: %s", message)
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}

// LogOutput captures log output for testing.
type LogOutput struct {
	mu      sync.RWMutex
	entries []LogEntry
}

// NewLogOutput creates a new log output capturer.
func NewLogOutput() *LogOutput {
	return &LogOutput{}
}

// Write implements io.Writer to capture log output.
func (lo *LogOutput) Write(p []byte) (n int, err error) {
	var entry LogEntry
	if err := json.Unmarshal(p, &entry); err == nil {
		lo.mu.Lock()
		lo.entries = append(lo.entries, entry)
		lo.mu.Unlock()
	}
	return len(p), nil
}

// HasLevel checks if any log entry has the specified level.
func (lo *LogOutput) HasLevel(level string) bool {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	for _, entry := range lo.entries {
		if entry.Level == level {
			return true
		}
	}
	return false
}

// HasMessage checks if any log entry contains the message.
func (lo *LogOutput) HasMessage(message string) bool {
	lo.mu.RLock()
	defer lo.mu.RUnlock()

	for _, entry := range lo.entries {
		if strings.Contains(entry.Message, message) {
			return true
		}
	}
	return false
}

func decodeJSON(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}

func writeJSON(w http.ResponseWriter, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(v)
}

// SkipIfShort skips test if testing.Short() is true.
func SkipIfShort(t *testing.T, reason string) {
	if testing.Short() {
		t.Skipf("Skipping test in short mode: %s", reason)
	}
}
