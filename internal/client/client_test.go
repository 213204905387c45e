package client_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/pinsync/internal/client"
	"github.com/TheMichaelB/pinsync/internal/models"
	"github.com/TheMichaelB/pinsync/internal/services/account"
	"github.com/TheMichaelB/pinsync/internal/services/pins"
	"github.com/TheMichaelB/pinsync/internal/state"
	"github.com/TheMichaelB/pinsync/test/testutil"
)

func newClient(t *testing.T, server *testutil.TestServer, provider account.Provider) (*client.Client, state.Store) {
	t.Helper()
	cfg := testutil.TestConfigWithDir(server, t.TempDir())
	store := state.NewMemoryStore()

	c, err := client.New(context.Background(), cfg, testutil.NewTestLogger(),
		client.WithRegistry(prometheus.NewRegistry()),
		client.WithProvider(provider),
		client.WithStore(store),
	)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, store
}

func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestOperationsRequireAccount(t *testing.T) {
	server := testutil.NewTestServer()
	defer server.Close()
	c, _ := newClient(t, server, account.NewStaticProvider(""))
	ctx := context.Background()

	_, err := c.UploadFiles(ctx, []string{"x"}, pins.UploadOptions{})
	assert.ErrorIs(t, err, models.ErrNotConnected)

	_, err = c.UploadFolder(ctx, t.TempDir(), pins.UploadOptions{})
	assert.ErrorIs(t, err, models.ErrNotConnected)

	_, err = c.AddTag(ctx, "bafy", "DB")
	assert.ErrorIs(t, err, models.ErrNotConnected)

	assert.ErrorIs(t, c.Unpin(ctx, "bafy"), models.ErrNotConnected)
	assert.Empty(t, c.List(pins.Query{}))
	assert.Equal(t, 0, server.Calls("POST /api/v0/add"))
}

func TestUploadListTagUnpin(t *testing.T) {
	server := testutil.NewTestServer()
	defer server.Close()
	c, _ := newClient(t, server, account.NewStaticProvider("0xABC"))
	ctx, cancel := testutil.TestContext()
	defer cancel()

	_, err := c.Connect(ctx)
	require.NoError(t, err)

	dir := t.TempDir()
	path := writeFile(t, dir, "invoice.pdf", "pdf-bytes")

	result, err := c.UploadFiles(ctx, []string{path}, pins.UploadOptions{Tags: []string{"invoice"}})
	require.NoError(t, err)
	require.Equal(t, 1, result.Succeeded)

	cid := testutil.ContentID([]byte("pdf-bytes"))
	assert.True(t, server.Pinned(cid))
	assert.Equal(t, "0xabc", server.PinMeta(cid)[models.MetaOwner])

	items := c.List(pins.Query{})
	require.Len(t, items, 1)
	assert.Equal(t, cid, items[0].CID)

	tagged, err := c.AddTag(ctx, cid, "ログ")
	require.NoError(t, err)
	assert.Equal(t, []string{"invoice", "ログ"}, tagged.Tags)
	assert.Equal(t, `["invoice","ログ"]`, server.PinMeta(cid)[models.MetaTags])
	assert.Equal(t, "0xabc", server.PinMeta(cid)[models.MetaOwner])
	assert.Contains(t, c.Tags.Options(), "ログ")

	_, err = c.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, pins.Stats{TotalSize: 9, Files: 1, Nodes: 3}, c.Stats())

	require.NoError(t, c.Unpin(ctx, cid))
	assert.False(t, server.Pinned(cid))
	assert.Empty(t, c.List(pins.Query{}))
}

func TestUploadFolder(t *testing.T) {
	server := testutil.NewTestServer()
	defer server.Close()
	c, _ := newClient(t, server, account.NewStaticProvider("0xabc"))
	ctx, cancel := testutil.TestContext()
	defer cancel()
	_, err := c.Connect(ctx)
	require.NoError(t, err)

	root := t.TempDir()
	for rel, content := range testutil.SampleFiles {
		writeFile(t, root, rel, content)
	}

	item, err := c.UploadFolder(ctx, filepath.Join(root, "project"), pins.UploadOptions{Tags: []string{"DB"}})

	require.NoError(t, err)
	assert.True(t, item.IsFolder)
	require.NotNil(t, item.FileCount)
	assert.Equal(t, 4, *item.FileCount)
	assert.Equal(t, "project", item.Name)
	assert.True(t, server.Pinned(item.CID))
	assert.Equal(t, "true", server.PinMeta(item.CID)[models.MetaIsFolder])
	assert.Len(t, server.RemovedPaths(), 1)
	assert.Empty(t, server.Staged())
}

func TestRestoreFromStore(t *testing.T) {
	server := testutil.NewTestServer()
	defer server.Close()
	server.AddPin("bafyA", "a.txt", map[string]string{models.MetaOwner: "0xabc", models.MetaTags: `["DB"]`})

	provider := account.NewStaticProvider("0xabc")
	first, store := newClient(t, server, provider)
	_, err := first.Connect(context.Background())
	require.NoError(t, err)
	_, err = first.Refresh(context.Background())
	require.NoError(t, err)
	_, err = first.Tags.Add("請求書")
	require.NoError(t, err)

	cfg := testutil.TestConfigWithDir(server, t.TempDir())
	second, err := client.New(context.Background(), cfg, testutil.NewTestLogger(),
		client.WithRegistry(prometheus.NewRegistry()),
		client.WithProvider(account.NewStaticProvider("0xABC")),
		client.WithStore(store),
	)
	require.NoError(t, err)

	assert.Equal(t, "0xabc", second.Account.Current())
	assert.Len(t, second.List(pins.Query{}), 1)
	assert.Contains(t, second.Tags.Options(), "請求書")
	assert.Equal(t, 1, server.Calls("GET /pins"))
}

func TestWatch(t *testing.T) {
	server := testutil.NewTestServer()
	defer server.Close()
	server.AddPin("bafyA", "a.txt", map[string]string{models.MetaOwner: "0xabc"})
	c, _ := newClient(t, server, account.NewStaticProvider("0xabc"))

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan client.Event, 8)
	done := make(chan struct{})
	go func() {
		c.Watch(ctx, 10*time.Millisecond, func(e client.Event) {
			select {
			case events <- e:
			default:
			}
		})
		close(done)
	}()

	first := <-events
	require.NoError(t, first.Err)
	assert.Equal(t, 1, first.Items)

	server.AddPin("bafyB", "b.txt", map[string]string{models.MetaOwner: "0xabc"})
	testutil.WaitForCondition(t, func() bool {
		_, err := c.Pins.Find("bafyB")
		return err == nil
	}, 2*time.Second, "watch picks up the new pin")

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not stop")
	}
}
