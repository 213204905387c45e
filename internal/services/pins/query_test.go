package pins_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/pinsync/internal/models"
	"github.com/TheMichaelB/pinsync/internal/services/pins"
	"github.com/TheMichaelB/pinsync/test/testutil"
)

func cids(items []models.PinnedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.CID
	}
	return out
}

func TestVisible(t *testing.T) {
	items := []models.PinnedItem{
		testutil.SampleItem("A", "0xABC"),
		testutil.SampleItem("B", "0xdef"),
		testutil.SampleItem("C", "0xabc"),
		testutil.SampleItem("D", ""),
	}

	assert.Equal(t, []string{"A", "C"}, cids(pins.Visible(items, "0xabc")))
	assert.Equal(t, []string{"A", "C"}, cids(pins.Visible(items, "0XABC")))
	assert.Empty(t, pins.Visible(items, ""))
	assert.Empty(t, pins.Visible(items, "0x999"))
}

func TestFilterByTag(t *testing.T) {
	items := []models.PinnedItem{
		testutil.SampleItem("A", "0xabc", "DB"),
		testutil.SampleItem("B", "0xabc", "ログ", "DB"),
		testutil.SampleItem("C", "0xabc"),
	}

	assert.Equal(t, []string{"A", "B"}, cids(pins.FilterByTag(items, "DB")))
	assert.Equal(t, []string{"B"}, cids(pins.FilterByTag(items, "ログ")))
	assert.Len(t, pins.FilterByTag(items, pins.TagAll), 3)
	assert.Len(t, pins.FilterByTag(items, ""), 3)
	assert.Empty(t, pins.FilterByTag(items, "db"))
}

func TestSearch(t *testing.T) {
	a := testutil.SampleItem("bafyAAA", "0xabc", "DB")
	a.Name = "Quarterly Report.pdf"
	a.CreatedAt = "2024-03-15T09:30:00.000Z"
	b := testutil.SampleItem("bafyBBB", "0xabc", "ログ")
	b.Name = "server.log"
	b.CreatedAt = "2023-11-02T00:00:00.000Z"
	items := []models.PinnedItem{a, b}

	tests := []struct {
		term string
		want []string
	}{
		{"report", []string{"bafyAAA"}},
		{"BAFYBBB", []string{"bafyBBB"}},
		{"ログ", []string{"bafyBBB"}},
		{"db", []string{"bafyAAA"}},
		{"2023-11", []string{"bafyBBB"}},
		{"  ", []string{"bafyAAA", "bafyBBB"}},
		{"nothing", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			assert.Equal(t, tt.want, cids(pins.Search(items, tt.term)))
		})
	}
}

func TestSearchDisplayDate(t *testing.T) {
	item := testutil.SampleItem("bafyA", "0xabc")
	item.CreatedAt = "2024-03-15T09:30:00.000Z"

	local := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC).Local().Format("2006/01/02")

	assert.Len(t, pins.Search([]models.PinnedItem{item}, local), 1)
}

func TestDisplayDate(t *testing.T) {
	ts := "2024-03-15T09:30:00.000Z"
	want := time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC).Local().Format("2006/01/02 15:04:05")

	assert.Equal(t, want, pins.DisplayDate(ts))
	assert.Equal(t, "yesterday", pins.DisplayDate("yesterday"))
}

func TestListAndStats(t *testing.T) {
	f := newFixture(t)
	a := testutil.SampleItem("A", "0xabc", "DB")
	a.Size = 100
	b := testutil.SampleItem("B", "0xabc")
	b.Size = 50
	c := testutil.SampleItem("C", "0xdef", "DB")
	c.Size = 1000
	for _, it := range []models.PinnedItem{c, b, a} {
		f.set.Prepend(it)
	}
	f.set.SetNodeCount(4)

	assert.Equal(t, []string{"A", "B"}, cids(f.svc.List(pins.Query{Owner: "0xABC"})))
	assert.Equal(t, []string{"A"}, cids(f.svc.List(pins.Query{Owner: "0xabc", Tag: "DB"})))
	assert.Equal(t, []string{"A", "C"}, cids(f.svc.List(pins.Query{All: true, Tag: "DB"})))
	assert.Empty(t, f.svc.List(pins.Query{}))

	assert.Equal(t, pins.Stats{TotalSize: 150, Files: 2, Nodes: 4}, f.svc.Stats("0xabc"))
	assert.Equal(t, pins.Stats{Nodes: 4}, f.svc.Stats(""))
}
