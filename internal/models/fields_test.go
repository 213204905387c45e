package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/pinsync/internal/models"
)

func record(t *testing.T, raw string) models.Record {
	t.Helper()
	records := models.ParseRecords(raw)
	if len(records) != 1 {
		t.Fatalf("expected one record from %s", raw)
	}
	return records[0]
}

func TestCIDField(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"lower", `{"cid":"a"}`, "a"},
		{"title", `{"Cid":"b"}`, "b"},
		{"upper", `{"CID":"c"}`, "c"},
		{"nested", `{"pin":{"cid":"d"}}`, "d"},
		{"link form", `{"cid":{"/":"e"}}`, "e"},
		{"priority", `{"CID":"upper","cid":"lower"}`, "lower"},
		{"empty falls through", `{"cid":"","pin":{"cid":"f"}}`, "f"},
		{"missing", `{"name":"x"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := models.CIDField.String(record(t, tt.raw))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMetaField(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		owner string
	}{
		{"meta", `{"meta":{"owner":"a"}}`, "a"},
		{"metadata", `{"metadata":{"owner":"b"}}`, "b"},
		{"pin.meta", `{"pin":{"meta":{"owner":"c"}}}`, "c"},
		{"pin.metadata", `{"pin":{"metadata":{"owner":"d"}}}`, "d"},
		{"pin.pin.meta", `{"pin":{"pin":{"meta":{"owner":"e"}}}}`, "e"},
		{"pin.pin.metadata", `{"pin":{"pin":{"metadata":{"owner":"f"}}}}`, "f"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			meta, ok := models.MetaField.Object(record(t, tt.raw))
			assert.True(t, ok)
			owner, _ := meta.String("owner")
			assert.Equal(t, tt.owner, owner)
		})
	}

	_, ok := models.MetaField.Object(record(t, `{"meta":"not an object"}`))
	assert.False(t, ok)
}

func TestCountField(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"allocations", `{"allocations":["p1","p2"]}`, 2},
		{"nested allocations", `{"pin":{"allocations":["p1"]}}`, 1},
		{"empty allocations fall through", `{"allocations":[],"pin":{"allocations":["p1","p2","p3"]}}`, 3},
		{"none", `{}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.AllocationsField.Count(record(t, tt.raw)))
		})
	}

	assert.Equal(t, 2, models.PeerMapField.Count(record(t, `{"peer_map":{"a":{},"b":{}}}`)))
	assert.Equal(t, 1, models.PeerMapField.Count(record(t, `{"pin":{"peer_map":{"a":{}}}}`)))
}

func TestAsInt64(t *testing.T) {
	tests := []struct {
		in   interface{}
		want int64
		ok   bool
	}{
		{float64(42), 42, true},
		{"42", 42, true},
		{" 7 ", 7, true},
		{"12.0", 12, true},
		{"abc", 0, false},
		{float64(-1), 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := models.AsInt64(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestAsBool(t *testing.T) {
	assert.True(t, models.AsBool(true))
	assert.True(t, models.AsBool("true"))
	assert.False(t, models.AsBool("TRUE"))
	assert.False(t, models.AsBool("1"))
	assert.False(t, models.AsBool(nil))
}
