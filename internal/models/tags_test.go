package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/TheMichaelB/pinsync/internal/models"
)

func TestDecodeTags(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"json array", `["x","y"]`, []string{"x", "y"}},
		{"json array drops empties and non-strings", `["x","",3,null,"y"]`, []string{"x", "y"}},
		{"empty json array", `[]`, []string{}},
		{"comma separated", "a,b,c", []string{"a", "b", "c"}},
		{"comma separated with spaces", " a , ,b ", []string{"a", "b"}},
		{"single value", "solo", []string{"solo"}},
		{"single value trimmed", "  solo  ", []string{"solo"}},
		{"empty", "", []string{}},
		{"whitespace", "   ", []string{}},
		{"non-array json", "123", []string{"123"}},
		{"duplicates collapse", `["a","a","b"]`, []string{"a", "b"}},
		{"unicode", `["ログ","アセット"]`, []string{"ログ", "アセット"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, models.DecodeTags(tt.raw))
		})
	}
}

func TestEncodeTags(t *testing.T) {
	assert.Equal(t, "[]", models.EncodeTags(nil))
	assert.Equal(t, "[]", models.EncodeTags([]string{}))
	assert.Equal(t, `["invoice"]`, models.EncodeTags([]string{"invoice"}))
	assert.Equal(t, `["a&b","<x>"]`, models.EncodeTags([]string{"a&b", "<x>"}))
	assert.Equal(t, `["ログ"]`, models.EncodeTags([]string{"ログ"}))
}

func TestTagCodecRoundTrip(t *testing.T) {
	sets := [][]string{
		{},
		{"invoice"},
		{"a", "b", "c"},
		{"with,comma", "with \"quote\""},
		{"DB", "ログ", "アセット", "その他"},
		{" padded "},
	}

	for _, set := range sets {
		encoded := models.EncodeTags(set)
		decoded := models.DecodeTags(encoded)
		assert.ElementsMatch(t, set, decoded, "round trip of %q", set)
		assert.Equal(t, encoded, models.EncodeTags(decoded), "canonical form must be stable")
	}
}

func TestWithTagWithoutTag(t *testing.T) {
	tags := []string{"a", "b"}

	assert.Nil(t, models.WithTag(tags, "a"))
	added := models.WithTag(tags, "c")
	assert.Equal(t, []string{"a", "b", "c"}, added)
	assert.Equal(t, []string{"a", "b"}, tags, "input must not be modified")

	assert.Equal(t, []string{"b"}, models.WithoutTag(tags, "a"))
	assert.Equal(t, []string{"a", "b"}, models.WithoutTag(tags, "zzz"))
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, models.NormalizeTags([]string{" a", "", "b", "a "}))
	assert.Equal(t, []string{}, models.NormalizeTags(nil))
}
