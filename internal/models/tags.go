package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// DecodeTags reads a stored tag field. The canonical form is a JSON array;
// comma-separated and single-value strings are accepted for older pins.
func DecodeTags(raw string) []string {
	var arr []interface{}
	if err := json.Unmarshal([]byte(raw), &arr); err == nil && arr != nil {
		tags := make([]string, 0, len(arr))
		for _, v := range arr {
			if s, ok := v.(string); ok && s != "" {
				tags = append(tags, s)
			}
		}
		return uniqueTags(tags)
	}

	if strings.Contains(raw, ",") {
		var tags []string
		for _, part := range strings.Split(raw, ",") {
			if t := strings.TrimSpace(part); t != "" {
				tags = append(tags, t)
			}
		}
		return uniqueTags(tags)
	}

	if t := strings.TrimSpace(raw); t != "" {
		return []string{t}
	}
	return []string{}
}

// EncodeTags produces the canonical JSON array form. It is the only form
// ever written.
func EncodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(tags); err != nil {
		return "[]"
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

// NormalizeTags trims, drops empties and removes duplicates, keeping the
// first occurrence order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return uniqueTags(out)
}

func uniqueTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := tags[:0]
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// WithTag returns a copy of tags with tag appended, or nil when tag is
// already present.
func WithTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return nil
		}
	}
	out := make([]string, 0, len(tags)+1)
	out = append(out, tags...)
	return append(out, tag)
}

// WithoutTag returns a copy of tags with every occurrence of tag removed.
func WithoutTag(tags []string, tag string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != tag {
			out = append(out, t)
		}
	}
	return out
}
