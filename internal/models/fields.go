package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Path is a sequence of object keys into a Record.
type Path []string

// Field lists the paths tried, in order, for one logical attribute.
type Field []Path

// Field lookups for cluster pin records. Order is priority.
var (
	CIDField = Field{
		{"cid"}, {"Cid"}, {"CID"}, {"pin", "cid"},
	}
	MetaField = Field{
		{"meta"}, {"metadata"},
		{"pin", "meta"}, {"pin", "metadata"},
		{"pin", "pin", "meta"}, {"pin", "pin", "metadata"},
	}
	NameField = Field{
		{"name"}, {"Name"}, {"pin", "name"},
	}
	CreatedField = Field{
		{"created"}, {"timestamp"}, {"Timestamp"},
		{"pin", "created"}, {"pin", "timestamp"},
	}
	SizeField = Field{
		{"size"}, {"Size"}, {"pin", "size"},
	}
	AllocationsField = Field{
		{"allocations"}, {"pin", "allocations"},
	}
	PeerMapField = Field{
		{"peer_map"}, {"pin", "peer_map"},
	}
	AddIdentifierField = Field{
		{"Hash"}, {"Cid"}, {"cid"}, {"CID"},
	}
)

// String returns the first non-empty string, accepting the {"/": cid} link
// form used by some cluster versions.
func (f Field) String(r Record) (string, bool) {
	for _, p := range f {
		v, ok := r.Lookup(p...)
		if !ok {
			continue
		}
		if s := linkString(v); s != "" {
			return s, true
		}
	}
	return "", false
}

// Object returns the first nested object.
func (f Field) Object(r Record) (Record, bool) {
	for _, p := range f {
		if obj, ok := r.Object(p...); ok {
			return obj, true
		}
	}
	return nil, false
}

// Int64 returns the first value that reads as a non-negative integer.
func (f Field) Int64(r Record) (int64, bool) {
	for _, p := range f {
		v, ok := r.Lookup(p...)
		if !ok {
			continue
		}
		if n, ok := AsInt64(v); ok {
			return n, true
		}
	}
	return 0, false
}

// Count returns the first positive cardinality of an array or an object.
func (f Field) Count(r Record) int {
	for _, p := range f {
		v, ok := r.Lookup(p...)
		if !ok {
			continue
		}
		switch c := v.(type) {
		case []interface{}:
			if len(c) > 0 {
				return len(c)
			}
		case map[string]interface{}:
			if len(c) > 0 {
				return len(c)
			}
		}
	}
	return 0
}

// AsInt64 converts a JSON number or a numeric string.
func AsInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n < 0 {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil && i >= 0
	case string:
		s := strings.TrimSpace(n)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil && i >= 0 {
			return i, true
		}
		if fl, err := strconv.ParseFloat(s, 64); err == nil && fl >= 0 {
			return int64(fl), true
		}
	}
	return 0, false
}

// AsBool accepts true and "true".
func AsBool(v interface{}) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return b == "true"
	}
	return false
}

func linkString(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case map[string]interface{}:
		if link, ok := s["/"].(string); ok {
			return link
		}
	}
	return ""
}
