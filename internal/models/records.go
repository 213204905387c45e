package models

import (
	"encoding/json"
	"strings"
)

// Record is one loosely typed object from a server response.
type Record map[string]interface{}

// ParseRecords reads newline-delimited JSON, falling back to a whole JSON
// document (array, {"pins": [...]}, or object of objects). Bad lines are
// dropped unless the payload as a whole is valid JSON, in which case it is
// read as one document. An empty or unreadable payload yields no records.
func ParseRecords(raw string) []Record {
	records, skipped := parseLines(raw)
	if skipped > 0 && json.Valid([]byte(strings.TrimSpace(raw))) {
		return parseDocument(raw)
	}
	if len(records) == 1 {
		if pins, ok := records[0]["pins"].([]interface{}); ok {
			return objects(pins)
		}
	}
	if len(records) > 0 {
		return records
	}
	return parseDocument(raw)
}

// parseLines returns the lines that decode as objects and the number of
// non-blank lines that did not.
func parseLines(raw string) ([]Record, int) {
	var records []Record
	skipped := 0
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(line), &obj); err != nil || obj == nil {
			skipped++
			continue
		}
		records = append(records, Record(obj))
	}
	return records, skipped
}

func parseDocument(raw string) []Record {
	var doc interface{}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &doc); err != nil {
		return nil
	}

	switch v := doc.(type) {
	case []interface{}:
		return objects(v)
	case map[string]interface{}:
		if pins, ok := v["pins"].([]interface{}); ok {
			return objects(pins)
		}
		values := make([]interface{}, 0, len(v))
		for _, val := range v {
			values = append(values, val)
		}
		return objects(values)
	default:
		return nil
	}
}

func objects(values []interface{}) []Record {
	records := make([]Record, 0, len(values))
	for _, val := range values {
		if obj, ok := val.(map[string]interface{}); ok {
			records = append(records, Record(obj))
		}
	}
	return records
}

// Lookup follows a path of object keys.
func (r Record) Lookup(path ...string) (interface{}, bool) {
	var cur interface{} = map[string]interface{}(r)
	for _, key := range path {
		obj, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if cur, ok = obj[key]; !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// Object returns the nested object at path.
func (r Record) Object(path ...string) (Record, bool) {
	v, ok := r.Lookup(path...)
	if !ok {
		return nil, false
	}
	obj, ok := v.(map[string]interface{})
	return Record(obj), ok
}

// String returns a non-empty string at path.
func (r Record) String(path ...string) (string, bool) {
	v, ok := r.Lookup(path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}
