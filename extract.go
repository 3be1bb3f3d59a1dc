package vidquota

import (
	"encoding/json"
	"strconv"
	"strings"
)

// FieldPath is a dotted lookup path into a decoded JSON object.
type FieldPath string

func (p FieldPath) segments() []string {
	return strings.Split(string(p), ".")
}

// Candidate paths, in priority order. Extend these as the provider schema evolves.
var (
	VideoURLPaths = []FieldPath{
		"video_url",
		"url",
		"data.video_url",
		"data.url",
		"result.video_url",
		"result.url",
		"output.video_url",
		"output.url",
	}
	TaskIDPaths = []FieldPath{
		"task_id",
		"id",
		"data.task_id",
		"data.id",
		"result.task_id",
		"output.task_id",
	}
)

// ExtractVideoURL returns the first video URL found in raw, or nil.
func ExtractVideoURL(raw map[string]any) *string {
	return FirstString(raw, VideoURLPaths)
}

// ExtractTaskID returns the first task identifier found in raw, or nil.
func ExtractTaskID(raw map[string]any) *string {
	return FirstString(raw, TaskIDPaths)
}

// FirstString evaluates paths in order and returns the first value that is a
// non-empty string or a number. Numbers are formatted without exponent.
func FirstString(raw map[string]any, paths []FieldPath) *string {
	for _, p := range paths {
		v, ok := lookup(raw, p.segments())
		if !ok {
			continue
		}
		if s, ok := scalarString(v); ok {
			return &s
		}
	}
	return nil
}

func lookup(obj map[string]any, segs []string) (any, bool) {
	var cur any = obj
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}
