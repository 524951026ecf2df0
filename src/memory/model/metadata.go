package model

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Reserved metadata keys written next to every document in a vector store.
const (
	MetaKind       = "kind"
	MetaImportance = "importance"
	MetaCreatedAt  = "created_at"

	attrPrefix     = "attr."
	attrJSONPrefix = "attrjson."
)

// FlattenMetadata projects a record onto the flat, scalar-only metadata map vector
// stores accept. Composite attribute values are JSON encoded under a separate prefix
// so RecordFromMetadata can restore them.
func FlattenMetadata(rec MemoryRecord) map[string]any {
	meta := make(map[string]any, len(rec.Attributes)+3)
	meta[MetaKind] = string(rec.Kind)
	meta[MetaImportance] = rec.Importance
	meta[MetaCreatedAt] = rec.CreatedAt.UTC().Format(time.RFC3339Nano)
	for k, v := range rec.Attributes {
		if isScalar(v) {
			meta[attrPrefix+k] = v
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			continue
		}
		meta[attrJSONPrefix+k] = string(b)
	}
	return meta
}

// RecordFromMetadata reconstitutes a record from what a vector store returned.
func RecordFromMetadata(id, document string, meta map[string]any) MemoryRecord {
	rec := MemoryRecord{
		ID:         id,
		Content:    document,
		Kind:       Kind(StringFromAny(meta[MetaKind])),
		Importance: Clamp01(FloatFromAny(meta[MetaImportance])),
		CreatedAt:  TimeFromAny(meta[MetaCreatedAt]),
		Attributes: map[string]any{},
	}
	for k, v := range meta {
		switch {
		case strings.HasPrefix(k, attrJSONPrefix):
			var decoded any
			if err := json.Unmarshal([]byte(StringFromAny(v)), &decoded); err == nil {
				rec.Attributes[strings.TrimPrefix(k, attrJSONPrefix)] = decoded
			}
		case strings.HasPrefix(k, attrPrefix):
			rec.Attributes[strings.TrimPrefix(k, attrPrefix)] = v
		}
	}
	return rec
}

// StringMetadata renders metadata for backends that only store strings.
func StringMetadata(meta map[string]any) map[string]string {
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = StringFromAny(v)
	}
	return out
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return true
	}
	return false
}

func FloatFromAny(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case json.Number:
		f, _ := t.Float64()
		return f
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
			return f
		}
	}
	return 0
}

func StringFromAny(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func TimeFromAny(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t.UTC()
	case string:
		if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(t)); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}
