package session

import (
	"fmt"
	"reflect"
	"sort"
)

// RunResult is the shape spec §4.5 promises `run` returns:
// {value, stdout, error, elapsed_ms}.
type RunResult struct {
	Value     any    `json:"value"`
	Stdout    string `json:"stdout"`
	Error     string `json:"error,omitempty"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// Project renders v through the JSON-safe projector of spec §4.5:
// primitives pass through unchanged, maps and slices recurse, record-like
// values (structs) project to maps of their exported fields, and anything
// else that isn't one of those shapes falls back to its string form.
func Project(v any) any {
	if v == nil {
		return nil
	}

	switch val := v.(type) {
	case bool, string, float32, float64,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return val
	case []byte:
		return string(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Project(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Project(item)
		}
		return out
	case error:
		return val.Error()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
		return Project(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Project(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		keys := rv.MapKeys()
		strKeys := make([]string, len(keys))
		byKey := make(map[string]reflect.Value, len(keys))
		for i, k := range keys {
			sk := fmt.Sprintf("%v", k.Interface())
			strKeys[i] = sk
			byKey[sk] = k
		}
		sort.Strings(strKeys)
		out := make(map[string]any, len(strKeys))
		for _, sk := range strKeys {
			out[sk] = Project(rv.MapIndex(byKey[sk]).Interface())
		}
		return out
	case reflect.Struct:
		out := make(map[string]any)
		t := rv.Type()
		for i := 0; i < rv.NumField(); i++ {
			field := t.Field(i)
			if field.PkgPath != "" {
				continue // unexported
			}
			out[field.Name] = Project(rv.Field(i).Interface())
		}
		return out
	default:
		return fmt.Sprintf("%v", v)
	}
}
