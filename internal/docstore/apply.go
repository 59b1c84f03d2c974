package docstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// normalize converts v to the shape it has after a JSON round trip, so that
// values read back from any adapter compare equal (numbers become float64,
// structs become maps).
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeFields(fields map[string]any) (map[string]any, error) {
	if fields == nil {
		return map[string]any{}, nil
	}
	n, err := normalize(fields)
	if err != nil {
		return nil, fmt.Errorf("normalizing fields: %w", err)
	}
	m, _ := n.(map[string]any)
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// mergeFields merges src into dst recursively, the way a merge-set does:
// nested maps are merged, every other value replaces what was there.
func mergeFields(dst, src map[string]any) {
	for k, v := range src {
		sv, srcIsMap := v.(map[string]any)
		dv, dstIsMap := dst[k].(map[string]any)
		if srcIsMap && dstIsMap {
			mergeFields(dv, sv)
			continue
		}
		dst[k] = v
	}
}

// applyUpdates applies dotted-path updates to data in place.
func applyUpdates(data map[string]any, updates []Update) error {
	for _, u := range updates {
		if u.Path == "" {
			return fmt.Errorf("empty field path")
		}
		segs := strings.Split(u.Path, ".")
		parent := data
		for _, seg := range segs[:len(segs)-1] {
			next, ok := parent[seg].(map[string]any)
			if !ok {
				next = map[string]any{}
				parent[seg] = next
			}
			parent = next
		}
		leaf := segs[len(segs)-1]

		if un, ok := u.Value.(union); ok {
			arr, _ := parent[leaf].([]any)
			for _, e := range un.elems {
				ne, err := normalize(e)
				if err != nil {
					return fmt.Errorf("normalizing union element for %s: %w", u.Path, err)
				}
				if !containsValue(arr, ne) {
					arr = append(arr, ne)
				}
			}
			if arr == nil {
				arr = []any{}
			}
			parent[leaf] = arr
			continue
		}

		v, err := normalize(u.Value)
		if err != nil {
			return fmt.Errorf("normalizing value for %s: %w", u.Path, err)
		}
		parent[leaf] = v
	}
	return nil
}

func containsValue(arr []any, v any) bool {
	for _, e := range arr {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

// cloneData deep-copies a normalized document body.
func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneData(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
