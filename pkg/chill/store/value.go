package store

import "reflect"

// Normalize converts a value into the canonical tree representation:
// map[string]any for objects, []any for lists, float64 for numbers,
// plus string, bool, and nil. Empty maps normalize to nil, matching the
// tree's behavior of pruning empty nodes.
func Normalize(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			if n := Normalize(child); n != nil {
				out[k] = n
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = Normalize(child)
		}
		return out
	case string:
		return val
	case bool:
		return val
	case float64:
		return val
	case float32:
		return float64(val)
	case int:
		return float64(val)
	case int32:
		return float64(val)
	case int64:
		return float64(val)
	case uint:
		return float64(val)
	}
	return v
}

// Copy returns a deep copy of a normalized value.
func Copy(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = Copy(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = Copy(child)
		}
		return out
	}
	return v
}

// Equal reports whether two normalized values are deeply equal.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

// ValueAt descends a normalized value along the given path. Returns nil
// if any segment is missing or a non-map is reached early.
func ValueAt(v any, p Path) any {
	for _, seg := range p {
		m, ok := v.(map[string]any)
		if !ok {
			return nil
		}
		v = m[seg]
	}
	return v
}

// setAt writes v (nil deletes) at path p inside root, creating
// intermediate maps as needed and pruning maps left empty. Returns the
// new root value.
func setAt(root any, p Path, v any) any {
	if len(p) == 0 {
		return v
	}
	m, ok := root.(map[string]any)
	if !ok {
		if v == nil {
			return root
		}
		m = make(map[string]any)
	}
	child := setAt(m[p[0]], p[1:], v)
	if child == nil {
		delete(m, p[0])
	} else {
		m[p[0]] = child
	}
	if len(m) == 0 {
		return nil
	}
	return m
}
