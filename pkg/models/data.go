package models

// CopyData returns a deep copy of a JSON-like data bag.
// Nested maps and slices are copied; scalar values are shared.
func CopyData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}

	copied := make(map[string]any, len(data))
	for key, value := range data {
		copied[key] = CopyValue(value)
	}

	return copied
}

// CopyValue deep copies a single JSON-like value.
func CopyValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return CopyData(v)
	case []any:
		copied := make([]any, len(v))
		for idx, item := range v {
			copied[idx] = CopyValue(item)
		}

		return copied
	default:
		return v
	}
}

// MergeData returns a copy of base with every key of overlay written on top.
func MergeData(base, overlay map[string]any) map[string]any {
	merged := CopyData(base)
	if merged == nil {
		merged = make(map[string]any, len(overlay))
	}

	for key, value := range overlay {
		merged[key] = CopyValue(value)
	}

	return merged
}
