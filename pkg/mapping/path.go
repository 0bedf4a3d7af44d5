package mapping

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrPathNotFound = errors.New("path not found")
	ErrInvalidPath  = errors.New("invalid path")

	ErrNoTransformer = errors.New("no transform evaluator configured")
)

func splitPath(path string) ([]string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrInvalidPath
	}

	segments := strings.Split(path, ".")
	for _, segment := range segments {
		if segment == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
	}

	return segments, nil
}

// Get reads the value at a dotted path. Numeric segments index into lists.
func Get(data map[string]any, path string) (any, error) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, err
	}

	var current any = data

	for _, segment := range segments {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
			}

			current = value
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
			}

			current = node[idx]
		default:
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
	}

	return current, nil
}

// Set writes value at a dotted path, creating intermediate objects as needed.
// An intermediate value that is not an object is replaced.
func Set(data map[string]any, path string, value any) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}

	current := data

	for _, segment := range segments[:len(segments)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[segment] = next
		}

		current = next
	}

	current[segments[len(segments)-1]] = value

	return nil
}
