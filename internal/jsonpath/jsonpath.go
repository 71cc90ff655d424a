// Package jsonpath reads string values out of decoded JSON with dotted paths
// such as "candidates[0].content.parts[0].text".
package jsonpath

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotFound    = errors.New("jsonpath: value not found")
	ErrInvalidPath = errors.New("jsonpath: invalid path")
	ErrNotScalar   = errors.New("jsonpath: value is not a scalar")
)

// Extract decodes body and returns the scalar at path as a string.
func Extract(body []byte, path string) (string, error) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return "", fmt.Errorf("jsonpath: decode: %w", err)
	}
	v, err := Lookup(root, path)
	if err != nil {
		return "", err
	}
	return Scalar(v)
}

// ExtractText is Extract with the lenient fallbacks used for speech API
// responses: a top-level "text" field, then any non-empty top-level string.
func ExtractText(body []byte, path string) string {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return ""
	}
	if path != "" {
		if v, err := Lookup(root, path); err == nil {
			if s, err := Scalar(v); err == nil {
				return s
			}
		}
	}
	m, ok := root.(map[string]any)
	if !ok {
		return ""
	}
	if v, exists := m["text"]; exists {
		if s, err := Scalar(v); err == nil {
			return s
		}
	}
	for _, val := range m {
		if s, ok := val.(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Lookup walks root along path.
func Lookup(root any, path string) (any, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	cur := root
	for _, part := range strings.Split(path, ".") {
		key, idxs, err := ParseKeyAndIndexes(part)
		if err != nil {
			return nil, err
		}
		if key != "" {
			m, ok := cur.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s is not an object", ErrNotFound, key)
			}
			next, exists := m[key]
			if !exists {
				return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
			}
			cur = next
		}
		for _, idx := range idxs {
			arr, ok := cur.([]any)
			if !ok || idx < 0 || idx >= len(arr) {
				return nil, fmt.Errorf("%w: %s[%d]", ErrNotFound, key, idx)
			}
			cur = arr[idx]
		}
	}
	return cur, nil
}

// Scalar formats a decoded JSON string, number or boolean.
func Scalar(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10), nil
		}
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(s), nil
	default:
		return "", fmt.Errorf("%w: %T", ErrNotScalar, v)
	}
}

// ParseKeyAndIndexes parses a token like "foo[0][1]" or "[0]" or "bar" into base key and indexes.
func ParseKeyAndIndexes(token string) (string, []int, error) {
	if token == "" {
		return "", nil, fmt.Errorf("%w: empty token", ErrInvalidPath)
	}
	br := strings.Index(token, "[")
	if br == -1 {
		return token, nil, nil
	}
	key := token[:br]
	rest := token[br:]
	var idxs []int
	for len(rest) > 0 {
		if !strings.HasPrefix(rest, "[") {
			return "", nil, fmt.Errorf("%w: index syntax in %s", ErrInvalidPath, token)
		}
		closePos := strings.Index(rest, "]")
		if closePos == -1 {
			return "", nil, fmt.Errorf("%w: missing ] in %s", ErrInvalidPath, token)
		}
		n, err := strconv.Atoi(rest[1:closePos])
		if err != nil {
			return "", nil, fmt.Errorf("%w: index %q in %s", ErrInvalidPath, rest[1:closePos], token)
		}
		idxs = append(idxs, n)
		rest = rest[closePos+1:]
	}
	return key, idxs, nil
}
