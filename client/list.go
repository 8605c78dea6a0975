package client

import (
	"encoding/json"
	"fmt"
	"strings"
)

// decodeList decodes a bare JSON array, or the array under the first of keys
// present in an object envelope (falling back to "data" and "items").
func decodeList[T any](body []byte, keys ...string) ([]T, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var list []T
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, fmt.Errorf("failed to parse list: %w", err)
		}
		return list, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse list envelope: %w", err)
	}
	for _, key := range append(keys, "data", "items") {
		raw, ok := envelope[key]
		if !ok || len(raw) == 0 || raw[0] != '[' {
			continue
		}
		var list []T
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("failed to parse %q list: %w", key, err)
		}
		return list, nil
	}
	return []T{}, nil
}

// decodeObject decodes body directly, or the object under key when body is an
// envelope containing it.
func decodeObject[T any](body []byte, key string) (*T, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	target := body
	for _, k := range []string{key, "data"} {
		if raw, ok := envelope[k]; ok && len(raw) > 0 && raw[0] == '{' {
			target = raw
			break
		}
	}
	var out T
	if err := json.Unmarshal(target, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}

func jsonRequest(method, path string, in any) (*Request, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return &Request{Method: method, Path: path, Body: data}, nil
}
