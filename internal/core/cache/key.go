package cache

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// Key builds the canonical cache key for params under namespace.
//
// Params are flattened through their JSON form so struct tags are honoured.
// Object keys are sorted and primitive values joined as k=v with "&";
// nested values are rendered as canonical JSON. Keys and values are query
// escaped, and strings that would read as a number, bool, null or JSON are
// quoted, so distinct params never share a key. Two params that differ only
// in field order produce the same key.
func Key(namespace string, params any) (string, error) {
	canonical, err := canonicalParams(params)
	if err != nil {
		return "", fmt.Errorf("cache key for %s: %w", namespace, err)
	}
	return namespace + ":" + canonical, nil
}

func canonicalParams(params any) (string, error) {
	if params == nil {
		return "", nil
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		return "", err
	}

	object, ok := value.(map[string]any)
	if !ok {
		return primitive(value)
	}

	keys := make([]string, 0, len(object))
	for key := range object {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		rendered, err := primitive(object[key])
		if err != nil {
			return "", err
		}
		parts = append(parts, url.QueryEscape(key)+"="+rendered)
	}
	return strings.Join(parts, "&"), nil
}

func primitive(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "null", nil
	case string:
		if ambiguousString(v) {
			quoted, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return url.QueryEscape(string(quoted)), nil
		}
		return url.QueryEscape(v), nil
	case bool:
		if v {
			return "true", nil
		}
		return "false", nil
	case json.Number:
		return v.String(), nil
	default:
		// map keys are sorted by the encoder
		nested, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return url.QueryEscape(string(nested)), nil
	}
}

// ambiguousString reports whether s renders like a non-string value.
func ambiguousString(s string) bool {
	switch s {
	case "null", "true", "false":
		return true
	}
	if s != "" && strings.ContainsRune(`[{"`, rune(s[0])) {
		return true
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}
