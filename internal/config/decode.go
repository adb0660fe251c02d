package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

var ErrTrailingData = errors.New("config: trailing data")

// Decode parses raw config bytes. The format is picked from the file extension:
// .yaml/.yml go through yaml first and are then re-encoded as JSON, so both
// formats share the same strict decoder.
func Decode(name string, data []byte) (*Config, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		var tree any
		if err := yaml.Unmarshal(data, &tree); err != nil {
			return nil, fmt.Errorf("yaml: %w", err)
		}
		if tree == nil {
			data = []byte("{}")
			break
		}
		j, err := json.Marshal(stringKeys(tree))
		if err != nil {
			return nil, fmt.Errorf("yaml to json: %w", err)
		}
		data = j
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, ErrTrailingData
		}
		return nil, err
	}
	return &cfg, nil
}

// stringKeys rewrites yaml's map[any]any nodes into map[string]any.
func stringKeys(v any) any {
	switch n := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(n))
		for k, e := range n {
			out[fmt.Sprint(k)] = stringKeys(e)
		}
		return out
	case map[string]any:
		for k, e := range n {
			n[k] = stringKeys(e)
		}
		return n
	case []any:
		for i := range n {
			n[i] = stringKeys(n[i])
		}
		return n
	}
	return v
}

func fingerprint(cfg *Config) uint64 {
	if cfg == nil {
		return 0
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
