package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FromFile loads configuration from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Config{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into a Config.
func FromYAML(data []byte) (Config, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}
	return New(m), nil
}

// FromJSON parses JSON data into a Config.
func FromJSON(data []byte) (Config, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return Config{}, fmt.Errorf("parse json: %w", err)
	}
	return New(m), nil
}

// FromEnv builds a Config from environment entries ("KEY=value") that start
// with prefix. The prefix is stripped, the rest is lower-cased and each "__"
// becomes a nesting dot, so TASKGRAPH_REDIS__ADDR with prefix "TASKGRAPH_"
// is available as "redis.addr". Values stay strings; the typed accessors
// parse them.
func FromEnv(prefix string, environ []string) Config {
	root := make(map[string]any)
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, prefix))
		if name == "" {
			continue
		}
		setPath(root, strings.Split(name, "__"), value)
	}
	return New(root)
}

func setPath(m map[string]any, path []string, value string) {
	for _, part := range path[:len(path)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			m[part] = next
		}
		m = next
	}
	m[path[len(path)-1]] = value
}

// Load reads the optional file at path and layers prefixed environment
// variables over it. An empty path skips the file.
func Load(path, envPrefix string) (Config, error) {
	cfg := New(nil)
	if path != "" {
		fileCfg, err := FromFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}
	return cfg.Merge(FromEnv(envPrefix, os.Environ())), nil
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
