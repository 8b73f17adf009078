package workflows

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/randalmurphal/taskgraph/pkg/taskgraph/definition"
	"github.com/randalmurphal/taskgraph/pkg/taskgraph/registry"
)

// LoadDir builds every .yaml, .yml and .json definition in dir against the
// node registry for deps and adds it to catalog. A name that is already
// registered is an error. Files are loaded in name order.
func LoadDir(catalog *registry.Registry[*definition.Workflow], dir string, deps Deps) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}

	nodes := NodeRegistry(deps)
	var loaded []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".yaml", ".yml", ".json":
		default:
			continue
		}

		path := filepath.Join(dir, entry.Name())
		wf, err := definition.Load(path, nodes)
		if err != nil {
			return loaded, fmt.Errorf("%s: %w", path, err)
		}
		if err := catalog.Register(wf.Name, wf); err != nil {
			return loaded, fmt.Errorf("%s: %w", path, err)
		}
		loaded = append(loaded, wf.Name)
	}
	return loaded, nil
}
