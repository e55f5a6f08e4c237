package nodes

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// ManifestName is the manifest file inside a custom node directory.
const ManifestName = "node.toml"

// Manifest describes one custom node.
type Manifest struct {
	DisplayName  string            `toml:"display_name"`
	Init         string            `toml:"init"`
	TimeoutSec   float64           `toml:"timeout_sec"`
	Env          map[string]string `toml:"env"`
	WebDirectory string            `toml:"web_directory"`
	Nodes        map[string]string `toml:"nodes"` // class name -> display name
}

// ManifestPath returns the manifest for a node path: node.toml inside a
// directory, or the path itself for a single-file node.
func ManifestPath(modulePath string) (string, error) {
	info, err := os.Stat(modulePath)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return filepath.Join(modulePath, ManifestName), nil
	}
	if !strings.EqualFold(filepath.Ext(modulePath), ".toml") {
		return "", fmt.Errorf("%s: not a node manifest", modulePath)
	}
	return modulePath, nil
}

// ReadManifest loads the manifest for modulePath.
func ReadManifest(modulePath string) (*Manifest, error) {
	path, err := ManifestPath(modulePath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := &Manifest{}
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// WriteManifest stores m as node.toml in dir.
func WriteManifest(dir string, m *Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestName), out, 0o644)
}
