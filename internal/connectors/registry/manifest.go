package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the entry-point file every connector directory must carry.
const ManifestFile = "driver.yaml"

var (
	errManifestMissing = errors.New("manifest missing")
	errManifestInvalid = errors.New("manifest invalid")
)

// Manifest binds a connector directory to a registered driver kind and may
// override its descriptor fields.
type Manifest struct {
	Kind        string `yaml:"kind"`
	Name        string `yaml:"name"`
	SystemType  string `yaml:"system_type"`
	Description string `yaml:"description"`
	Version     string `yaml:"version"`
	Icon        string `yaml:"icon"`
	IconClass   string `yaml:"icon_class"`
}

func (m Manifest) apply(base Identity) Identity {
	out := base
	if v := strings.TrimSpace(m.Name); v != "" {
		out.Name = v
	}
	if v := strings.TrimSpace(m.SystemType); v != "" {
		out.SystemType = v
	}
	if v := strings.TrimSpace(m.Description); v != "" {
		out.Description = v
	}
	if v := strings.TrimSpace(m.Version); v != "" {
		out.Version = v
	}
	if v := strings.TrimSpace(m.Icon); v != "" {
		out.Icon = v
	}
	if v := strings.TrimSpace(m.IconClass); v != "" {
		out.IconClass = v
	}
	return out
}

func readManifest(fsys fs.FS, dir string) (*Manifest, error) {
	raw, err := fs.ReadFile(fsys, path.Join(dir, ManifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, errManifestMissing
		}
		return nil, fmt.Errorf("%w: %v", errManifestInvalid, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", errManifestInvalid, err)
	}
	if strings.TrimSpace(m.Kind) == "" {
		return nil, fmt.Errorf("%w: kind is required", errManifestInvalid)
	}
	return &m, nil
}

func manifestReason(err error) string {
	if errors.Is(err, errManifestMissing) {
		return "missing_entry_point"
	}
	return "invalid_manifest"
}
