package kits

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/d3ud3u-ntp2/spherize/keyout"
)

// ManifestName is the manifest file every kit carries at its root.
const ManifestName = "kit.json"

// LayerSpec describes one layer of a kit. All file references are
// relative to the kit directory. At most one of Mask and Key may be
// set; neither means the layer follows the shared silhouette mask.
type LayerSpec struct {
	File         string  `json:"file"`
	Mask         string  `json:"mask,omitempty"`
	Key          string  `json:"key,omitempty"`
	KeyTolerance float64 `json:"keyTolerance,omitempty"`
	OffsetX      int     `json:"offsetX,omitempty"`
	OffsetY      int     `json:"offsetY,omitempty"`
}

// Manifest is the kit.json schema. Strength and Smooth are pointers so
// an absent field keeps the caller's default instead of forcing the
// zero value.
type Manifest struct {
	Name       string      `json:"name,omitempty"`
	Background string      `json:"background"`
	Layers     []LayerSpec `json:"layers"`
	Box        string      `json:"box,omitempty"`
	Strength   *float64    `json:"strength,omitempty"`
	Smooth     *bool       `json:"smooth,omitempty"`
}

// Validate checks the manifest for the problems a bad kit.json can
// carry: missing required fields, conflicting mask sources, and file
// references that escape the kit directory.
func (m *Manifest) Validate() error {
	if m.Background == "" {
		return errors.New("manifest missing background")
	}
	if err := checkRef(m.Background); err != nil {
		return err
	}
	if len(m.Layers) == 0 {
		return errors.New("manifest has no layers")
	}
	for i, l := range m.Layers {
		if l.File == "" {
			return fmt.Errorf("layer %d: missing file", i)
		}
		if err := checkRef(l.File); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		if l.Mask != "" && l.Key != "" {
			return fmt.Errorf("layer %d: mask and key are mutually exclusive", i)
		}
		if l.Mask != "" {
			if err := checkRef(l.Mask); err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
		}
		if l.Key != "" {
			if _, err := keyout.Parse(l.Key); err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
		}
		if l.KeyTolerance < 0 {
			return fmt.Errorf("layer %d: negative key tolerance", i)
		}
	}
	if m.Box != "" {
		if err := checkRef(m.Box); err != nil {
			return err
		}
	}
	if m.Strength != nil && (*m.Strength < 0 || *m.Strength > 1) {
		return fmt.Errorf("strength %v outside [0,1]", *m.Strength)
	}
	return nil
}

func checkRef(ref string) error {
	if !filepath.IsLocal(ref) {
		return fmt.Errorf("file reference %q escapes the kit", ref)
	}
	return nil
}

// Kit is a loaded kit: the directory its files live in plus the parsed
// manifest.
type Kit struct {
	Dir      string
	Manifest Manifest
}

// Load reads and validates the manifest in dir. When dir itself has no
// kit.json it descends one level, since archives often wrap the kit in
// a single top directory.
func Load(dir string) (*Kit, error) {
	root, err := findManifestDir(dir)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(root, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("failed to read kit manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestName, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid kit manifest: %w", err)
	}
	return &Kit{Dir: root, Manifest: m}, nil
}

func findManifestDir(dir string) (string, error) {
	if _, err := os.Stat(filepath.Join(dir, ManifestName)); err == nil {
		return dir, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read kit directory: %w", err)
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sub := filepath.Join(dir, e.Name())
		if _, err := os.Stat(filepath.Join(sub, ManifestName)); err == nil {
			return sub, nil
		}
	}
	return "", fmt.Errorf("no %s in %s", ManifestName, dir)
}
