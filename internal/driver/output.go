package driver

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kilnhq/kiln/internal/buildspec"
)

// Output describes where a finished pipeline left its results. Everything
// referenced here lives under Dir and was committed with a single rename.
type Output struct {
	Dir          string // Output directory holding view/, components/ and the manifest.
	ViewDir      string
	ManifestPath string
	Manifest     Manifest

	// ComponentDirs maps each embedded component to its extracted install
	// tree, for component-level publishing.
	ComponentDirs map[string]string

	// Warnings lists cached artifacts that were rejected and rebuilt.
	Warnings []CacheIntegrityWarning
}

// Manifest is the provenance record written next to the view: what was
// built, from which spec, and where each component came from.
type Manifest struct {
	Product    string            `yaml:"product"`
	Version    string            `yaml:"version"`
	Toolchain  string            `yaml:"toolchain"`
	Platform   string            `yaml:"platform"`
	Prefix     string            `yaml:"prefix"` // Install prefix components were configured with.
	Components []ComponentRecord `yaml:"components"`
	Conflicts  []string          `yaml:"conflicts,omitempty"` // View paths claimed by more than one component.
}

// ComponentRecord is one component's provenance line.
type ComponentRecord struct {
	Name    string          `yaml:"name"`
	Version string          `yaml:"version"`
	Class   buildspec.Class `yaml:"class"`
	Source  string          `yaml:"source"` // SourceBuilt or the tier that served it.
}

// SourceBuilt marks a component compiled by this pipeline rather than
// served from a cache tier.
const SourceBuilt = "built"

// ReadOutput reconstructs the output descriptor for a committed build
// directory, for publishing after the pipeline that produced it is gone.
// Warnings are not persisted and come back empty.
func ReadOutput(dir string) (*Output, error) {
	manifestPath := filepath.Join(dir, "manifest.yaml")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriver, err)
	}
	var man Manifest
	if err := yaml.Unmarshal(data, &man); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrDriver, err)
	}

	out := &Output{
		Dir:           dir,
		ViewDir:       filepath.Join(dir, "view"),
		ManifestPath:  manifestPath,
		Manifest:      man,
		ComponentDirs: make(map[string]string),
	}

	entries, err := os.ReadDir(filepath.Join(dir, "components"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDriver, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			out.ComponentDirs[e.Name()] = filepath.Join(dir, "components", e.Name())
		}
	}
	return out, nil
}
