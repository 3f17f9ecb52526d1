package buildspec

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Manifest layout consumed by the package manager inside the build
// environment. Deliberately narrower than [Spec]: orchestration policy
// (cache mode, publish mode, signing) never reaches the manager.
type manifest struct {
	Product    string      `yaml:"product"`
	Version    string      `yaml:"version"`
	Toolchain  string      `yaml:"toolchain"`
	Platform   string      `yaml:"platform"`
	Components []Component `yaml:"components"`
	Mirrors    []Mirror    `yaml:"mirrors"`
}

// Serializes the spec to the YAML manifest handed to the package manager.
// Pure: encoding the same spec twice yields identical bytes.
func EncodeManifest(spec *Spec) ([]byte, error) {
	doc := manifest{
		Product:    spec.Product,
		Version:    spec.Version,
		Toolchain:  spec.Toolchain,
		Platform:   spec.Platform,
		Components: spec.Components,
		Mirrors:    spec.Mirrors,
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return out, nil
}
