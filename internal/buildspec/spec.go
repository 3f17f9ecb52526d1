package buildspec

import "fmt"

// Name of the product this pipeline builds. The product component is
// always last in the component list so it wins view merge conflicts.
const Product = "helios"

// One resolved component requirement: a pinned name/version pair with its
// build flags and classification.
type Component struct {
	Name    string   `yaml:"name"`
	Version string   `yaml:"version"`
	Flags   []string `yaml:"flags,omitempty"`
	Class   Class    `yaml:"class"`
}

// Signing policy derived from the request. When enabled, every published
// artifact carries a detached signature and untrusted downloads are
// rejected.
type Signing struct {
	Enabled bool
	KeyRef  string
}

// A fully resolved, deterministic description of one build: what to
// build, in what order, against which mirrors, under which policy.
// Derived solely from a [Request]; never mutated after generation.
type Spec struct {
	Product   string
	Version   string
	Toolchain string
	Arch      string
	Platform  string // Toolchain-arch slug, e.g. "noble-amd64".
	Image     string // Base image for the isolated environment.

	Verify      bool
	CacheMode   CacheMode
	PublishMode PublishMode

	Components []Component // Build order; the product is last.
	Mirrors    []Mirror    // Probe priority order; narrowest first.
	Signing    Signing
}

// Expands a request into its environment spec.
//
// Total and pure: identical requests yield identical specs, and the only
// failure mode is validation. Structural errors wrap [ErrValidation],
// and a version/toolchain pair outside the build matrix returns an
// [UnsupportedCombinationError].
func Generate(req Request) (*Spec, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if !combinationSupported(req.Version, req.Toolchain) {
		return nil, &UnsupportedCombinationError{
			Version:   req.Version,
			Toolchain: req.Toolchain,
			Supported: supported,
		}
	}

	root := req.CacheRoot
	if root == "" {
		root = DefaultCacheRoot
	}

	spec := &Spec{
		Product:     Product,
		Version:     req.Version,
		Toolchain:   req.Toolchain,
		Arch:        req.Arch,
		Platform:    req.Toolchain + "-" + req.Arch,
		Image:       toolchainImages[req.Toolchain],
		Verify:      req.Verify,
		CacheMode:   req.CacheMode,
		PublishMode: req.PublishMode,
		Components:  components(req),
		Mirrors:     defaultMirrors(root, req.Version, req.Toolchain),
		Signing: Signing{
			Enabled: req.KeyRef != "",
			KeyRef:  req.KeyRef,
		},
	}

	return spec, nil
}

// Assembles the ordered component list for a request: catalog entries
// filtered by the feature flags, then the product component with its
// variant flags.
func components(req Request) []Component {
	list := make([]Component, 0, len(catalog)+1)

	for _, e := range catalog {
		if e.optional && req.Minimal {
			continue
		}
		if e.gpu && !req.GPU {
			continue
		}
		list = append(list, Component{
			Name:    e.name,
			Version: componentVersions[e.name],
			Flags:   append([]string(nil), e.flags...),
			Class:   e.class,
		})
	}

	return append(list, Component{
		Name:    Product,
		Version: req.Version,
		Flags:   targetFlags(req),
		Class:   ClassEmbed,
	})
}

// Variant flags for the product component, in a fixed order so specs
// compare byte-for-byte.
func targetFlags(req Request) []string {
	flags := []string{"+mpi"}
	if req.GPU {
		flags = append(flags, "+gpu")
	} else {
		flags = append(flags, "~gpu")
	}
	if req.Minimal {
		flags = append(flags, "~docs")
	} else {
		flags = append(flags, "+docs")
	}
	return flags
}

// Returns a copy of the spec with its component list replaced. The
// receiver is unchanged. Republishing uses this to describe an existing
// output whose component set comes from its recorded manifest rather
// than from a request.
func (s *Spec) WithComponents(comps []Component) *Spec {
	out := *s
	out.Components = append([]Component(nil), comps...)
	return &out
}

// Returns the product component.
func (s *Spec) Target() Component {
	for _, c := range s.Components {
		if c.Name == s.Product {
			return c
		}
	}
	// Generate always appends the product; reaching this is a programming
	// error in spec construction.
	panic(fmt.Sprintf("spec for %s has no target component", s.Product))
}

// Returns the components that ship in the relocatable package, in build
// order. External tooling is excluded.
func (s *Spec) Embedded() []Component {
	var out []Component
	for _, c := range s.Components {
		if c.Class == ClassEmbed {
			out = append(out, c)
		}
	}
	return out
}
