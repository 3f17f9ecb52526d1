package buildspec

// Dependency classification. External components are build tooling that
// never ships in a package; embedded components are runtime-linked and
// rebuilt per platform/toolchain so security patches and ABI changes are
// picked up.
type Class string

const (
	ClassExternal Class = "external"
	ClassEmbed    Class = "embed"
)

// One row of the component catalog. Order in the catalog is build order:
// tooling first, libraries in link order, and the product is appended
// last by [Generate] so it wins file conflicts during view assembly.
type catalogEntry struct {
	name     string
	class    Class
	flags    []string
	optional bool // Dropped when the minimal variant is requested.
	gpu      bool // Included only when GPU support is requested.
}

// The static classification and ordering table. Classification is never
// inferred from component contents; a component missing here is unknown
// and rejected at generation time.
var catalog = []catalogEntry{
	{name: "cmake", class: ClassExternal},
	{name: "ninja", class: ClassExternal},
	{name: "zlib", class: ClassEmbed},
	{name: "openmpi", class: ClassEmbed, flags: []string{"+romio"}},
	{name: "hdf5", class: ClassEmbed, flags: []string{"+mpi"}},
	{name: "fftw", class: ClassEmbed, flags: []string{"+mpi"}, optional: true},
	{name: "netcdf", class: ClassEmbed, flags: []string{"+parallel"}, optional: true},
	{name: "magma", class: ClassEmbed, gpu: true},
}

// Pinned dependency versions. The product version comes from the request;
// everything else is resolved here so identical requests cannot drift.
var componentVersions = map[string]string{
	"cmake":   "3.30.5",
	"ninja":   "1.12.1",
	"zlib":    "1.3.1",
	"openmpi": "5.0.5",
	"hdf5":    "1.14.5",
	"fftw":    "3.3.10",
	"netcdf":  "4.9.2",
	"magma":   "2.8.0",
}

// Looks up the classification for a component name. The product itself is
// always embedded. Returns false for names outside the catalog.
func Classify(name string) (Class, bool) {
	if name == Product {
		return ClassEmbed, true
	}
	for _, e := range catalog {
		if e.name == name {
			return e.class, true
		}
	}
	return "", false
}
