package assemble

import "strings"

// Padding component inside the build-time prefix. Keeping the build prefix
// much longer than any plausible install path lets relocation patch strings
// inside binaries in place: the replacement always fits where the original
// was.
const prefixPad = "kiln-relocate-kiln-relocate-kiln-relocate"

// BuildPrefix is the absolute install prefix components are configured with
// inside the build environment. Both sides of the package-manager contract
// derive it from the product name, so it never travels in the manifest.
func BuildPrefix(product string) string {
	return "/opt/" + prefixPad + "/" + product
}

// DefaultRoot is the baked-in install location a deployed package falls
// back to when the override variable is unset at load time.
func DefaultRoot(product, version string) string {
	return "/opt/" + product + "/" + version
}

// OverrideVar names the environment variable that relocates a deployed
// package at load time.
func OverrideVar(product string) string {
	return envPrefix(product) + "_ROOT"
}

func envPrefix(product string) string {
	v := strings.ToUpper(product)
	return strings.NewReplacer("-", "_", ".", "_").Replace(v)
}
