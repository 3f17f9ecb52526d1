package buildspec

// Supported product version to toolchain matrix. A request outside this
// table fails generation with an [UnsupportedCombinationError]; the table
// is also embedded in the error so the caller can print valid choices.
var supported = map[string][]string{
	"25.05": {"jammy", "noble"},
	"25.11": {"noble", "trixie"},
	"26.05": {"noble", "trixie"},
}

// Base images for provisioning the isolated build environment, keyed by
// toolchain. References are fully qualified for containerd resolution.
var toolchainImages = map[string]string{
	"jammy":  "docker.io/library/ubuntu:22.04",
	"noble":  "docker.io/library/ubuntu:24.04",
	"trixie": "docker.io/library/debian:trixie",
}

// Reports whether the version/toolchain pair is inside the build matrix.
func combinationSupported(version, toolchain string) bool {
	for _, tc := range supported[version] {
		if tc == toolchain {
			return true
		}
	}
	return false
}
