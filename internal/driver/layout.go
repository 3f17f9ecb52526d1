package driver

import "path"

// Filesystem layout inside the build environment. Everything the pipeline
// touches lives under one root, so inspecting a wedged environment means
// looking at a single tree.
const (
	envRoot     = "/kiln"
	envManifest = envRoot + "/manifest.yaml"
	envInstall  = envRoot + "/install"
	envSrc      = envRoot + "/src"
	envCache    = envRoot + "/cache"
)

// installDir is the staged install tree for one component. Components
// never install into each other's directories; the merged view is built
// on the host after extraction.
func installDir(component string) string {
	return path.Join(envInstall, component)
}
