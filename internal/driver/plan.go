package driver

import (
	"maps"
	"sort"
	"strings"
)

// step is one bootstrap action. A step with a command runs it; a step
// without one only carries modifiers. Modifiers persist for every step
// that follows, and for the component builds afterwards.
type step struct {
	run     string
	env     map[string]string
	workdir string
}

// planState accumulates modifiers while the bootstrap executes. State
// flows linearly through the step list.
type planState struct {
	workdir string
	env     map[string]string
}

func newPlanState() *planState {
	return &planState{env: make(map[string]string)}
}

func (s *planState) apply(st step) {
	if st.workdir != "" {
		s.workdir = st.workdir
	}
	maps.Copy(s.env, st.env)
}

// environ renders the accumulated environment as KEY=value pairs, sorted
// so identical state produces identical process invocations.
func (s *planState) environ() []string {
	env := make([]string, 0, len(s.env))
	for k, v := range s.env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)
	return env
}

// Base toolchain for component builds. The package manager compiles
// everything else itself.
var bootstrapPackages = []string{
	"build-essential",
	"ca-certificates",
	"curl",
	"git",
	"pkg-config",
	"python3",
	"python3-pip",
}

// Pinned package manager release. Bumped deliberately; a floating version
// here would make identical requests drift.
const managerPackage = "hpkg==1.6.2"

// bootstrapPlan is the environment preparation sequence: apt state, the
// compiler toolchain, the package manager, and the build layout. Every
// command tolerates re-execution, so a retried Preparing stage never
// breaks a half-prepared environment.
//
// PIP_BREAK_SYSTEM_PACKAGES is set as an environment variable rather than
// a flag: older toolchain images carry a pip that rejects the flag but
// ignores the variable.
func bootstrapPlan() []step {
	return []step{
		{env: map[string]string{
			"DEBIAN_FRONTEND":           "noninteractive",
			"PIP_BREAK_SYSTEM_PACKAGES": "1",
			"KILN_CACHE":                envCache,
		}},
		{run: "apt-get update -q"},
		{run: "apt-get install -y -q --no-install-recommends " + strings.Join(bootstrapPackages, " ")},
		{run: "pip3 install --quiet " + managerPackage},
		{workdir: envSrc},
	}
}
