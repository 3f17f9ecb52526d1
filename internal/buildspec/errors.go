package buildspec

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrValidation = errors.New("invalid build request")
	ErrEncode     = errors.New("manifest encoding failed")
)

// Reports a version/toolchain pair outside the supported build matrix.
//
// Carries the full matrix so callers can print the valid combinations
// instead of making the user guess.
type UnsupportedCombinationError struct {
	Version   string
	Toolchain string
	Supported map[string][]string // Version to the toolchains it builds on.
}

func (e *UnsupportedCombinationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "unsupported combination %s/%s; supported:", e.Version, e.Toolchain)

	versions := make([]string, 0, len(e.Supported))
	for v := range e.Supported {
		versions = append(versions, v)
	}
	sort.Strings(versions)

	for _, v := range versions {
		fmt.Fprintf(&b, " %s(%s)", v, strings.Join(e.Supported[v], ","))
	}
	return b.String()
}
