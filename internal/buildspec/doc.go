// Package buildspec turns build requests into environment specifications.
//
// A [Request] names a product version, a toolchain, and feature flags.
// [Generate] expands it into a [Spec]: the ordered component list with
// pinned versions and build flags, the cache mirror list in probe-priority
// order, and the signing policy. Generation is pure, so the same request
// always produces an identical spec, and its only failure mode is
// validation, reported as an [UnsupportedCombinationError] carrying the
// supported version/toolchain matrix.
//
// Component classification is a static table, not inference: build tooling
// (compilers, generators) is external and never ships in a package, while
// runtime-linked libraries are embedded and rebuilt per platform.
//
// Example usage:
//
//	spec, err := buildspec.Generate(buildspec.Request{
//	    Version:   "25.11",
//	    Toolchain: "noble",
//	    Arch:      "amd64",
//	    CacheMode: buildspec.CacheAll,
//	})
//	if err != nil {
//	    return err
//	}
//
//	manifest, err := buildspec.EncodeManifest(spec)
package buildspec
