// Package assemble turns a finished build tree into a relocatable package.
//
// Component trees are merged into a single view with deterministic
// last-writer-wins ordering. The view is then rewritten in place so nothing
// references the build-time prefix: ELF search paths become
// $ORIGIN-relative, strings baked into binaries are patched against the
// default install root, text files and symlink targets are rewritten
// outright. A scan refuses to pack any tree that still mentions the build
// prefix. The resulting archive carries exactly three top-level entries:
// the view, an environment-modules descriptor that honors a relocation
// override variable, and install assets.
package assemble
