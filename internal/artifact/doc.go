// Package artifact defines the identity of cacheable build outputs.
//
// An [Artifact] names a component build for one platform and couples it to
// an OCI descriptor: media type, content digest, and size. The digest is
// the artifact's identity: two artifacts with the same key but different
// digests are a conflict, never an overwrite.
//
// Cache keys follow a fixed layout under a tier root:
//
//	{platform}/{component}/{version}/{name}
//	{platform}/{component}/{version}/{name}.asc
//
// The .asc sibling is the armored detached signature written when signing
// is enabled.
package artifact
