// Package publish signs build artifacts and distributes them across cache
// tiers.
//
// Signing always happens before the first tier write, so an unusable key
// never leaves a half-published tier behind. Uploads are tier-ordered and
// best-effort: tiers fail independently and failures land in the report
// instead of aborting the pipeline. Re-publishing identical content is a
// no-op; different content under an existing identity is refused, keeping
// published artifacts immutable.
package publish
