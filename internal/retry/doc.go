// Package retry is the single retry policy used across the pipeline.
//
// Provisioning and network operations share one [Policy]: bounded
// attempts, exponential backoff with jitter, and early exit for errors
// wrapped with [Permanent]. Centralizing the policy keeps backoff
// behavior uniform instead of scattering ad-hoc sleep loops through the
// stages.
package retry
