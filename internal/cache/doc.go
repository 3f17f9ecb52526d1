// Package cache resolves which components can come from cache tiers.
//
// For every component in a spec, the [Resolver] probes the spec's mirrors
// in priority order through the package manager's cache query. The first
// tier holding the component's artifact yields a hit; no tier yields
// must-build. Resolution is read-only and repeatable: it never mutates a
// tier, and a tier outage during probing degrades to the next tier rather
// than failing the build.
//
// A hit is a hint, not a guarantee: tiers are remote and can change
// between resolution and consumption. The execution driver re-verifies
// every hit when it materializes the artifact and demotes single
// components to must-build on verification failure.
package cache
