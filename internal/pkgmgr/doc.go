// Package pkgmgr is the typed port to the external package manager.
//
// The pipeline never parses package manager output or reimplements its
// solver; it drives the manager through three operations.
// [Manager.QueryCache] is a lightweight existence probe against one cache
// tier, with no download and no side effects. [Manager.BuildComponent]
// invokes the manager's build for a single component inside the isolated
// environment and reports a structured result. [Manager.VerifyComponent]
// rechecks a freshly built tree when the build demands verification.
//
// [CLI] is the production implementation: cache probes go straight to the
// tier's object store, builds shell out to the manager binary through a
// [Runner] provided by the execution driver.
package pkgmgr
