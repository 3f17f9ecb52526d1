// Package driver runs the build pipeline: it provisions an isolated
// environment, prepares it, materializes cache hits, builds what must be
// built, assembles the relocatable view and commits the results to
// durable storage.
//
// A pipeline advances through a fixed stage sequence; each stage's output
// is a precondition for the next, and no stage is skipped or reordered.
// Cancellation is honored at stage boundaries, and cleanup runs exactly
// once no matter how the pipeline ends.
package driver
