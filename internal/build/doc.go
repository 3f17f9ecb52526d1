// Package build runs one build request end to end: spec generation,
// cache resolution, the isolated build pipeline, package assembly, and
// publishing. It is the single entry point shared by the CLI and the
// daemon; both hand it a request and a set of collaborators and receive
// the finished result.
//
// Component blobs for publishing are archived before the view is
// relocated, so cached trees keep the build-prefix layout later pipelines
// expect, while the shipped package carries the relocated view.
package build
