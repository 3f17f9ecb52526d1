// Package paths resolves the directories and well-known files used by kiln.
//
// All locations follow the XDG base directory specification so the tool
// behaves predictably across Linux distributions and macOS. Callers are
// expected to create directories on first use with DefaultDirMode.
package paths
