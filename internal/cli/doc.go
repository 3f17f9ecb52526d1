// Parses flags, reads environment configuration and runs kiln commands.
//
// Every command accepts the following flags:
//
//	-q, --quiet     Suppress informational output.
//	-v, --verbose   Enable verbose output.
//	-d, --debug     Enable debug output.
//	-s, --socket    Unix socket path.
//
// Flags override KILN_* environment configuration, which overrides
// build-time defaults set via linker flags. After parsing, the global
// logger is reconfigured to reflect the final level and verbosity before
// the selected command runs.
package cli
