package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	goruntime "runtime"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kilnhq/kiln/internal"
)

// Represents the root command for the kiln CLI.
var RootCmd struct {
	Quiet   bool   `short:"q" help:"Suppress informational output."`
	Verbose bool   `short:"v" help:"Enable verbose output."`
	Debug   bool   `short:"d" help:"Enable debug output."`
	Socket  string `short:"s" help:"Override the default Unix socket path." placeholder:"PATH"`

	Build   BuildCmd   `cmd:"" help:"Run one build end to end."`
	Resolve ResolveCmd `cmd:"" help:"Show cache resolution for a request without building."`
	Publish PublishCmd `cmd:"" help:"Publish a committed build output to its tiers."`
	Keygen  KeygenCmd  `cmd:"" help:"Generate a signing key pair."`
	Serve   ServeCmd   `cmd:"" help:"Start the daemon."`
	Version VersionCmd `cmd:"" help:"Show version information."`
}

// Parses arguments, configures logging, and runs the selected subcommand.
func Execute() error {

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	kongCtx := kong.Parse(&RootCmd,
		kong.Name(internal.Name),
		kong.Description("Build orchestration for versioned, cached, relocatable binary artifacts."),
		kong.UsageOnError(),
		kong.Vars{
			"version": internal.VersionString(),
			"arch":    goruntime.GOARCH,
		},
		kong.BindTo(ctx, (*context.Context)(nil)),
	)

	configureLogger()

	return kongCtx.Run()
}

// Configures the global logger based on CLI flags.
//
// The binary installs a default handler before parsing so early failures
// are still logged; this replaces it once the final level is known.
func configureLogger() {
	debug := RootCmd.Debug || internal.IsDebug()
	quiet := RootCmd.Quiet || internal.IsQuiet()
	verbose := RootCmd.Verbose || internal.IsVerbose()

	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	} else if quiet {
		level = slog.LevelWarn
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: verbose,
	})))
}
