package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/maxgio92/xspy/internal/settings"
	"github.com/maxgio92/xspy/pkg/cmd/symbols"
	"github.com/maxgio92/xspy/pkg/cmd/trace"
)

const logLevelInfo = "info"

func NewCommand(o *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   settings.CmdName,
		Short: fmt.Sprintf("%s is a sampling profiler toolkit", settings.CmdName),
		Long: fmt.Sprintf(`
%s resolves the symbols and the BSS region of executable images as loaded in a process,
and encodes stack samples into timeline traces for the Chrome trace viewer and Perfetto.
It supports ELF, Mach-O and PE images.
`, settings.CmdName),
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		PersistentPreRunE: o.setLogLevel,
	}
	cmd.PersistentFlags().StringVar(&o.LogLevel, "log-level", logLevelInfo, "Sets the log level (trace, debug, info, warn, error, fatal, panic)")

	cmd.AddCommand(symbols.NewCommand(o.CommonOptions))
	cmd.AddCommand(trace.NewCommand(o.CommonOptions))

	return cmd
}

func (o *Options) setLogLevel(_ *cobra.Command, _ []string) error {
	level, err := log.ParseLevel(o.LogLevel)
	if err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	o.Logger = o.Logger.Level(level)

	return nil
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(
		log.ConsoleWriter{Out: os.Stderr},
	).With().Timestamp().Logger()

	opts := NewOptions(
		WithContext(ctx),
		WithLogger(logger),
	)

	if err := NewCommand(opts).ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
