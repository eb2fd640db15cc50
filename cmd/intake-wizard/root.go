package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"
)

// Defaults for the terminal client.
const (
	DefaultServerURL   = "http://localhost:8080"
	DefaultStateSubdir = "intake-wizard"
	LocalDBFileName    = "wizard.db"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server   string
	StateDir string
	Format   string // "text" | "json" | "yaml"
	Verbose  bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

func defaultStateDir() string {
	if dir := os.Getenv("INTAKE_WIZARD_STATE_DIR"); dir != "" {
		return dir
	}
	if base, err := os.UserConfigDir(); err == nil {
		return filepath.Join(base, DefaultStateSubdir)
	}
	return "." + DefaultStateSubdir
}

func defaultServerURL() string {
	if url := os.Getenv("INTAKE_SERVER_URL"); url != "" {
		return url
	}
	return DefaultServerURL
}

func newRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "intake-wizard",
		Short: "Patient intake questionnaire",
		Long: `Fill in the clinic intake questionnaire from a terminal.

Answers are saved in the state directory after every screen, so an
interrupted session picks up where it stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			configureLogger(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", defaultServerURL(), "intake server base URL (overrides $INTAKE_SERVER_URL)")
	cmd.PersistentFlags().StringVar(&opts.StateDir, "state-dir", defaultStateDir(), "directory for saved progress (overrides $INTAKE_WIZARD_STATE_DIR)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging on stderr")

	cmd.AddCommand(newFillCommand(opts))
	cmd.AddCommand(newShowCommand(opts))
	cmd.AddCommand(newResetCommand(opts))

	return cmd
}

// configureLogger keeps the form readable: only warnings reach the terminal
// unless verbose is set.
func configureLogger(w io.Writer, verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}
