// Package cli implements the mealgen command tree.
package cli

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"mealgen/internal/config"
)

// Options are the process-wide settings shared by every command.
type Options struct {
	ConfigPath string
	LogLevel   string
	Pretty     bool

	Stdout io.Writer
	Stderr io.Writer

	// filled in by PersistentPreRunE
	cfg config.Config
	log zerolog.Logger
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd(&Options{Stdout: os.Stdout, Stderr: os.Stderr}).Execute()
}

// NewRootCmd constructs the command tree.
func NewRootCmd(o *Options) *cobra.Command {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	root := &cobra.Command{
		Use:           "mealgen",
		Short:         "Generate a week of meals with recipes, images and a grocery list",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(o.Stdout)
	root.SetErr(o.Stderr)

	root.PersistentFlags().StringVar(&o.ConfigPath, "config", envStr("MEALGEN_CONFIG", ""), "Config file (.yaml|.yml|.json|.toml); defaults to "+config.DefaultPath+" when present")
	root.PersistentFlags().StringVar(&o.LogLevel, "log-level", envStr("MEALGEN_LOG_LEVEL", ""), "Log level: debug|info|warn|error|off")
	root.PersistentFlags().BoolVar(&o.Pretty, "pretty", envBool("MEALGEN_PRETTY_LOGS", false), "Human-readable console logs")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return o.load(cmd)
	}

	root.AddCommand(newServeCmd(o), newGenerateCmd(o))
	return root
}

// load reads the config file, applies flag overrides and defaults, and
// builds the logger.
func (o *Options) load(cmd *cobra.Command) error {
	cfg, err := config.LoadOptional(o.ConfigPath)
	if err != nil {
		return err
	}
	if o.LogLevel != "" {
		cfg.LogLevel = o.LogLevel
	}
	if cmd.Flags().Changed("pretty") || o.Pretty {
		cfg.PrettyLogs = o.Pretty
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	o.cfg = cfg.Defaults()
	o.log = newLogger(o.Stderr, o.cfg.LogLevel, o.cfg.PrettyLogs)
	return nil
}
