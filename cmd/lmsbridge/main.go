// lmsbridge discovers the completion API of a launched course and reports
// completion through it, falling back across every protocol it finds.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"lmsbridge/internal/config"
)

// cli carries the state shared by every subcommand.
type cli struct {
	verbose    bool
	configPath string
	output     string

	logger *zap.Logger
	cfg    *config.Config
	// cfgFile is the file cfg was loaded from, "" for defaults.
	cfgFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "lmsbridge",
		Short: "Multi-standard LMS completion adapter",
		Long: `lmsbridge finds the tracking API a course launch exposes (SCORM 1.2,
SCORM 2004, AICC/HACP, xAPI/cmi5 or a custom completion function) and
reports completion through it.

A forced completion tries the selected handle first, falls back across
every discovered handle in priority order and reads the status back to
verify the LMS accepted it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "Config file (default: search standard locations)")
	root.PersistentFlags().StringVarP(&c.output, "output", "o", "json", "Output format (json, yaml)")

	root.AddCommand(
		c.discoverCmd(),
		c.testCmd(),
		c.completeCmd(),
		c.cmiCmd(),
		c.serveCmd(),
		c.selftestCmd(),
		c.reportsCmd(),
		c.configCmd(),
	)
	return root
}

// setup builds the logger and loads the configuration.
func (c *cli) setup() error {
	zcfg := zap.NewProductionConfig()
	if c.verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	c.logger = logger

	var path string
	if c.configPath != "" {
		c.cfg, path, err = config.LoadFromPath(c.configPath)
	} else {
		c.cfg, path, err = config.Load()
	}
	if err != nil {
		return err
	}
	c.cfgFile = path
	if path != "" {
		c.logger.Debug("config loaded", zap.String("path", path))
	}
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
