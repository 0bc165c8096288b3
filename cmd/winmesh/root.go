package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/1broseidon/winmesh/internal/config"
)

// app carries what every command needs after flag parsing.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "winmesh",
		Short: "Connect the centers of cooperating windows into one shared shape",
		Long: `winmesh runs one instance per window. Instances discover each other over a
shared broadcast channel, replicate every window's geometry and draw either
the closed polygon through all window centers or, per window, the two rays
pointing at its neighbors on that polygon.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "config file (default $WINMESH_CONFIG or ~/.config/winmesh/config.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRunCmd(a))
	root.AddCommand(newRelayCmd(a))
	root.AddCommand(newDemoCmd(a))
	root.AddCommand(newRenderCmd(a))
	root.AddCommand(newConfigCmd(a))
	root.AddCommand(newMCPCmd(a))
	return root
}

func (a *app) resolveConfigPath() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	return config.DefaultConfigPath()
}

// load reads and validates the config and builds the logger.
func (a *app) load(stderr io.Writer) error {
	path, err := a.resolveConfigPath()
	if err != nil {
		return err
	}
	res, err := config.LoadFromPath(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	a.cfg = res.Config
	a.logger = a.newLogger(stderr)
	if res.File != "" {
		a.logger.Debug("config loaded", "file", res.File, "format", res.Format)
	}
	return nil
}

func (a *app) newLogger(stderr io.Writer) *slog.Logger {
	cfg := a.cfg
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	level, err := config.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	if a.verbose {
		level = slog.LevelDebug
	}
	return newLogger(stderr, level, cfg.Logging.Format)
}
