package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/1broseidon/winmesh/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
		// Validation errors are this command's output, not a reason to refuse
		// to start.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.logger = a.newLogger(cmd.ErrOrStderr())
			return nil
		},
	}

	var format string
	var defaults bool
	printCmd := &cobra.Command{
		Use:   "print",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultConfig()
			if !defaults {
				path, err := a.resolveConfigPath()
				if err != nil {
					return err
				}
				res, err := config.LoadFromPath(path)
				if err != nil {
					return err
				}
				cfg = res.Config
			}
			data, err := config.Marshal(cfg, config.Format(format))
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	printCmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or toml")
	printCmd.Flags().BoolVar(&defaults, "defaults", false, "print the built-in defaults instead of the loaded file")

	validateCmd := &cobra.Command{
		Use:   "validate [path]",
		Short: "Validate a config file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := a.resolveConfigPath()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				path = args[0]
			}
			res, err := config.LoadFromPath(path)
			if err != nil {
				return err
			}
			if res.File == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: not found, defaults are valid\n", path)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", res.File)
			return nil
		},
	}

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := a.resolveConfigPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}

	cmd.AddCommand(printCmd, validateCmd, pathCmd)
	return cmd
}
