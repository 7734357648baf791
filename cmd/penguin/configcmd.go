package main

import (
	"fmt"
	"os"

	"github.com/penguin-run/penguin/pkg/config"
	"github.com/spf13/cobra"
)

// buildConfigCmd groups direct read/write access to one config key in a
// single scope, grounded on original_source/penguin/config.py's
// set_config_value/get_config_value (project vs. global scope).
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read or write a single config key in the project or global override file",
	}
	cmd.AddCommand(buildConfigSetCmd(), buildConfigGetCmd())
	return cmd
}

func buildConfigSetCmd() *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Set a dotted config key in the project-local or global override file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := overrideScopePath(scope, workspaceDir)
			if err != nil {
				return err
			}
			return config.SetOverrideValue(path, args[0], args[1])
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "project", "project (settings.local.yaml) or global (user config)")
	return cmd
}

func buildConfigGetCmd() *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "get [key]",
		Short: "Print a dotted config key from the project-local or global override file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := overrideScopePath(scope, workspaceDir)
			if err != nil {
				return err
			}
			value, ok, err := config.GetOverrideValue(path, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("key %q not set in %s", args[0], path)
			}
			fmt.Println(value)
			return nil
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "project", "project (settings.local.yaml) or global (user config)")
	return cmd
}

func overrideScopePath(scope, workspaceDir string) (string, error) {
	switch scope {
	case "project":
		if workspaceDir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			workspaceDir = wd
		}
		return config.StandardPaths("penguin", workspaceDir).ProjectOverridesPath, nil
	case "global":
		return config.StandardPaths("penguin", "").UserConfigPath, nil
	default:
		return "", fmt.Errorf("scope must be %q or %q", "project", "global")
	}
}
