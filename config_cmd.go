package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ion-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigInitCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		RunE:  runConfigShow,
	}
}

func newConfigInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a commented config file with every default",
		RunE:  runConfigInit,
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Cfg == nil {
		return fmt.Errorf("no configuration loaded")
	}

	if cc.Flags.JSON {
		return printJSON(cc.Out, cc.Cfg.Config)
	}

	return config.RenderEffective(cc.Cfg, cc.Out)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	path := configInitPath(flagConfigPath, config.ReadEnvOverrides())
	if path == "" {
		return fmt.Errorf("cannot determine config directory, pass --config")
	}

	if err := config.WriteTemplate(path); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%w (edit it or remove it first)", err)
		}

		return err
	}

	cc.Statusf("Wrote %s\n", path)

	return nil
}

// configInitPath picks the file config init writes, with the same
// precedence Resolve uses to read it.
func configInitPath(flagPath string, env config.EnvOverrides) string {
	if flagPath != "" {
		return flagPath
	}

	if env.ConfigPath != "" {
		return env.ConfigPath
	}

	return config.DefaultConfigPath()
}
