package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Inspect configuration",
		Example: `  senprep config show --config region.yaml`,
	}

	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the resolved configuration",
		Long: `Display the process configuration resolved from the environment and
the loaded region configuration, both in YAML form.`,
		RunE: configShowRun,
	}
}

func configShowRun(cmd *cobra.Command, args []string) error {
	cfg := *globalCfg
	if cfg.Download.Token != "" {
		cfg.Download.Token = "[redacted]"
	}

	process, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	region, err := yaml.Marshal(globalRegion)
	if err != nil {
		return fmt.Errorf("failed to marshal region config: %w", err)
	}

	fmt.Println("Process configuration:")
	fmt.Println(string(process))
	fmt.Println("Region configuration:")
	fmt.Println(string(region))
	return nil
}
