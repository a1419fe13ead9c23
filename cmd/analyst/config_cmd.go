package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ChamsBouzaiene/analyst/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	path := &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager(cmd)
			if err != nil {
				return err
			}
			stdoutf("%s\n", m.Path())
			return nil
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manager(cmd)
			if err != nil {
				return err
			}
			if m.Exists() && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", m.Path())
			}
			if err := m.Save(config.Default()); err != nil {
				return err
			}
			stdoutf("wrote %s\n", m.Path())
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration (file plus environment)",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.LLM.APIKey != "" {
				cfg.LLM.APIKey = maskKey(cfg.LLM.APIKey)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			stdoutf("%s", data)
			return nil
		},
	}

	cmd.AddCommand(path, initCmd, show)
	return cmd
}

func manager(cmd *cobra.Command) (*config.Manager, error) {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return config.NewManagerAt(p), nil
	}
	return config.NewManager()
}

func maskKey(k string) string {
	if len(k) <= 8 {
		return "****"
	}
	return k[:4] + "****" + k[len(k)-4:]
}
