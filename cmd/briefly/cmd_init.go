package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DreamCats/briefly/cmd/briefly/internal"
	"github.com/DreamCats/briefly/internal/config"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "init",
		Short:       "Write a commented default config file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfig: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := internal.ConfigPath(a.configPath)
			if err != nil {
				return err
			}
			created, err := config.WriteDefaultTemplate(path)
			if err != nil {
				return err
			}
			if created {
				fmt.Printf("Wrote config template to %s\n", path)
			} else {
				fmt.Printf("Config already exists at %s (left unchanged)\n", path)
			}
			return nil
		},
	}
}
