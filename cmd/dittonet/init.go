package main

import (
	"github.com/marmos91/dittonet/pkg/config"
	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	var force bool
	var path string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample configuration file",
		Long: `Write a commented sample configuration with one server on port 9000
serving an echo servlet (key ECHO) and an in-memory kv servlet (key KV).

Without --path the file goes to $XDG_CONFIG_HOME/dittonet/config.yaml.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				written, err := config.InitConfig(force)
				if err != nil {
					return err
				}
				path = written
			} else if err := config.InitConfigToPath(path, force); err != nil {
				return err
			}

			success("Configuration written to %s", path)
			info("Start the servers with: dittonet start --config %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing configuration file")
	cmd.Flags().StringVarP(&path, "path", "p", "", "Write to this path instead of the default location")

	return cmd
}
