package app

import (
	"github.com/snapcircle/dmsocket/internal/cli"
	"github.com/snapcircle/dmsocket/internal/config"

	"github.com/spf13/cobra"
)

func DMSocket() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "dmsocket",
		Short: "dmsocket",
		Long:  "Real-time direct messaging client over Socket.IO",
		Run: func(cmd *cobra.Command, args []string) {
			Run(cmd, configFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "config.json", "path to config file")
	config.DefineFlags(cmd)
	cmd.AddCommand(
		cli.Version(),
		cli.CheckConfig(),
		cli.DefaultConfig(),
		cli.DefaultEnv(),
		cli.CheckToken(),
		cli.GenToken(),
	)
	return cmd
}
