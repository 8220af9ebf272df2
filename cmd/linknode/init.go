package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/linknode/internal/app"
)

func newInitCmd() *cobra.Command {
	var (
		path  string
		force bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a run config interactively",
		Long: `Walk through the target, file names, encoding and status publishing settings
and write them to a run config usable with 'linknode run --config'.`,
		Example: `  linknode init
  linknode init --config bench.yaml --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return app.RunInit(path, force, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&path, "config", "linknode.yaml", "Run config file to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}
