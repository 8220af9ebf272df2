package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/linknode/internal/app"
)

type encodeFlags struct {
	layout string
	strict bool
	trace  bool
	out    string
}

func newEncodeCmd() *cobra.Command {
	flags := &encodeFlags{}

	cmd := &cobra.Command{
		Use:   "encode <input_file>",
		Short: "Encode a transition file and dump the status buffer",
		Long: `Encode one digital-input transition file the way 'run' does and print the
resulting status buffer block by block, or write the raw bytes with --out.`,
		Example: `  linknode encode updates-1.txt
  linknode encode updates-1.txt --layout paired --trace
  linknode encode updates-1.txt --out update.bin`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "<input_file>")
			}
			return app.RunEncode(app.EncodeOptions{
				InputFile: args[0],
				Layout:    flags.layout,
				Strict:    flags.strict,
				Trace:     flags.trace,
				OutFile:   flags.out,
			}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&flags.layout, "layout", "per-line", "Status buffer layout: per-line|paired")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "Reject malformed transition lines instead of padding them")
	cmd.Flags().BoolVar(&flags.trace, "trace", false, "Print the per-block bit trace")
	cmd.Flags().StringVar(&flags.out, "out", "", "Write the raw buffer to this file instead of dumping it")

	return cmd
}
