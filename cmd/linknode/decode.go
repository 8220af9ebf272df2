package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/linknode/internal/app"
)

func newDecodeCmd() *cobra.Command {
	var expected string

	cmd := &cobra.Command{
		Use:   "decode <reply_hex>",
		Short: "Decode a mitigation reply into per-device power classes",
		Long: `Decode a mitigation reply given as hex (spaces, colons and 0x prefixes are
ignored) and print the power class of every device. With --expected the
classes are compared with the first line of a mitigation file.`,
		Example: `  linknode decode "21 43"
  linknode decode 0x2143 --expected mitigation-1.txt`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if len(args) == 0 {
				return missingArgError(cmd, "<reply_hex>")
			}
			return app.RunDecode(app.DecodeOptions{
				ReplyHex:     args[0],
				ExpectedFile: expected,
			}, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&expected, "expected", "", "Mitigation file to compare the decoded classes with")

	return cmd
}
