package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func handleHelpArg(cmd *cobra.Command, args []string) bool {
	if len(args) == 0 {
		return false
	}
	if strings.EqualFold(args[0], "help") {
		_ = cmd.Help()
		return true
	}
	return false
}

func missingArgError(cmd *cobra.Command, what string) error {
	_ = cmd.Help()
	return fmt.Errorf("required argument %s not set", what)
}

// exitFatal reports a fatal harness error and exits with status 2.
func exitFatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(2)
}
