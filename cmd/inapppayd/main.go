package main

import (
	"log"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inapppayd",
		Short: "Purchase verification orchestrator",
		Long: `inapppayd drives purchases through a payment queue, verifies their receipts
against the sandbox or production verifyReceipt endpoint and finishes each
transaction once its outcome is known.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCommand(), newVerifyCommand())
	return cmd
}
