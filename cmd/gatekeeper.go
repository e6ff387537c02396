package cmd

import (
	"fmt"
	"os"

	"github.com/avastel/gatekeeper/cmd/server"
	"github.com/avastel/gatekeeper/cmd/sweep"
	"github.com/spf13/cobra"
)

var gatekeeperCmd = &cobra.Command{
	Use:   "gatekeeper",
	Short: "Gatekeeper controls access to purchased digital downloads",
	Long: `Gatekeeper issues, validates and retires download tokens for digital
products. It classifies purchase identifiers, checks entitlement, signs
time-limited download URLs and keeps an immutable audit trail of every
access decision.`,
}

func Execute() {
	if err := gatekeeperCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	gatekeeperCmd.AddCommand(server.ServerCmd)
	gatekeeperCmd.AddCommand(sweep.SweepCmd)
}
