// Package sweep implements a one-shot expiry sweep for operators, so
// expired tokens can be closed on demand without waiting for the
// server's background janitor.
package sweep

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/avastel/gatekeeper/config"
	log "github.com/avastel/gatekeeper/logger"
	"github.com/avastel/gatekeeper/token"
)

var (
	configPath string

	SweepCmd = &cobra.Command{
		Use:   "sweep",
		Short: "Deactivate all expired download tokens and exit",
		Long: `
Usage: gatekeeper sweep --config=/etc/gatekeeper/config.hcl

  Runs one janitor sweep against the configured storage: every active
  token past its expiry is transitioned to inactive with the expired
  reason, then the command exits.
  `,
		RunE: runSweep,
	}
)

func init() {
	SweepCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (e.g., path/to/gatekeeper.hcl)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("config file path is required. Use -c or --config flag")
	}

	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if conf.Storage == nil {
		return fmt.Errorf("a storage backend must be specified")
	}

	logger := log.New(&log.Config{
		Level:       log.ErrorLevel,
		Format:      log.JSONFormat,
		Outputs:     []io.Writer{os.Stderr},
		Environment: "production",
	})
	defer logger.Close()

	var store token.Store
	switch conf.Storage.Type {
	case "inmem":
		return fmt.Errorf("inmem storage holds no tokens between processes, nothing to sweep")
	case "postgres":
		store, err = token.NewPostgresStore(conf.Storage.Config(), logger)
		if err != nil {
			return fmt.Errorf("error initializing storage: %w", err)
		}
	default:
		return fmt.Errorf("unknown storage type %s", conf.Storage.Type)
	}
	defer store.Close()

	janitor := token.NewJanitor(store, logger, &token.Metrics{}, 0)

	deactivated, err := janitor.SweepExpired(cmd.Context())
	if err != nil {
		return fmt.Errorf("sweep finished with errors after deactivating %d tokens: %w", deactivated, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Sweep complete: %d expired tokens deactivated\n", deactivated)
	return nil
}
