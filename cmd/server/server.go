package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/avastel/gatekeeper/audit"
	"github.com/avastel/gatekeeper/catalog"
	"github.com/avastel/gatekeeper/config"
	"github.com/avastel/gatekeeper/core"
	"github.com/avastel/gatekeeper/delivery"
	"github.com/avastel/gatekeeper/entitlement"
	gatekeeperhttp "github.com/avastel/gatekeeper/http"
	"github.com/avastel/gatekeeper/listener"
	"github.com/avastel/gatekeeper/listener/api"
	log "github.com/avastel/gatekeeper/logger"
	"github.com/avastel/gatekeeper/token"
)

const (
	// Subsystem names for logging
	subsystemCore     = "core"
	subsystemListener = "listener"

	// Listener type names
	listenerTypeTCP  = "tcp"
	listenerTypeUnix = "unix"
)

type storageFactory func(conf map[string]string, logger log.Logger) (token.Store, error)

var (
	configPath string

	ServerCmd = &cobra.Command{
		Use:   "server",
		Short: "This command starts a Gatekeeper server that responds to API requests",
		Long: `
Usage: gatekeeper server [options]

  This command starts a Gatekeeper server that responds to API requests.

  Start a server with a configuration file:

      $ gatekeeper server --config=/etc/gatekeeper/config.hcl

  For a full list of examples, please see the documentation.
  `,
		RunE: run,
	}

	wg sync.WaitGroup

	cleanupGuard sync.Once

	auditDeviceFactories = map[string]audit.Factory{
		"file": &audit.FileDeviceFactory{},
	}

	storageBackends = map[string]storageFactory{
		"inmem": func(conf map[string]string, logger log.Logger) (token.Store, error) {
			return token.NewInmemStore(), nil
		},
		"postgres": func(conf map[string]string, logger log.Logger) (token.Store, error) {
			return token.NewPostgresStore(conf, logger)
		},
	}
)

func init() {
	ServerCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file (e.g., path/to/gatekeeper.hcl)")
}

func run(cmd *cobra.Command, args []string) error {
	// Validate config path is provided
	if configPath == "" {
		return fmt.Errorf("config file path is required. Use -c or --config flag")
	}

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", configPath)
	}

	// Load configuration
	conf, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := buildLogger(conf)
	defer logger.Close()

	// craft the storage
	storage, err := buildStorage(conf, logger)
	if err != nil {
		return fmt.Errorf("failed to construct the storage: %w", err)
	}

	infoKeys := make([]string, 0, 10)
	info := make(map[string]string)
	info["log level"] = conf.LogLevel
	infoKeys = append(infoKeys, "log level")
	info["log file"] = conf.LogFile
	infoKeys = append(infoKeys, "log file")
	info["log format"] = conf.LogFormat
	infoKeys = append(infoKeys, "log format")
	info["storage"] = conf.Storage.Type
	infoKeys = append(infoKeys, "storage")

	// returns a slice of env vars formatted as "key=value"
	envVars := os.Environ()
	var envVarKeys []string
	for _, v := range envVars {
		splitEnvVars := strings.Split(v, "=")
		envVarKeys = append(envVarKeys, splitEnvVars[0])
	}

	sort.Strings(envVarKeys)

	key := "environment variables"
	info[key] = strings.Join(envVarKeys, ", ")
	infoKeys = append(infoKeys, key)

	codec, err := token.NewCodec(conf.TokenSigningKey)
	if err != nil {
		return fmt.Errorf("failed to construct the token codec: %w", err)
	}

	policy, err := buildPolicy(conf)
	if err != nil {
		return fmt.Errorf("failed to build the token policy: %w", err)
	}

	auditMgr, err := buildAuditManager(cmd.Context(), conf, logger, &infoKeys, info)
	if err != nil {
		return fmt.Errorf("failed to set up audit devices: %w", err)
	}

	cat, err := buildCatalog(conf, logger, &infoKeys, info)
	if err != nil {
		return fmt.Errorf("failed to construct the catalog client: %w", err)
	}

	oracle, err := buildEntitlement(conf, logger, &infoKeys, info)
	if err != nil {
		return fmt.Errorf("failed to construct the entitlement client: %w", err)
	}

	signer, urlTTL, err := buildDelivery(cmd.Context(), conf, &infoKeys, info)
	if err != nil {
		return fmt.Errorf("failed to construct the delivery signer: %w", err)
	}

	var janitorInterval time.Duration
	if conf.Janitor != nil {
		janitorInterval, err = conf.Janitor.IntervalDuration()
		if err != nil {
			return fmt.Errorf("invalid janitor interval: %w", err)
		}
	}

	newCore, err := core.NewCore(&core.CoreConfig{
		Logger:              logger.WithSubsystem(subsystemCore),
		Store:               storage,
		Codec:               codec,
		Policy:              policy,
		Catalog:             cat,
		Entitlement:         oracle,
		Signer:              signer,
		AuditManager:        auditMgr,
		URLTTL:              urlTTL,
		JanitorInterval:     janitorInterval,
		DebugClassification: conf.DebugClassification,
	})
	if err != nil {
		return fmt.Errorf("error initializing core: %w", err)
	}

	// Create HTTP handler from core
	httpHandler := gatekeeperhttp.Handler(&gatekeeperhttp.HandlerProperties{
		Core:   newCore,
		Logger: logger,
	})

	// init the listeners
	lns, err := initListeners(httpHandler, conf, logger, &infoKeys, &info)
	if err != nil {
		return err
	}

	// Shutdown error tracking
	var shutdownErrs []error
	var shutdownErrsMu sync.Mutex

	// Make sure we close all listeners from this point on
	listenerCloseFunc := func() {
		fmt.Fprintf(cmd.OutOrStdout(), "Stopping all listeners\n")
		for _, ln := range lns {
			if err := ln.Stop(); err != nil {
				shutdownErrsMu.Lock()
				shutdownErrs = append(shutdownErrs, fmt.Errorf("failed to stop %s listener at %s: %w", ln.Type(), ln.Addr(), err))
				shutdownErrsMu.Unlock()
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Listener stopped successfully: type=%s, address=%s\n", ln.Type(), ln.Addr())
			}
		}
	}

	// Use sync.Once to ensure listeners are stopped exactly once, even if called
	// both via defer (on panic/error) and explicitly before core shutdown
	defer cleanupGuard.Do(listenerCloseFunc)

	sort.Strings(infoKeys)
	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Gatekeeper server configuration:\n\n")

	titleCaser := cases.Title(language.English, cases.NoLower)

	for _, k := range infoKeys {
		fmt.Fprintf(cmd.OutOrStdout(), "%24s: %s\n", titleCaser.String(k), info[k])
	}

	// start the background janitor and the listeners
	// Use context from cobra command which respects signal interrupts
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	newCore.Start(ctx)

	// Channel to collect all listener errors
	errChan := make(chan error, len(lns))
	var listenerErrs []error
	var listenerErrsMu sync.Mutex
	totalListeners := len(lns)

	for _, ln := range lns {
		wg.Go(func() {
			if err := ln.Start(ctx); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "failed to start listener: %v\n", err)
				errChan <- err
			}
		})
	}

	fmt.Fprintf(cmd.OutOrStdout(), "\n==> Gatekeeper server started! Log data will stream in below:\n")

	// Wait for shutdown
	shutdownTriggered := false

	for !shutdownTriggered {
		select {
		case err := <-errChan:
			// Aggregate listener errors
			listenerErrsMu.Lock()
			listenerErrs = append(listenerErrs, err)
			failedCount := len(listenerErrs)
			listenerErrsMu.Unlock()

			fmt.Fprintf(cmd.OutOrStdout(), "Listener error occurred: failed_count=%d, total_listeners=%d\n", failedCount, totalListeners)

			// Only trigger shutdown if ALL listeners have failed
			if failedCount >= totalListeners {
				fmt.Fprintf(cmd.OutOrStdout(), "All listeners have failed, triggering shutdown: failed_count=%d\n", failedCount)
				shutdownTriggered = true
				cancel()
			}
		case <-ctx.Done():
			fmt.Fprintf(cmd.OutOrStdout(), "Gatekeeper shutdown triggered\n")
			shutdownTriggered = true
			cancel()
		}
	}

	// Stop the listeners so that we don't process further client requests
	cleanupGuard.Do(listenerCloseFunc)

	// Wait for all listener goroutines to finish and collect any remaining errors
	wg.Wait()

	// Collect any remaining errors from errChan (non-blocking)
	close(errChan)
	for err := range errChan {
		listenerErrsMu.Lock()
		listenerErrs = append(listenerErrs, err)
		listenerErrsMu.Unlock()
	}

	// Log aggregated listener errors if any
	if len(listenerErrs) > 0 {
		aggregatedErr := errors.Join(listenerErrs...)
		fmt.Fprintf(cmd.OutOrStdout(), "Listener errors occurred during runtime: %v, error_count=%d\n", aggregatedErr, len(listenerErrs))
	}

	// Shutdown the core
	if err := newCore.Shutdown(); err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "core shutdown failed: %v\n", err)
		shutdownErrsMu.Lock()
		shutdownErrs = append(shutdownErrs, fmt.Errorf("core shutdown failed: %w", err))
		shutdownErrsMu.Unlock()
	}

	// Report aggregated shutdown errors
	if len(shutdownErrs) > 0 {
		aggregatedShutdownErr := errors.Join(shutdownErrs...)
		fmt.Fprintf(cmd.OutOrStdout(), "Shutdown completed with errors: %v, error_count=%d\n", aggregatedShutdownErr, len(shutdownErrs))
		return aggregatedShutdownErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Server shutdown completed successfully\n")
	return nil
}

func buildLogger(conf *config.Config) log.Logger {
	logConfig := &log.Config{
		Level:       log.ParseLogLevel(conf.LogLevel),
		Format:      log.ParseOutputFormat(conf.LogFormat),
		Outputs:     []io.Writer{os.Stdout},
		Environment: "production",
	}

	if conf.LogFile != "" {
		logConfig.FileConfig = &log.FileConfig{
			Filename:   conf.LogFile,
			MaxSize:    conf.LogRotateMegabytes,
			MaxBackups: conf.LogRotateMaxFiles,
		}
	}

	return log.New(logConfig)
}

func buildStorage(conf *config.Config, logger log.Logger) (token.Store, error) {
	// Ensure that a storage is provided
	if conf.Storage == nil {
		return nil, errors.New("a storage backend must be specified")
	}

	factory, exists := storageBackends[conf.Storage.Type]
	if !exists {
		return nil, fmt.Errorf("unknown storage type %s", conf.Storage.Type)
	}

	storage, err := factory(conf.Storage.Config(), logger.WithSubsystem("storage."+conf.Storage.Type))
	if err != nil {
		return nil, fmt.Errorf("error initializing storage of type %s: %w", conf.Storage.Type, err)
	}

	return storage, nil
}

func buildPolicy(conf *config.Config) (*token.Policy, error) {
	policy := token.DefaultPolicy()
	if conf.TokenPolicy == nil {
		return policy, nil
	}

	if conf.TokenPolicy.DefaultMaxDownloads > 0 {
		policy.DefaultMaxDownloads = conf.TokenPolicy.DefaultMaxDownloads
	}
	if conf.TokenPolicy.DefaultValidity != "" {
		d, err := conf.TokenPolicy.DefaultValidityDuration()
		if err != nil {
			return nil, err
		}
		policy.DefaultValidity = d
	}
	if conf.TokenPolicy.MaxValidity != "" {
		d, err := conf.TokenPolicy.MaxValidityDuration()
		if err != nil {
			return nil, err
		}
		policy.MaxValidity = d
	}

	return policy, nil
}

func buildAuditManager(ctx context.Context, conf *config.Config, logger log.Logger, infoKeys *[]string, info map[string]string) (audit.Manager, error) {
	mgr := audit.NewManager(logger)

	var deviceNames []string
	for _, block := range conf.Audit {
		factory, exists := auditDeviceFactories[block.Type]
		if !exists {
			return nil, fmt.Errorf("unknown audit device type %s", block.Type)
		}
		if err := factory.Initialize(logger); err != nil {
			return nil, fmt.Errorf("initializing audit factory %s: %w", block.Type, err)
		}

		options, err := block.Options()
		if err != nil {
			return nil, fmt.Errorf("invalid audit device %q: %w", block.Name, err)
		}

		device, err := factory.Create(ctx, block.Name, options)
		if err != nil {
			return nil, fmt.Errorf("creating audit device %q: %w", block.Name, err)
		}
		if err := mgr.RegisterDevice(block.Name, device); err != nil {
			return nil, fmt.Errorf("registering audit device %q: %w", block.Name, err)
		}
		deviceNames = append(deviceNames, block.Name)
	}

	if len(deviceNames) > 0 {
		info["audit devices"] = strings.Join(deviceNames, ", ")
		*infoKeys = append(*infoKeys, "audit devices")
	}

	return mgr, nil
}

func buildCatalog(conf *config.Config, logger log.Logger, infoKeys *[]string, info map[string]string) (catalog.Catalog, error) {
	if conf.Catalog == nil {
		return nil, errors.New("a catalog must be configured")
	}

	info["catalog"] = conf.Catalog.Type
	*infoKeys = append(*infoKeys, "catalog")

	switch conf.Catalog.Type {
	case "static":
		return catalog.NewStaticCatalog(), nil
	case "http":
		timeout, err := parseOptionalDuration(conf.Catalog.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid catalog timeout: %w", err)
		}
		return catalog.NewHTTPCatalog(catalog.HTTPCatalogConfig{
			BaseURL:    conf.Catalog.BaseURL,
			MaxRetries: conf.Catalog.MaxRetries,
			Timeout:    timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown catalog type %s", conf.Catalog.Type)
	}
}

func buildEntitlement(conf *config.Config, logger log.Logger, infoKeys *[]string, info map[string]string) (entitlement.Oracle, error) {
	if conf.Entitlement == nil {
		return nil, errors.New("an entitlement backend must be configured")
	}

	info["entitlement"] = conf.Entitlement.Type
	*infoKeys = append(*infoKeys, "entitlement")

	switch conf.Entitlement.Type {
	case "static":
		return entitlement.NewStaticOracle(), nil
	case "http":
		timeout, err := parseOptionalDuration(conf.Entitlement.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid entitlement timeout: %w", err)
		}
		return entitlement.NewHTTPOracle(entitlement.HTTPOracleConfig{
			Endpoint:   conf.Entitlement.Endpoint,
			MaxRetries: conf.Entitlement.MaxRetries,
			Timeout:    timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown entitlement type %s", conf.Entitlement.Type)
	}
}

func buildDelivery(ctx context.Context, conf *config.Config, infoKeys *[]string, info map[string]string) (delivery.URLSigner, time.Duration, error) {
	if conf.Delivery == nil {
		return nil, 0, errors.New("a delivery backend must be configured")
	}

	urlTTL, err := parseOptionalDuration(conf.Delivery.URLTTL)
	if err != nil {
		return nil, 0, fmt.Errorf("invalid delivery url_ttl: %w", err)
	}

	info["delivery"] = conf.Delivery.Type
	*infoKeys = append(*infoKeys, "delivery")

	switch conf.Delivery.Type {
	case "static":
		return delivery.NewStaticSigner(conf.Delivery.BaseURL), urlTTL, nil
	case "s3":
		signer, err := delivery.NewS3Signer(ctx, delivery.S3Config{
			Bucket:       conf.Delivery.Bucket,
			Region:       conf.Delivery.Region,
			Endpoint:     conf.Delivery.Endpoint,
			AccessKey:    conf.Delivery.AccessKey,
			SecretKey:    conf.Delivery.SecretKey,
			UsePathStyle: conf.Delivery.UsePathStyle,
		})
		if err != nil {
			return nil, 0, err
		}
		return signer, urlTTL, nil
	default:
		return nil, 0, fmt.Errorf("unknown delivery type %s", conf.Delivery.Type)
	}
}

func parseOptionalDuration(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	return parseutil.ParseDurationSecond(raw)
}

func initListeners(httpHandler http.Handler, conf *config.Config, logger log.Logger, infoKeys *[]string, info *map[string]string) ([]listener.Listener, error) {
	lns := make([]listener.Listener, 0, len(conf.Listeners))

	for _, lnConfig := range conf.Listeners {
		switch lnConfig.Protocol {
		case listenerTypeTCP, listenerTypeUnix:
			cfg := api.ApiListenerConfig{
				Logger:          logger.WithSubsystem(subsystemListener),
				Address:         lnConfig.Address,
				TLSCertFile:     lnConfig.TLSCertFile,
				TLSKeyFile:      lnConfig.TLSKeyFile,
				TLSClientCAFile: lnConfig.TLSClientCAFile,
				TLSEnabled:      lnConfig.TLSEnabled,
			}
			if conf.RateLimit != nil {
				cfg.RateLimitRPS = conf.RateLimit.RequestsPerSecond
				cfg.RateLimitBurst = conf.RateLimit.Burst
				cfg.RateLimitMaxClients = conf.RateLimit.MaxClients
			}

			// construct api listener using shared HTTP handler
			ln, err := api.NewApiListener(cfg, httpHandler)
			if err != nil {
				return nil, fmt.Errorf("error initializing listener of type %s: %s", lnConfig.Protocol, err)
			}
			lns = append(lns, ln)

			(*info)["listener "+lnConfig.Name] = fmt.Sprintf("%s (%s)", lnConfig.Address, lnConfig.Protocol)
			*infoKeys = append(*infoKeys, "listener "+lnConfig.Name)
		default:
			return nil, fmt.Errorf("unknown listener protocol: %s", lnConfig.Protocol)
		}
	}

	return lns, nil
}
