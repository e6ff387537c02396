// Package core wires the download access control subsystem together:
// classification, entitlement checks, token issuance and validation,
// download recording, signed URL generation, auditing and the expiry
// janitor. HTTP handlers call into Core; Core owns the lifecycle of
// everything below it.
package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avastel/gatekeeper/audit"
	"github.com/avastel/gatekeeper/catalog"
	"github.com/avastel/gatekeeper/classifier"
	"github.com/avastel/gatekeeper/delivery"
	"github.com/avastel/gatekeeper/entitlement"
	log "github.com/avastel/gatekeeper/logger"
	"github.com/avastel/gatekeeper/token"
)

// CoreConfig holds the dependencies and tunables for a Core.
type CoreConfig struct {
	Logger log.Logger

	Store  token.Store
	Codec  *token.Codec
	Policy *token.Policy

	Catalog     catalog.Catalog
	Entitlement entitlement.Oracle
	Signer      delivery.URLSigner

	AuditManager audit.Manager

	// URLTTL is the lifetime of signed download URLs. Defaults to
	// delivery.DefaultURLTTL.
	URLTTL time.Duration

	// JanitorInterval is how often expired tokens are swept. Zero
	// takes the janitor's own default.
	JanitorInterval time.Duration

	// DebugClassification exposes classification confidence and kind
	// in API responses.
	DebugClassification bool
}

// Core is the top-level orchestrator.
type Core struct {
	logger log.Logger

	store token.Store

	issuer    *token.Issuer
	validator *token.Validator
	recorder  *token.Recorder
	janitor   *token.Janitor

	classifier *classifier.Classifier

	catalog     catalog.Catalog
	entitlement entitlement.Oracle
	signer      delivery.URLSigner

	auditMgr audit.Manager

	tokenMetrics      *token.Metrics
	classifierMetrics *classifier.Metrics

	urlTTL              time.Duration
	debugClassification bool

	startedAt time.Time

	shutdownOnce sync.Once
	janitorStop  context.CancelFunc
	janitorDone  chan struct{}
}

// NewCore validates the configuration and assembles a Core. The
// returned Core is ready to serve requests; call Start to launch the
// background janitor and Shutdown to tear everything down.
func NewCore(conf *CoreConfig) (*Core, error) {
	if conf.Logger == nil {
		return nil, errors.New("core: logger is required")
	}
	if conf.Store == nil {
		return nil, errors.New("core: token store is required")
	}
	if conf.Codec == nil {
		return nil, errors.New("core: token codec is required")
	}
	if conf.Catalog == nil {
		return nil, errors.New("core: catalog is required")
	}
	if conf.Entitlement == nil {
		return nil, errors.New("core: entitlement oracle is required")
	}
	if conf.Signer == nil {
		return nil, errors.New("core: url signer is required")
	}

	logger := conf.Logger.WithSubsystem("core")

	policy := conf.Policy
	if policy == nil {
		policy = token.DefaultPolicy()
	}

	auditMgr := conf.AuditManager
	if auditMgr == nil {
		auditMgr = audit.NewManager(conf.Logger)
	}

	urlTTL := conf.URLTTL
	if urlTTL <= 0 {
		urlTTL = delivery.DefaultURLTTL
	}

	tokenMetrics := &token.Metrics{}
	classifierMetrics := classifier.NewMetrics()

	cls, err := classifier.New(conf.Catalog, conf.Logger, classifierMetrics)
	if err != nil {
		return nil, fmt.Errorf("core: building classifier: %w", err)
	}

	c := &Core{
		logger:              logger,
		store:               conf.Store,
		issuer:              token.NewIssuer(conf.Store, conf.Codec, policy, conf.Logger, tokenMetrics),
		validator:           token.NewValidator(conf.Store, conf.Logger, tokenMetrics),
		recorder:            token.NewRecorder(conf.Store, conf.Logger, tokenMetrics),
		janitor:             token.NewJanitor(conf.Store, conf.Logger, tokenMetrics, conf.JanitorInterval),
		classifier:          cls,
		catalog:             conf.Catalog,
		entitlement:         conf.Entitlement,
		signer:              conf.Signer,
		auditMgr:            auditMgr,
		tokenMetrics:        tokenMetrics,
		classifierMetrics:   classifierMetrics,
		urlTTL:              urlTTL,
		debugClassification: conf.DebugClassification,
		startedAt:           time.Now(),
	}

	return c, nil
}

// Logger returns the core's logger.
func (c *Core) Logger() log.Logger {
	return c.logger
}

// Start launches the background janitor. It returns immediately; the
// janitor runs until Shutdown or until ctx is cancelled.
func (c *Core) Start(ctx context.Context) {
	janitorCtx, cancel := context.WithCancel(ctx)
	c.janitorStop = cancel
	c.janitorDone = make(chan struct{})

	go func() {
		defer close(c.janitorDone)
		c.janitor.Run(janitorCtx)
	}()

	c.logger.Info("core started")
}

// Shutdown stops the janitor, flushes audit devices and closes the
// store. Safe to call more than once.
func (c *Core) Shutdown() error {
	var shutdownErr error

	c.shutdownOnce.Do(func() {
		c.logger.Info("core shutting down")

		if c.janitorStop != nil {
			c.janitorStop()
			<-c.janitorDone
		}

		c.classifier.Close()

		var errs []error
		if err := c.auditMgr.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing audit manager: %w", err))
		}
		if err := c.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing token store: %w", err))
		}
		shutdownErr = errors.Join(errs...)
	})

	return shutdownErr
}

// SweepExpiredNow runs one janitor sweep outside the normal schedule.
func (c *Core) SweepExpiredNow(ctx context.Context) (int, error) {
	deactivated, err := c.janitor.SweepExpired(ctx)

	event := &audit.Event{
		Type: audit.EventJanitorSweep,
		Metadata: map[string]interface{}{
			"deactivated": deactivated,
		},
	}
	if err != nil {
		event.Error = err.Error()
	}
	c.audit(ctx, event)

	return deactivated, err
}

// DebugClassification reports whether classification internals should
// be exposed in responses.
func (c *Core) DebugClassification() bool {
	return c.debugClassification
}

// audit sends an event to the audit manager. Audit failures are logged
// and swallowed; an unreachable sink must not fail the operation that
// produced the event.
func (c *Core) audit(ctx context.Context, event *audit.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	logged, err := c.auditMgr.LogEvent(ctx, event)
	if err != nil && !logged {
		c.logger.Warn("audit event not persisted",
			log.String("event_type", string(event.Type)),
			log.Err(err),
		)
	}
}
