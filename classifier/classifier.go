// Package classifier maps an arbitrary caller-supplied identifier to
// the kind of authorization check it denotes. Identifiers arrive as
// license ids, product ids, access pass aliases or partner asset
// aliases, all sharing one syntactic space, so classification combines
// namespace prefixes with shape heuristics backed by catalog existence
// checks.
package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	radix "github.com/armon/go-radix"
	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/singleflight"

	"github.com/avastel/gatekeeper/catalog"
	log "github.com/avastel/gatekeeper/logger"
)

// Kind is the resolved identifier category.
type Kind string

const (
	KindLicense           Kind = "license"
	KindProduct           Kind = "product"
	KindAccessPassProduct Kind = "access_pass_product"
	KindPartnerAsset      Kind = "partner_asset"
	// KindSmartHybrid means both license and product validation should
	// be attempted, in that order.
	KindSmartHybrid Kind = "smart_hybrid"
	KindUnknown     Kind = "unknown"
)

// Result is a classification outcome. Classification always produces a
// result; uncertainty is expressed through KindUnknown plus a low
// confidence and a corrective suggestion, never through an error.
type Result struct {
	Kind       Kind   `json:"kind"`
	Confidence int    `json:"confidence"`
	ProductID  string `json:"product_id,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

var (
	hex24Pattern   = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)
	uuidPattern    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	genericPattern = regexp.MustCompile(`^[0-9a-zA-Z]{8,}$`)
)

const (
	existenceCacheTTL = 5 * time.Minute

	suggestionFormat  = "use a prefixed identifier such as license_<id>, ap_<product id> or asset_<id>"
	suggestionUnknown = "identifier matches no known product, license or asset; check the id or contact support"
)

// prefixRule drives the namespace tier. StripPrefix recovers an
// embedded product id from alias forms like ap_<product id>.
type prefixRule struct {
	kind        Kind
	confidence  int
	stripPrefix bool
}

// Classifier resolves identifiers. Catalog existence answers are cached
// per id for a short TTL so bursty retries do not hammer the catalog;
// the cache is advisory and correctness never depends on it.
type Classifier struct {
	catalog  catalog.Catalog
	prefixes *radix.Tree
	cache    *ristretto.Cache[string, bool]
	group    singleflight.Group
	logger   log.Logger
	metrics  *Metrics
}

func New(cat catalog.Catalog, logger log.Logger, metrics *Metrics) (*Classifier, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, bool]{
		NumCounters: 1e6,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize existence cache: %w", err)
	}

	prefixes := radix.New()
	for prefix, rule := range map[string]prefixRule{
		"license_":       {kind: KindLicense, confidence: 95},
		"li_":            {kind: KindLicense, confidence: 95},
		"lic_":           {kind: KindLicense, confidence: 95},
		"lic-":           {kind: KindLicense, confidence: 95},
		"access_pass_":   {kind: KindAccessPassProduct, confidence: 95, stripPrefix: true},
		"ap_":            {kind: KindAccessPassProduct, confidence: 95, stripPrefix: true},
		"asset_":         {kind: KindPartnerAsset, confidence: 90},
		"pa_":            {kind: KindPartnerAsset, confidence: 90},
		"partner_asset_": {kind: KindPartnerAsset, confidence: 90},
		"partner_asset-": {kind: KindPartnerAsset, confidence: 90},
	} {
		prefixes.Insert(prefix, rule)
	}

	return &Classifier{
		catalog:  cat,
		prefixes: prefixes,
		cache:    cache,
		logger:   logger.WithSubsystem("classifier"),
		metrics:  metrics,
	}, nil
}

// Classify resolves the identifier. Tiers are ordered and the first
// match wins: namespace prefixes, then shape heuristics with catalog
// existence checks, then the unknown fallback. Shape tiers check
// partner assets before products because both share the same id
// syntax.
func (c *Classifier) Classify(ctx context.Context, identifier string) *Result {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return &Result{Kind: KindUnknown, Confidence: 10, Suggestion: suggestionFormat}
	}

	if result := c.classifyByPrefix(identifier); result != nil {
		c.metrics.IncrementPrefixMatches(string(result.Kind))
		return result
	}

	if result := c.classifyByShape(ctx, identifier); result != nil {
		c.metrics.IncrementShapeMatches(string(result.Kind))
		return result
	}

	c.metrics.IncrementUnknown()
	return &Result{Kind: KindUnknown, Confidence: 10, Suggestion: suggestionFormat}
}

func (c *Classifier) classifyByPrefix(identifier string) *Result {
	lower := strings.ToLower(identifier)
	match, value, ok := c.prefixes.LongestPrefix(lower)
	if !ok {
		return nil
	}
	rule := value.(prefixRule)

	result := &Result{Kind: rule.kind, Confidence: rule.confidence}
	if rule.stripPrefix {
		result.ProductID = identifier[len(match):]
	}
	return result
}

func (c *Classifier) classifyByShape(ctx context.Context, identifier string) *Result {
	switch {
	case hex24Pattern.MatchString(identifier):
		return c.resolveByExistence(ctx, identifier, 85, 80, 20, false)
	case uuidPattern.MatchString(identifier):
		return c.resolveByExistence(ctx, identifier, 80, 75, 25, false)
	case genericPattern.MatchString(identifier):
		return c.resolveByExistence(ctx, identifier, 65, 60, 30, true)
	}
	return nil
}

// resolveByExistence checks the partner asset registry first and the
// product catalog second. With hybrid set, a bare product hit becomes
// KindSmartHybrid because a generic token might equally be a license
// key that should be validated as such.
func (c *Classifier) resolveByExistence(ctx context.Context, identifier string, assetConfidence, productConfidence, unknownConfidence int, hybrid bool) *Result {
	if c.assetExists(ctx, identifier) {
		return &Result{Kind: KindPartnerAsset, Confidence: assetConfidence}
	}
	if c.productExists(ctx, identifier) {
		kind := KindProduct
		if hybrid {
			kind = KindSmartHybrid
		}
		return &Result{Kind: kind, Confidence: productConfidence, ProductID: identifier}
	}
	return &Result{Kind: KindUnknown, Confidence: unknownConfidence, Suggestion: suggestionUnknown}
}

func (c *Classifier) assetExists(ctx context.Context, id string) bool {
	return c.exists(ctx, "asset:"+id, func() (bool, error) {
		return c.catalog.PartnerAssetExists(ctx, id)
	})
}

func (c *Classifier) productExists(ctx context.Context, id string) bool {
	return c.exists(ctx, "product:"+id, func() (bool, error) {
		return c.catalog.ProductExists(ctx, id)
	})
}

// exists wraps a catalog lookup with the TTL cache and collapses
// concurrent lookups for the same key into one catalog call. A lookup
// failure is treated as "not found" so classification always returns a
// result.
func (c *Classifier) exists(ctx context.Context, key string, lookup func() (bool, error)) bool {
	if found, ok := c.cache.Get(key); ok {
		c.metrics.IncrementCacheHits()
		return found
	}
	c.metrics.IncrementCacheMisses()

	result, err, _ := c.group.Do(key, func() (interface{}, error) {
		found, err := lookup()
		if err != nil {
			return false, err
		}
		c.cache.SetWithTTL(key, found, 1, existenceCacheTTL)
		return found, nil
	})
	if err != nil {
		c.logger.Warn("catalog lookup failed, treating as not found",
			log.String("key", key),
			log.Err(err))
		return false
	}
	return result.(bool)
}

// Close releases the existence cache.
func (c *Classifier) Close() {
	c.cache.Close()
}
