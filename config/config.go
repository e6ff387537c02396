package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-secure-stdlib/parseutil"
	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the configuration for the gatekeeper server.
type Config struct {
	LogLevel           string `hcl:"log_level,optional"`
	LogFormat          string `hcl:"log_format,optional"`
	LogFile            string `hcl:"log_file,optional"`
	LogRotateMegabytes int    `hcl:"log_rotate_megabytes,optional"`
	LogRotateMaxFiles  int    `hcl:"log_rotate_max_files,optional"`

	// TokenSigningKey is the server secret token secrets are derived
	// from. Required.
	TokenSigningKey string `hcl:"token_signing_key"`

	// DebugClassification exposes classification metadata in API
	// responses. Never enable in production.
	DebugClassification bool `hcl:"debug_classification,optional"`

	Listeners   []ListenerBlock   `hcl:"listener,block"`
	Storage     *StorageBlock     `hcl:"storage,block"`
	TokenPolicy *TokenPolicyBlock `hcl:"token_policy,block"`
	Audit       []AuditBlock      `hcl:"audit,block"`
	Catalog     *CatalogBlock     `hcl:"catalog,block"`
	Entitlement *EntitlementBlock `hcl:"entitlement,block"`
	Delivery    *DeliveryBlock    `hcl:"delivery,block"`
	RateLimit   *RateLimitBlock   `hcl:"rate_limit,block"`
	Janitor     *JanitorBlock     `hcl:"janitor,block"`
}

type StorageBlock struct {
	Type string `hcl:"type,label"` // "inmem" or "postgres"

	// PostgreSQL specific config
	ConnectionUrl      string `hcl:"connection_url,optional"`
	Table              string `hcl:"table,optional"`
	ActivityTable      string `hcl:"activity_table,optional"`
	MaxIdleConnections int    `hcl:"max_idle_connections,optional"`
	MaxOpenConnections int    `hcl:"max_open_connections,optional"`
	SkipCreateTable    string `hcl:"skip_create_table,optional"`
}

// Config returns the storage configuration as a map
func (s *StorageBlock) Config() map[string]string {
	config := make(map[string]string)

	config["type"] = s.Type

	if s.ConnectionUrl != "" {
		config["connection_url"] = s.ConnectionUrl
	}
	if s.Table != "" {
		config["table"] = s.Table
	}
	if s.ActivityTable != "" {
		config["activity_table"] = s.ActivityTable
	}
	if s.MaxIdleConnections != 0 {
		config["max_idle_connections"] = fmt.Sprintf("%d", s.MaxIdleConnections)
	}
	if s.MaxOpenConnections != 0 {
		config["max_open_connections"] = fmt.Sprintf("%d", s.MaxOpenConnections)
	}
	if s.SkipCreateTable != "" {
		config["skip_create_table"] = s.SkipCreateTable
	}

	return config
}

type ListenerBlock struct {
	Name            string `hcl:"name,label"`
	Protocol        string `hcl:"protocol"`
	Address         string `hcl:"address"`
	TLSCertFile     string `hcl:"tls_cert_file,optional"`
	TLSKeyFile      string `hcl:"tls_key_file,optional"`
	TLSClientCAFile string `hcl:"tls_client_ca_file,optional"`
	TLSEnabled      bool   `hcl:"tls_enabled,optional"`
}

// TokenPolicyBlock holds issuance defaults.
type TokenPolicyBlock struct {
	DefaultMaxDownloads int    `hcl:"default_max_downloads,optional"`
	DefaultValidity     string `hcl:"default_validity,optional"`
	MaxValidity         string `hcl:"max_validity,optional"`
}

// DefaultValidityDuration parses the configured default validity.
func (t *TokenPolicyBlock) DefaultValidityDuration() (time.Duration, error) {
	if t.DefaultValidity == "" {
		return 0, nil
	}
	return parseutil.ParseDurationSecond(t.DefaultValidity)
}

// MaxValidityDuration parses the configured maximum validity.
func (t *TokenPolicyBlock) MaxValidityDuration() (time.Duration, error) {
	if t.MaxValidity == "" {
		return 0, nil
	}
	return parseutil.ParseDurationSecond(t.MaxValidity)
}

type AuditBlock struct {
	Name        string `hcl:"name,label"`
	Type        string `hcl:"type"` // only "file" for now
	Path        string `hcl:"path,optional"`
	MaxSizeMB   int    `hcl:"max_size_mb,optional"`
	MaxBackups  int    `hcl:"max_backups,optional"`
	MaxAgeDays  int    `hcl:"max_age_days,optional"`
	Compress    bool   `hcl:"compress,optional"`
	HMACKey     string `hcl:"hmac_key,optional"`
	BufferSize  int    `hcl:"buffer_size,optional"`
	FlushPeriod string `hcl:"flush_period,optional"`
	SkipTest    bool   `hcl:"skip_test,optional"`
}

// Options returns the audit device options as a map for the device
// factory.
func (a *AuditBlock) Options() (map[string]any, error) {
	options := map[string]any{
		"enabled": true,
	}
	if a.Path != "" {
		options["file_path"] = a.Path
	}
	if a.MaxSizeMB != 0 {
		options["max_size_mb"] = a.MaxSizeMB
	}
	if a.MaxBackups != 0 {
		options["max_backups"] = a.MaxBackups
	}
	if a.MaxAgeDays != 0 {
		options["max_age_days"] = a.MaxAgeDays
	}
	if a.Compress {
		options["compress"] = true
	}
	if a.HMACKey != "" {
		options["hmac_key"] = a.HMACKey
	}
	if a.BufferSize != 0 {
		options["buffer_size"] = a.BufferSize
	}
	if a.FlushPeriod != "" {
		period, err := parseutil.ParseDurationSecond(a.FlushPeriod)
		if err != nil {
			return nil, fmt.Errorf("invalid flush_period: %w", err)
		}
		options["flush_period"] = period
	}
	if a.SkipTest {
		options["skip_test"] = true
	}
	return options, nil
}

type CatalogBlock struct {
	Type       string `hcl:"type,label"` // "http" or "static"
	BaseURL    string `hcl:"base_url,optional"`
	MaxRetries int    `hcl:"max_retries,optional"`
	Timeout    string `hcl:"timeout,optional"`
}

type EntitlementBlock struct {
	Type       string `hcl:"type,label"` // "http" or "static"
	Endpoint   string `hcl:"endpoint,optional"`
	MaxRetries int    `hcl:"max_retries,optional"`
	Timeout    string `hcl:"timeout,optional"`
}

type DeliveryBlock struct {
	Type         string `hcl:"type,label"` // "s3" or "static"
	Bucket       string `hcl:"bucket,optional"`
	Region       string `hcl:"region,optional"`
	Endpoint     string `hcl:"endpoint,optional"`
	AccessKey    string `hcl:"access_key,optional"`
	SecretKey    string `hcl:"secret_key,optional"`
	UsePathStyle bool   `hcl:"use_path_style,optional"`
	BaseURL      string `hcl:"base_url,optional"`
	URLTTL       string `hcl:"url_ttl,optional"`
}

type RateLimitBlock struct {
	// RequestsPerSecond per client IP. Zero disables rate limiting.
	RequestsPerSecond float64 `hcl:"requests_per_second,optional"`
	Burst             int     `hcl:"burst,optional"`
	// MaxClients bounds the per-IP limiter table.
	MaxClients int `hcl:"max_clients,optional"`
}

type JanitorBlock struct {
	Interval string `hcl:"interval,optional"`
}

// IntervalDuration parses the sweep interval.
func (j *JanitorBlock) IntervalDuration() (time.Duration, error) {
	if j.Interval == "" {
		return 0, nil
	}
	return parseutil.ParseDurationSecond(j.Interval)
}

func LoadConfig(configFile string) (*Config, error) {
	var config Config

	if err := hclsimple.DecodeFile(configFile, nil, &config); err != nil {
		return nil, err
	}

	if config.TokenSigningKey == "" {
		return nil, fmt.Errorf("token_signing_key is required")
	}

	return &config, nil
}

// GetListenerByName returns a listener by its name (label)
func (c *Config) GetListenerByName(name string) (*ListenerBlock, error) {
	for _, listener := range c.Listeners {
		if listener.Name == name {
			return &listener, nil
		}
	}
	return nil, fmt.Errorf("listener '%s' not found", name)
}

// GetApiListener is a convenience method to get the api listener
func (c *Config) GetApiListener() (*ListenerBlock, error) {
	return c.GetListenerByName("api")
}
