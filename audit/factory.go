package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	log "github.com/avastel/gatekeeper/logger"
)

// FileDeviceConfig is the string-map configuration for a file audit
// device, as it appears in the audit block of the server config.
type FileDeviceConfig struct {
	// Sink params
	Path       string `json:"file_path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`

	// Device params
	Enabled bool   `json:"enabled"`
	Format  string `json:"format"`
	Prefix  string `json:"prefix,omitempty"`

	// Performance options
	BufferSize  int           `json:"buffer_size"`
	FlushPeriod time.Duration `json:"flush_period"`

	// Salting options. Without a key the token secret is omitted from
	// the trail entirely.
	HMACKey string `json:"hmac_key,omitempty"`

	// Omission options
	OmitFields []string `json:"omit_fields,omitempty"`

	SkipTest bool `json:"skip_test"`
}

func mapToFileDeviceConfig(data map[string]any) (*FileDeviceConfig, error) {
	config := FileDeviceConfig{
		Path:        "gatekeeper_audit.log",
		MaxSizeMB:   100,
		MaxBackups:  5,
		MaxAgeDays:  30,
		Enabled:     true,
		Format:      "json",
		BufferSize:  100,
		FlushPeriod: 5 * time.Second,
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal map: %w", err)
	}
	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal to FileDeviceConfig: %w", err)
	}

	return &config, nil
}

// Factory builds audit devices of one type from string-map options.
type Factory interface {
	Type() string
	Initialize(logger log.Logger) error
	Create(ctx context.Context, name string, config map[string]any) (Device, error)
}

// Verify interface is satisfied
var _ Factory = (*FileDeviceFactory)(nil)

// FileDeviceFactory builds buffered file audit devices.
type FileDeviceFactory struct {
	logger log.Logger
}

func (f *FileDeviceFactory) Type() string {
	return "file"
}

func (f *FileDeviceFactory) Initialize(logger log.Logger) error {
	f.logger = logger.WithSubsystem("audit_" + f.Type())
	return nil
}

func (f *FileDeviceFactory) Create(ctx context.Context, name string, config map[string]any) (Device, error) {
	conf, err := mapToFileDeviceConfig(config)
	if err != nil {
		return nil, err
	}

	// json is the only supported trail format for now
	if conf.Format != "json" {
		return nil, fmt.Errorf("unsupported audit log format: %s", conf.Format)
	}

	fileSink, err := NewFileSink(FileSinkConfig{
		Path:       conf.Path,
		MaxSizeMB:  conf.MaxSizeMB,
		MaxBackups: conf.MaxBackups,
		MaxAgeDays: conf.MaxAgeDays,
		Compress:   conf.Compress,
	})
	if err != nil {
		return nil, err
	}

	bufferedSink, err := NewBufferedSink(BufferedSinkConfig{
		Sink:        fileSink,
		BufferSize:  conf.BufferSize,
		FlushPeriod: conf.FlushPeriod,
		Logger:      f.logger,
	})
	if err != nil {
		return nil, err
	}

	var formatOpts []JSONFormatOption
	if conf.Prefix != "" {
		formatOpts = append(formatOpts, WithPrefix(conf.Prefix))
	}
	if conf.HMACKey != "" {
		hmacer := NewHMACer(conf.HMACKey)
		formatOpts = append(formatOpts, WithSaltFunc(hmacer.SaltFunc()))
	}
	if len(conf.OmitFields) > 0 {
		formatOpts = append(formatOpts, WithOmitFields(conf.OmitFields))
	}

	device := NewDevice(name, NewJSONFormat(formatOpts...), bufferedSink, &DeviceConfig{
		Name:        name,
		Type:        f.Type(),
		Enabled:     conf.Enabled,
		Format:      conf.Format,
		Prefix:      conf.Prefix,
		BufferSize:  conf.BufferSize,
		FlushPeriod: conf.FlushPeriod,
	})

	if !conf.SkipTest {
		if err := device.LogTestEvent(ctx); err != nil {
			device.Close()
			return nil, fmt.Errorf("audit device failed self test: %w", err)
		}
	}

	return device, nil
}
