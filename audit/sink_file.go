package audit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSink writes audit entries to a rotating file. Rotation is
// handled by lumberjack so a long-lived process never fills the disk
// with a single unbounded trail.
type FileSink struct {
	mu     sync.Mutex
	path   string
	writer *lumberjack.Logger
}

// FileSinkConfig contains configuration for the file sink
type FileSinkConfig struct {
	Path string

	// MaxSizeMB rotates the file when it reaches this size. Defaults
	// to 100.
	MaxSizeMB int

	// MaxBackups is the number of rotated files to keep. Defaults to 5.
	MaxBackups int

	// MaxAgeDays removes rotated files older than this. Defaults to 30.
	MaxAgeDays int

	// Compress gzips rotated files.
	Compress bool
}

// NewFileSink creates a new file sink
func NewFileSink(config FileSinkConfig) (*FileSink, error) {
	if config.Path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	if config.MaxSizeMB <= 0 {
		config.MaxSizeMB = 100
	}
	if config.MaxBackups <= 0 {
		config.MaxBackups = 5
	}
	if config.MaxAgeDays <= 0 {
		config.MaxAgeDays = 30
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}

	return &FileSink{
		path: config.Path,
		writer: &lumberjack.Logger{
			Filename:   config.Path,
			MaxSize:    config.MaxSizeMB,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAgeDays,
			Compress:   config.Compress,
		},
	}, nil
}

// Write writes an entry to the file
func (s *FileSink) Write(ctx context.Context, entry []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(append(entry, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Close closes the file sink
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Close()
}

// Name returns the sink name
func (s *FileSink) Name() string {
	return s.path
}

// Type returns the sink type
func (s *FileSink) Type() string {
	return "file"
}
