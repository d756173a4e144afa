package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Engine composes a buffer pool from a validated configuration: the disk
// manager, the optional WAL, and the instance federation. It is the unit a
// higher layer opens and closes.
type Engine struct {
	Pool        *ParallelBufferPoolManager
	DiskManager DiskManager
	LogManager  *LogManager
	logger      *slog.Logger
	cfg         *Config
}

const (
	dataFileName = "bustub.db"
	walFileName  = "bustub.wal"
)

// Open builds an engine from the configuration. The data and WAL
// directories are created if missing.
func Open(cfg *Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	var diskManager DiskManager
	var err error
	dataPath := filepath.Join(cfg.DataDirectory, dataFileName)
	switch cfg.DiskManager {
	case "mmap":
		diskManager, err = newMmapDiskManager(dataPath)
	default:
		diskManager, err = NewFileDiskManager(dataPath)
	}
	if err != nil {
		return nil, err
	}

	var logManager *LogManager
	if cfg.WALEnabled {
		if err := os.MkdirAll(cfg.WALDirectory, 0755); err != nil {
			diskManager.Close()
			return nil, fmt.Errorf("failed to create WAL directory: %w", err)
		}
		compression, _ := ParseLogCompression(cfg.WALCompressionAlg)
		logManager, err = NewLogManagerWithCompression(filepath.Join(cfg.WALDirectory, walFileName), compression)
		if err != nil {
			diskManager.Close()
			return nil, err
		}
	}

	pool, err := NewParallelBufferPoolManager(cfg.NumInstances, cfg.BufferPoolSize, diskManager, logManager)
	if err != nil {
		if logManager != nil {
			logManager.Close()
		}
		diskManager.Close()
		return nil, err
	}

	return &Engine{
		Pool:        pool,
		DiskManager: diskManager,
		LogManager:  logManager,
		logger:      newLogger(cfg.LogLevel),
		cfg:         cfg,
	}, nil
}

// Logger returns the engine's structured logger.
func (e *Engine) Logger() *slog.Logger {
	return e.logger
}

// ReportMetrics logs each instance's metrics when metrics are enabled.
func (e *Engine) ReportMetrics() {
	if !e.cfg.EnableMetrics {
		return
	}
	for i := uint32(0); i < e.Pool.NumInstances(); i++ {
		e.Pool.Instance(i).Metrics().LogMetrics(e.logger.With(slog.Uint64("instance", uint64(i))))
	}
}

// Close flushes all resident pages and releases the disk and WAL handles.
func (e *Engine) Close() error {
	var firstErr error

	if err := e.Pool.FlushAllPages(); err != nil {
		firstErr = err
	}

	if e.LogManager != nil {
		if err := e.LogManager.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if err := e.DiskManager.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// newLogger builds a slog text logger at the configured level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
