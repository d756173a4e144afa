package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Config holds buffer pool configuration
type Config struct {
	// Buffer Pool Configuration
	BufferPoolSize uint32 `json:"buffer_pool_size"` // Frames per instance
	NumInstances   uint32 `json:"num_instances"`    // Federation cardinality
	CacheReplacer  string `json:"cache_replacer"`   // Replacement policy (lru)

	// Disk Configuration
	DataDirectory string `json:"data_directory"` // Directory for data files
	DiskManager   string `json:"disk_manager"`   // Disk access mode (file, mmap)

	// WAL Configuration
	WALEnabled        bool   `json:"wal_enabled"`         // Whether WAL is enabled
	WALDirectory      string `json:"wal_directory"`       // Directory for WAL files
	WALCompressionAlg string `json:"wal_compression_alg"` // Compression algorithm (none, snappy, lz4)

	// Performance Configuration
	EnableMetrics bool   `json:"enable_metrics"` // Whether to report performance metrics
	LogLevel      string `json:"log_level"`      // Log level (debug, info, warn, error)
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		BufferPoolSize:    128,
		NumInstances:      1,
		CacheReplacer:     "lru",
		DataDirectory:     "./data",
		DiskManager:       "file",
		WALEnabled:        false,
		WALDirectory:      "./wal",
		WALCompressionAlg: "none",
		EnableMetrics:     true,
		LogLevel:          "info",
	}
}

// LoadConfigFromFile loads configuration from a JSON file
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadConfigFromEnv loads configuration from environment variables,
// falling back to defaults where a variable is not set
func LoadConfigFromEnv() *Config {
	config := DefaultConfig()

	// Buffer Pool
	if val := os.Getenv("BUSTUB_BUFFER_POOL_SIZE"); val != "" {
		if size, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.BufferPoolSize = uint32(size)
		}
	}

	if val := os.Getenv("BUSTUB_NUM_INSTANCES"); val != "" {
		if n, err := strconv.ParseUint(val, 10, 32); err == nil {
			config.NumInstances = uint32(n)
		}
	}

	if val := os.Getenv("BUSTUB_CACHE_REPLACER"); val != "" {
		config.CacheReplacer = val
	}

	// Disk
	if val := os.Getenv("BUSTUB_DATA_DIRECTORY"); val != "" {
		config.DataDirectory = val
	}

	if val := os.Getenv("BUSTUB_DISK_MANAGER"); val != "" {
		config.DiskManager = val
	}

	// WAL
	if val := os.Getenv("BUSTUB_WAL_ENABLED"); val != "" {
		config.WALEnabled = val == "true" || val == "1"
	}

	if val := os.Getenv("BUSTUB_WAL_DIRECTORY"); val != "" {
		config.WALDirectory = val
	}

	if val := os.Getenv("BUSTUB_WAL_COMPRESSION_ALG"); val != "" {
		config.WALCompressionAlg = val
	}

	// Performance
	if val := os.Getenv("BUSTUB_ENABLE_METRICS"); val != "" {
		config.EnableMetrics = val == "true" || val == "1"
	}

	if val := os.Getenv("BUSTUB_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}

	return config
}

// SaveToFile saves the configuration to a JSON file
func (c *Config) SaveToFile(path string) error {
	data, err := json.MarshalIndent(c, "", " ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BufferPoolSize == 0 {
		return NewStorageError(ErrCodeInvalidConfig, "Validate", "buffer pool size must be greater than 0", nil)
	}

	if c.NumInstances == 0 {
		return NewStorageError(ErrCodeInvalidConfig, "Validate", "number of instances must be greater than 0", nil)
	}

	if c.CacheReplacer != "lru" {
		return NewStorageError(ErrCodeInvalidConfig, "Validate",
			fmt.Sprintf("unknown cache replacer: %s", c.CacheReplacer), nil)
	}

	if c.DataDirectory == "" {
		return NewStorageError(ErrCodeInvalidConfig, "Validate", "data directory cannot be empty", nil)
	}

	if c.DiskManager != "file" && c.DiskManager != "mmap" {
		return NewStorageError(ErrCodeInvalidConfig, "Validate",
			fmt.Sprintf("unknown disk manager: %s (must be file or mmap)", c.DiskManager), nil)
	}

	if c.WALEnabled && c.WALDirectory == "" {
		return NewStorageError(ErrCodeInvalidConfig, "Validate", "WAL directory cannot be empty when WAL is enabled", nil)
	}

	if _, err := ParseLogCompression(c.WALCompressionAlg); err != nil {
		return NewStorageError(ErrCodeInvalidConfig, "Validate", "invalid WAL compression algorithm", err)
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return NewStorageError(ErrCodeInvalidConfig, "Validate",
			fmt.Sprintf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel), nil)
	}

	return nil
}

// Clone creates a deep copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
