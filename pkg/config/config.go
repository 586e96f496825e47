// Package config loads the YAML-backed configuration for the pindex
// tool. It follows the teacher's pkg/config.Load shape: build a struct of
// defaults, overlay anything present in the file, then Validate.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure.
type Config struct {
	Index     IndexConfig     `yaml:"index"`
	Builder   BuilderConfig   `yaml:"builder"`
	Benchmark BenchmarkConfig `yaml:"benchmark"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// IndexConfig controls where the index lives and its shape.
type IndexConfig struct {
	StorageRoot string `yaml:"storage_root"`
	NumBuckets  uint64 `yaml:"num_buckets"`
}

// BuilderConfig holds per-partition builder settings. Validate checks
// them, but internal/cuckoo does not read them: it uses a fixed eviction
// budget of 63 and always starts at width 1.
type BuilderConfig struct {
	MaxEvictionAttempts int `yaml:"max_eviction_attempts"`
	StartingWidth       int `yaml:"starting_width"`
}

// BenchmarkConfig controls the bulkstat sweep ranges.
type BenchmarkConfig struct {
	Queries              []int `yaml:"queries"`
	Partitions           []int `yaml:"partitions"`
	ElementsPerPartition []int `yaml:"elements_per_partition"`
	Parallelism          int   `yaml:"parallelism"`
}

// LoggingConfig mirrors the teacher's logging config fields.
type LoggingConfig struct {
	Level         string `yaml:"level"`          // debug, info, warn, error
	EnableConsole bool   `yaml:"enable_console"` // enable console output
	EnableFile    bool   `yaml:"enable_file"`    // enable file output
	LogFile       string `yaml:"log_file"`       // log file path
	BufferSize    int    `yaml:"buffer_size"`    // async log buffer size
	LogDir        string `yaml:"log_dir"`        // log directory
}

// Load reads and parses the configuration file at path, falling back to
// defaults when path does not exist.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Index: IndexConfig{
			StorageRoot: "./pindex-data",
			NumBuckets:  1024,
		},
		Builder: BuilderConfig{
			MaxEvictionAttempts: 63,
			StartingWidth:       1,
		},
		Benchmark: BenchmarkConfig{
			Queries:              []int{10000},
			Partitions:           []int{10},
			ElementsPerPartition: []int{1000},
			Parallelism:          4,
		},
		Logging: LoggingConfig{
			Level:         "info",
			EnableConsole: true,
			EnableFile:    false,
			LogFile:       "",
			BufferSize:    256,
			LogDir:        "logs",
		},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Printf("configuration file %s not found, using defaults\n", path)
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	if c.Index.NumBuckets == 0 {
		return fmt.Errorf("index.num_buckets must be > 0")
	}
	if c.Index.StorageRoot == "" {
		return fmt.Errorf("index.storage_root cannot be empty")
	}
	if c.Builder.MaxEvictionAttempts <= 0 {
		return fmt.Errorf("builder.max_eviction_attempts must be > 0")
	}
	if c.Builder.StartingWidth <= 0 {
		return fmt.Errorf("builder.starting_width must be > 0")
	}
	if c.Benchmark.Parallelism <= 0 {
		return fmt.Errorf("benchmark.parallelism must be > 0")
	}
	if !isValidLogLevel(c.Logging.Level) {
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}
	return nil
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	default:
		return false
	}
}
