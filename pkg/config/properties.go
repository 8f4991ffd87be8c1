package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/downfa11-org/go-journal/util"
	"gopkg.in/yaml.v3"
)

// Config represents a journal instance configuration including tunable
// storage options.
type Config struct {
	// Name is the segment filename prefix.
	Name string `yaml:"name" json:"name"`
	// Directory holds the segment files; it must exist and be writable.
	Directory string `yaml:"directory" json:"directory"`

	// Storage
	MaxSegmentSize          uint32 `yaml:"max_segment_size" json:"max.segment.size"`
	MinFreeDiskSpace        uint64 `yaml:"min_free_disk_space" json:"min.free.disk.space"`
	PreallocateSegmentFiles bool   `yaml:"preallocate_segment_files" json:"preallocate.segment.files"`
	IndexStride             uint64 `yaml:"index_stride" json:"index.stride"`

	// LastWrittenIndex is a recovery hint: records strictly above it are
	// treated as uncommitted and dropped on open. Zero disables the trim.
	LastWrittenIndex uint64 `yaml:"last_written_index" json:"last.written.index"`

	// Observability
	LogLevel       util.LogLevel `yaml:"log_level" json:"log_level"`
	EnableExporter bool          `yaml:"enable_exporter" json:"enable.exporter"`
	ExporterPort   int           `yaml:"exporter_port" json:"exporter.port"`
}

// LoadConfig reads a YAML or JSON configuration file and applies defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if strings.HasSuffix(path, ".json") {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	util.SetLevel(cfg.LogLevel)

	return cfg, nil
}

// Validate rejects configurations the journal cannot open with.
func (cfg *Config) Validate() error {
	if strings.TrimSpace(cfg.Directory) == "" {
		return fmt.Errorf("config: directory must be set")
	}
	return nil
}

// Normalize fills unset options with their defaults.
func (cfg *Config) Normalize() {
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "journal"
	}

	// Storage
	if cfg.MaxSegmentSize < 1024 {
		cfg.MaxSegmentSize = 1 << 22 // 4MB
	}
	if cfg.MinFreeDiskSpace == 0 {
		cfg.MinFreeDiskSpace = 64 << 20
	}
	if cfg.IndexStride == 0 {
		cfg.IndexStride = 100
	}

	if cfg.ExporterPort <= 0 {
		cfg.ExporterPort = 9100
	}
}
