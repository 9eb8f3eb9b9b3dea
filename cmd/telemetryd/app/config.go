package app

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/guven8/beamng-telemetry-platform/internal/ingest"
	"github.com/guven8/beamng-telemetry-platform/internal/pipeline"
)

const (
	defaultListenAddr = ":8080"
	defaultSubjectID  = 1
	defaultDBFileName = "telemetry.sqlite"
)

// Config represents the main application configuration.
type Config struct {
	Settings Settings      `yaml:"settings"`
	Ingest   IngestConfig  `yaml:"ingest"`
	Server   ServerConfig  `yaml:"server"`
	Storage  StorageConfig `yaml:"storage"`
}

// Settings represents global application settings.
type Settings struct {
	LogLevel string `yaml:"logLevel"`
}

// IngestConfig represents UDP ingestion settings.
type IngestConfig struct {
	UDPPort   int   `yaml:"udpPort"`
	QueueSize int   `yaml:"queueSize"`
	SubjectID int64 `yaml:"subjectId"`
}

// ServerConfig represents the HTTP server settings.
type ServerConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// StorageConfig represents storage settings.
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	FileName      string `yaml:"fileName"`
}

// NewConfig returns a configuration with working defaults.
func NewConfig() *Config {
	return &Config{
		Ingest: IngestConfig{
			UDPPort:   ingest.DefaultPort,
			QueueSize: pipeline.DefaultBufferSize,
			SubjectID: defaultSubjectID,
		},
		Server: ServerConfig{
			ListenAddr: defaultListenAddr,
		},
		Storage: StorageConfig{
			FileName: defaultDBFileName,
		},
	}
}

// LoadConfig reads the YAML configuration at path, applying defaults
// for anything unset. An empty path yields the default configuration.
// The UDP_PORT environment variable overrides the configured ingest
// port either way.
func LoadConfig(path string) (*Config, error) {
	c := NewConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading configuration file: %w", err)
		}
		if err = yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parsing configuration file: %w", err)
		}
	}

	if v := os.Getenv("UDP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid UDP_PORT %q", v)
		}
		c.Ingest.UDPPort = port
	}

	if c.Ingest.UDPPort < 1 || c.Ingest.UDPPort > 65535 {
		return nil, fmt.Errorf("invalid ingest port %d", c.Ingest.UDPPort)
	}
	if c.Ingest.QueueSize < 1 {
		c.Ingest.QueueSize = pipeline.DefaultBufferSize
	}
	if c.Ingest.SubjectID == 0 {
		c.Ingest.SubjectID = defaultSubjectID
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = defaultListenAddr
	}
	if c.Storage.FileName == "" {
		c.Storage.FileName = defaultDBFileName
	}

	return c, nil
}
