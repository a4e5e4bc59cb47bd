package gateway

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pampang/federation/logging"
)

const (
	defaultEndpoint = "/plan"
	defaultPort     = 9000
	defaultTimeout  = 5 * time.Second

	defaultRetryInterval = 100 * time.Millisecond
)

type GatewayService struct {
	Name        string   `yaml:"name"`
	Host        string   `yaml:"host"`
	SchemaFiles []string `yaml:"schema_files"`
}

// RetryOption defines the retry configuration for SDL fetching.
type RetryOption struct {
	Attempts int    `yaml:"attempts" default:"3"`
	Timeout  string `yaml:"timeout"  default:"5s"`
	// Interval is the base wait between attempts; waits grow exponentially.
	Interval string `yaml:"interval" default:"100ms"`
}

type PlanningSetting struct {
	AutoFragmentization bool `yaml:"auto_fragmentization" default:"false"`
}

type GatewayOption struct {
	Endpoint        string               `yaml:"endpoint" default:"/plan"`
	ServiceName     string               `yaml:"service_name"`
	Port            int                  `yaml:"port" default:"9000"`
	TimeoutDuration string               `yaml:"timeout_duration" default:"5s"`
	Services        []GatewayService     `yaml:"services"`
	Retry           RetryOption          `yaml:"retry"`
	Planning        PlanningSetting      `yaml:"planning"`
	Logging         logging.Option       `yaml:"logging"`
	Opentelemetry   OpentelemetrySetting `yaml:"opentelemetry"`
}

type OpentelemetrySetting struct {
	TracingSetting OpentelemetryTracingSetting `yaml:"tracing"`
}

type OpentelemetryTracingSetting struct {
	Enable   bool   `yaml:"enable" default:"false"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// Timeout returns the configured request and shutdown timeout.
func (o *GatewayOption) Timeout() time.Duration {
	return parseDurationOr(o.TimeoutDuration, defaultTimeout)
}

// LoadOption reads a YAML configuration file. Relative schema file paths are
// resolved against the directory of the file.
func LoadOption(path string) (*GatewayOption, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	opt, err := ParseOption(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	for i := range opt.Services {
		for j, f := range opt.Services[i].SchemaFiles {
			if !filepath.IsAbs(f) {
				opt.Services[i].SchemaFiles[j] = filepath.Join(dir, f)
			}
		}
	}

	return opt, nil
}

// ParseOption decodes a YAML configuration and applies defaults.
func ParseOption(src []byte) (*GatewayOption, error) {
	var opt GatewayOption
	if err := yaml.Unmarshal(src, &opt); err != nil {
		return nil, err
	}

	if opt.Endpoint == "" {
		opt.Endpoint = defaultEndpoint
	}
	if opt.Port == 0 {
		opt.Port = defaultPort
	}
	if opt.TimeoutDuration == "" {
		opt.TimeoutDuration = defaultTimeout.String()
	}
	if opt.Retry.Attempts == 0 {
		opt.Retry.Attempts = 3
	}
	if opt.Retry.Timeout == "" {
		opt.Retry.Timeout = "5s"
	}
	if opt.Retry.Interval == "" {
		opt.Retry.Interval = defaultRetryInterval.String()
	}

	seen := make(map[string]bool, len(opt.Services))
	for _, s := range opt.Services {
		if s.Name == "" {
			return nil, fmt.Errorf("service without a name")
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("service %q is configured more than once", s.Name)
		}
		seen[s.Name] = true
		if len(s.SchemaFiles) == 0 && s.Host == "" {
			return nil, fmt.Errorf("service %q needs schema_files or a host to fetch its SDL from", s.Name)
		}
	}

	return &opt, nil
}

// SampleConfig is written by `fedplan init`.
const SampleConfig = `endpoint: /plan
service_name: fedplan
port: 9000
timeout_duration: 5s

services:
  - name: accounts
    host: http://localhost:4001/query
    schema_files:
      - ./schemas/accounts.graphql
  - name: products
    host: http://localhost:4002/query

retry:
  attempts: 3
  timeout: 5s
  interval: 100ms

planning:
  auto_fragmentization: false

logging:
  level: info
  format: json

opentelemetry:
  tracing:
    enable: false
    endpoint: localhost:4318
    insecure: true
`
