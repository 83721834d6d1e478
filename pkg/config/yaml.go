package config

import (
	"fmt"
	"os"
	"time"

	yaml "go.yaml.in/yaml/v2"
)

// yamlDocument mirrors the hierarchical schema in spec.md §6:
//
//	api:
//	  endpoints:
//	    movies:
//	      uri: https://movies.example.com
//	      timeout: 5s
//	      retries: 2
//	      retryDelaySeed: 200ms
//	      retryDelayMaximum: 5s
//	      failureThreshold: 0.5
//	      failureSamplingDuration: 30s
//	      failureMinimumThroughput: 10
//	      failureBreakDuration: 30s
//	      rateLimit: 100
//	      rateLimitPeriod: 1m
//	      isolate: false
type yamlDocument struct {
	API struct {
		Endpoints map[string]yamlEndpoint `yaml:"endpoints"`
	} `yaml:"api"`
}

type yamlEndpoint struct {
	URI                      string  `yaml:"uri"`
	Timeout                  string  `yaml:"timeout"`
	Retries                  int     `yaml:"retries"`
	RetryDelaySeed           string  `yaml:"retryDelaySeed"`
	RetryDelayMaximum        string  `yaml:"retryDelayMaximum"`
	FailureThreshold         float64 `yaml:"failureThreshold"`
	FailureSamplingDuration  string  `yaml:"failureSamplingDuration"`
	FailureMinimumThroughput uint32  `yaml:"failureMinimumThroughput"`
	FailureBreakDuration     string  `yaml:"failureBreakDuration"`
	RateLimit                int     `yaml:"rateLimit"`
	RateLimitPeriod          string  `yaml:"rateLimitPeriod"`
	Isolate                  bool    `yaml:"isolate"`
}

// YAMLSource loads a Config from a YAML file on disk, in the schema
// documented above. Each Load() call re-reads the file, so a Reload
// picks up edits made since the last load.
type YAMLSource struct {
	Path string
}

// NewYAMLSource returns a Source reading from path.
func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{Path: path}
}

// Load implements config.Source.
func (s *YAMLSource) Load() (Config, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", s.Path, err)
	}

	var doc yamlDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", s.Path, err)
	}

	cfg := Config{Endpoints: make(map[string]EndpointConfig, len(doc.API.Endpoints))}
	for name, raw := range doc.API.Endpoints {
		ec, err := raw.toEndpointConfig(name)
		if err != nil {
			return Config{}, fmt.Errorf("config: endpoint %s: %w", name, err)
		}
		cfg.Endpoints[name] = ec
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (e yamlEndpoint) toEndpointConfig(name string) (EndpointConfig, error) {
	ec := DefaultEndpointConfig(name)
	ec.URI = e.URI
	ec.Isolate = e.Isolate

	var err error
	if ec.Timeout, err = parseDuration(e.Timeout, ec.Timeout); err != nil {
		return ec, err
	}
	ec.Retries = e.Retries
	if ec.RetryDelaySeed, err = parseDuration(e.RetryDelaySeed, ec.RetryDelaySeed); err != nil {
		return ec, err
	}
	if ec.RetryDelayMaximum, err = parseDuration(e.RetryDelayMaximum, ec.RetryDelayMaximum); err != nil {
		return ec, err
	}
	if e.FailureThreshold > 0 {
		ec.FailureThreshold = e.FailureThreshold
	}
	if ec.FailureSamplingDuration, err = parseDuration(e.FailureSamplingDuration, ec.FailureSamplingDuration); err != nil {
		return ec, err
	}
	if e.FailureMinimumThroughput > 0 {
		ec.FailureMinimumThroughput = e.FailureMinimumThroughput
	}
	if ec.FailureBreakDuration, err = parseDuration(e.FailureBreakDuration, ec.FailureBreakDuration); err != nil {
		return ec, err
	}
	ec.RateLimit = e.RateLimit
	if ec.RateLimitPeriod, err = parseDuration(e.RateLimitPeriod, ec.RateLimitPeriod); err != nil {
		return ec, err
	}

	return ec, nil
}

func parseDuration(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	return d, nil
}
