// Package config loads the optimizer configuration file.
//
// The configuration is read once at startup and treated as an immutable
// snapshot for the lifetime of the process.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultFile = "config.yaml"

	// TokenEnv overrides cloudflare.api_token so the secret can be kept
	// out of the configuration file.
	TokenEnv = "CDNOPT_API_TOKEN"

	defaultPingThreads  = 64
	defaultPingTimeout  = 6 * time.Second
	defaultTopIPs       = 10
	defaultIntervalSecs = 3600
	defaultOutputFile   = "fastest_cdn_ips.txt"
	defaultMaxAddresses = 65536
	defaultTTL          = 1
)

type Config struct {
	Cloudflare   Cloudflare   `yaml:"cloudflare"`
	CDN          CDN          `yaml:"cdn"`
	Optimization Optimization `yaml:"optimization"`
	Metrics      Metrics      `yaml:"metrics"`
}

type Cloudflare struct {
	APIToken  string `yaml:"api_token"`
	ZoneID    string `yaml:"zone_id"`
	RecordID  string `yaml:"record_id"`
	Domain    string `yaml:"domain"`
	UpdateDNS bool   `yaml:"update_dns"`

	// TTL 1 is "automatic" in the Cloudflare API.
	TTL     int   `yaml:"ttl"`
	Proxied *bool `yaml:"proxied"`
}

type CDN struct {
	CIDRList []string `yaml:"cidr_list"`
}

type Optimization struct {
	PingThreads        int           `yaml:"ping_threads"`
	PingTimeout        time.Duration `yaml:"ping_timeout"`
	TopIPsToSave       int           `yaml:"top_ips_to_save"`
	RunIntervalSeconds int           `yaml:"run_interval_seconds"`
	Debug              bool          `yaml:"debug"`
	OutputFile         string        `yaml:"output_file"`
	MaxAddresses       int           `yaml:"max_addresses"`
}

type Metrics struct {
	// Port for the prometheus listener; 0 disables it.
	Port int `yaml:"port"`
}

// Load reads, decodes and validates the configuration file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML document, applies defaults and the environment
// token override, and validates the result.
func Parse(b []byte) (*Config, error) {
	cfg := &Config{}

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if token := os.Getenv(TokenEnv); len(token) > 0 {
		cfg.Cloudflare.APIToken = token
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) setDefaults() {
	o := &cfg.Optimization
	if o.PingThreads == 0 {
		o.PingThreads = defaultPingThreads
	}
	if o.PingTimeout == 0 {
		o.PingTimeout = defaultPingTimeout
	}
	if o.TopIPsToSave == 0 {
		o.TopIPsToSave = defaultTopIPs
	}
	if o.RunIntervalSeconds == 0 {
		o.RunIntervalSeconds = defaultIntervalSecs
	}
	if len(o.OutputFile) == 0 {
		o.OutputFile = defaultOutputFile
	}
	if o.MaxAddresses == 0 {
		o.MaxAddresses = defaultMaxAddresses
	}

	if cfg.Cloudflare.TTL == 0 {
		cfg.Cloudflare.TTL = defaultTTL
	}
	if cfg.Cloudflare.Proxied == nil {
		proxied := true
		cfg.Cloudflare.Proxied = &proxied
	}
}

// Validate checks that the configuration can drive an optimization cycle.
func (cfg *Config) Validate() error {
	if len(cfg.CDN.CIDRList) == 0 {
		return errors.New("cdn.cidr_list: at least one range required")
	}

	o := cfg.Optimization
	if o.PingThreads < 1 {
		return fmt.Errorf("optimization.ping_threads: must be positive, got %d", o.PingThreads)
	}
	if o.PingTimeout <= 0 {
		return fmt.Errorf("optimization.ping_timeout: must be positive, got %s", o.PingTimeout)
	}
	if o.TopIPsToSave < 1 {
		return fmt.Errorf("optimization.top_ips_to_save: must be positive, got %d", o.TopIPsToSave)
	}
	if o.RunIntervalSeconds < 1 {
		return fmt.Errorf("optimization.run_interval_seconds: must be positive, got %d", o.RunIntervalSeconds)
	}
	if o.MaxAddresses < 0 {
		return fmt.Errorf("optimization.max_addresses: must not be negative, got %d", o.MaxAddresses)
	}

	if cfg.Metrics.Port < 0 || cfg.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port: invalid port %d", cfg.Metrics.Port)
	}

	cf := cfg.Cloudflare
	if cf.TTL != 1 && (cf.TTL < 30 || cf.TTL > 86400) {
		return fmt.Errorf("cloudflare.ttl: must be 1 (automatic) or between 30 and 86400, got %d", cf.TTL)
	}

	if cf.UpdateDNS {
		missing := []string{}
		if len(cf.APIToken) == 0 {
			missing = append(missing, "api_token")
		}
		if len(cf.ZoneID) == 0 {
			missing = append(missing, "zone_id")
		}
		if len(cf.RecordID) == 0 {
			missing = append(missing, "record_id")
		}
		if len(cf.Domain) == 0 {
			missing = append(missing, "domain")
		}
		if len(missing) > 0 {
			return fmt.Errorf("cloudflare: update_dns requires %v", missing)
		}
	}

	return nil
}

// Interval is the pause between optimization cycles.
func (o Optimization) Interval() time.Duration {
	return time.Duration(o.RunIntervalSeconds) * time.Second
}

// HasCredentials reports whether the Cloudflare API can be called.
func (cf Cloudflare) HasCredentials() bool {
	return len(cf.APIToken) > 0 && len(cf.ZoneID) > 0 && len(cf.RecordID) > 0
}
