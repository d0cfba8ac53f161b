package server

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/vitalvas/radiusd/pkg/auth"
)

// Defaults applied by LoadConfig when fields are absent
const (
	DefaultAuthPort        = 1812
	DefaultAcctPort        = 1813
	DefaultCoAPort         = 3799
	DefaultWorkers         = 32
	DefaultRequestTimeout  = 5000
	DefaultShutdownTimeout = 10
	DefaultMaxPacketSize   = 4096
)

// ClientConfig describes one NAS allowed to talk to the server. The
// address is a single IP or a CIDR network.
type ClientConfig struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Secret  string `yaml:"secret"`

	// Protocols allowed for this client; empty means PAP+CHAP
	Protocols []auth.Protocol `yaml:"protocols"`

	// RequireMessageAuthenticator rejects Access-Requests lacking the
	// Message-Authenticator attribute. Unset means true; opting out
	// must be explicit.
	RequireMessageAuthenticator *bool `yaml:"require_message_authenticator"`

	// CoAPort is the NAS's dynamic authorization port for
	// server-originated Disconnect/CoA requests
	CoAPort int `yaml:"coa_port,omitempty"`
}

// BackendConfig describes one authentication backend
type BackendConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"`
	Priority int    `yaml:"priority"`

	// local
	Users map[string]string `yaml:"users,omitempty"`

	// mac
	KnownMACs     map[string]MACEntryConfig `yaml:"known_macs,omitempty"`
	AcceptUnknown bool                      `yaml:"accept_unknown,omitempty"`
	GuestVLAN     int                       `yaml:"guest_vlan,omitempty"`
	PortalURL     string                    `yaml:"portal_url,omitempty"`

	// oauth
	IntrospectionURL string `yaml:"introspection_url,omitempty"`
	ClientID         string `yaml:"client_id,omitempty"`
	ClientSecret     string `yaml:"client_secret,omitempty"`
}

// MACEntryConfig is the yaml shape of a known MAC device
type MACEntryConfig struct {
	VLAN              int `yaml:"vlan"`
	BandwidthUpKbps   int `yaml:"bandwidth_up_kbps,omitempty"`
	BandwidthDownKbps int `yaml:"bandwidth_down_kbps,omitempty"`
}

// RedisConfig enables the redis accounting sink
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"`
	TTLHours int    `yaml:"ttl_hours"`
}

// Config is the full server configuration, loaded once at startup and
// immutable afterwards.
type Config struct {
	BindAddress string `yaml:"bind_address" envconfig:"BIND_ADDRESS"`
	AuthPort    int    `yaml:"auth_port" envconfig:"AUTH_PORT"`
	AcctPort    int    `yaml:"acct_port" envconfig:"ACCT_PORT"`
	CoAPort     int    `yaml:"coa_port" envconfig:"COA_PORT"`

	RadSecPort int    `yaml:"radsec_port" envconfig:"RADSEC_PORT"`
	RadSecCert string `yaml:"radsec_cert" envconfig:"RADSEC_CERT"`
	RadSecKey  string `yaml:"radsec_key" envconfig:"RADSEC_KEY"`

	Workers              int `yaml:"workers" envconfig:"WORKERS"`
	RequestTimeoutMillis int `yaml:"request_timeout_ms" envconfig:"REQUEST_TIMEOUT_MS"`
	ShutdownTimeoutSecs  int `yaml:"shutdown_timeout_secs" envconfig:"SHUTDOWN_TIMEOUT_SECS"`
	MaxPacketSize        int `yaml:"max_packet_size" envconfig:"MAX_PACKET_SIZE"`

	LogLevel string `yaml:"log_level" envconfig:"LOG_LEVEL"`

	Clients  []ClientConfig  `yaml:"clients"`
	Backends []BackendConfig `yaml:"backends"`
	Redis    RedisConfig     `yaml:"redis"`
}

// RequestTimeout returns the per-request deadline
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMillis) * time.Millisecond
}

// ShutdownTimeout returns the graceful drain deadline
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSecs) * time.Second
}

// LoadConfig reads the YAML config file, applies RADIUSD_* environment
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := envconfig.Process("radiusd", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.BindAddress == "" {
		c.BindAddress = "0.0.0.0"
	}
	if c.AuthPort == 0 {
		c.AuthPort = DefaultAuthPort
	}
	if c.AcctPort == 0 {
		c.AcctPort = DefaultAcctPort
	}
	if c.CoAPort == 0 {
		c.CoAPort = DefaultCoAPort
	}
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.RequestTimeoutMillis == 0 {
		c.RequestTimeoutMillis = DefaultRequestTimeout
	}
	if c.ShutdownTimeoutSecs == 0 {
		c.ShutdownTimeoutSecs = DefaultShutdownTimeout
	}
	if c.MaxPacketSize == 0 {
		c.MaxPacketSize = DefaultMaxPacketSize
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the configuration for inconsistencies
func (c *Config) Validate() error {
	if len(c.Clients) == 0 {
		return fmt.Errorf("no clients configured")
	}

	for i, client := range c.Clients {
		if client.Address == "" {
			return fmt.Errorf("client %d: address is required", i)
		}
		if client.Secret == "" {
			return fmt.Errorf("client %q: secret is required", client.Address)
		}
	}

	if len(c.Backends) == 0 {
		return fmt.Errorf("no authentication backends configured")
	}

	for _, backend := range c.Backends {
		switch backend.Kind {
		case "local":
			if len(backend.Users) == 0 {
				return fmt.Errorf("backend %q: local backend needs users", backend.Name)
			}
		case "mac":
			if len(backend.KnownMACs) == 0 && !backend.AcceptUnknown {
				return fmt.Errorf("backend %q: mac backend needs known_macs or accept_unknown", backend.Name)
			}
		case "oauth":
			if backend.IntrospectionURL == "" {
				return fmt.Errorf("backend %q: oauth backend needs introspection_url", backend.Name)
			}
		default:
			return fmt.Errorf("backend %q: unknown kind %q", backend.Name, backend.Kind)
		}
	}

	if c.RadSecPort != 0 && (c.RadSecCert == "" || c.RadSecKey == "") {
		return fmt.Errorf("radsec enabled but certificate or key missing")
	}

	if c.MaxPacketSize < 20 || c.MaxPacketSize > 4096 {
		return fmt.Errorf("max_packet_size must be within 20..4096")
	}

	return nil
}

// BuildBackends instantiates the configured authentication backends
// in declaration order.
func (c *Config) BuildBackends() ([]auth.PrioritizedBackend, error) {
	out := make([]auth.PrioritizedBackend, 0, len(c.Backends))

	for _, bc := range c.Backends {
		var backend auth.Backend

		switch bc.Kind {
		case "local":
			backend = auth.NewLocalBackend(bc.Name, bc.Users)

		case "mac":
			known := make(map[string]auth.MACEntry, len(bc.KnownMACs))
			for mac, entry := range bc.KnownMACs {
				known[mac] = auth.MACEntry{
					VLAN:              entry.VLAN,
					BandwidthUpKbps:   entry.BandwidthUpKbps,
					BandwidthDownKbps: entry.BandwidthDownKbps,
				}
			}
			backend = auth.NewMACAuthBackend(bc.Name, auth.MACAuthConfig{
				Known:         known,
				AcceptUnknown: bc.AcceptUnknown,
				GuestVLAN:     bc.GuestVLAN,
				PortalURL:     bc.PortalURL,
			})

		case "oauth":
			backend = auth.NewOAuthBackend(bc.Name, auth.OAuthConfig{
				IntrospectionURL: bc.IntrospectionURL,
				ClientID:         bc.ClientID,
				ClientSecret:     bc.ClientSecret,
			})

		default:
			return nil, fmt.Errorf("backend %q: unknown kind %q", bc.Name, bc.Kind)
		}

		out = append(out, auth.PrioritizedBackend{
			Backend:  backend,
			Priority: bc.Priority,
		})
	}

	return out, nil
}
