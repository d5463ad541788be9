package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

var (
	defaultConfig = Config{
		Server:   defaultServer,
		Upstream: defaultUpstream,
		Cache:    defaultCache,
	}

	defaultServer = Server{
		HTTP: HTTP{
			ListenAddr: ":8080",
		},
	}

	defaultUpstream = Upstream{
		BaseURL:      "https://rest.ensembl.org",
		Timeout:      Duration(30 * time.Second),
		Retries:      3,
		RetryBackoff: Duration(200 * time.Millisecond),
	}

	defaultCache = Cache{
		Mode: "memory",
		TTL:  Duration(30 * time.Second),
	}
)

// Config describes the full service configuration:
// where to listen, which upstream to fetch from and how
// aggressively, and how long fetched payloads stay cached.
type Config struct {
	Server Server `yaml:"server,omitempty"`

	// Whether to print debug logs
	LogDebug bool `yaml:"log_debug,omitempty"`

	Upstream Upstream `yaml:"upstream,omitempty"`

	Cache Cache `yaml:"cache,omitempty"`

	// Catches all undefined fields
	XXX map[string]interface{} `yaml:",inline"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = defaultConfig

	// set c to the defaults and then overwrite it with the input.
	type plain Config
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}

	return checkOverflow(c.XXX, "config")
}

// Server describes the HTTP(S) listeners and the metrics endpoint.
type Server struct {
	HTTP    HTTP    `yaml:"http,omitempty"`
	HTTPS   HTTPS   `yaml:"https,omitempty"`
	Metrics Metrics `yaml:"metrics,omitempty"`

	// Catches all undefined fields
	XXX map[string]interface{} `yaml:",inline"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (s *Server) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*s = defaultServer

	type plain Server
	if err := unmarshal((*plain)(s)); err != nil {
		return err
	}

	if len(s.HTTP.ListenAddr) == 0 && len(s.HTTPS.ListenAddr) == 0 {
		return fmt.Errorf("either `server.http.listen_addr` or `server.https.listen_addr` must be set")
	}

	return checkOverflow(s.XXX, "server")
}

// HTTP describes the plain HTTP listener.
type HTTP struct {
	// TCP address to listen to for http
	// Default is `:8080`
	ListenAddr string `yaml:"listen_addr,omitempty"`

	AllowedNetworks Networks `yaml:"allowed_networks,omitempty"`

	// Catches all undefined fields
	XXX map[string]interface{} `yaml:",inline"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (h *HTTP) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain HTTP
	if err := unmarshal((*plain)(h)); err != nil {
		return err
	}

	return checkOverflow(h.XXX, "server.http")
}

// HTTPS describes the TLS listener. Certificates come either from
// the cert_file/key_file pair or from letsencrypt via autocert.
type HTTPS struct {
	// TCP address to listen to for https
	ListenAddr string `yaml:"listen_addr,omitempty"`

	CertFile string `yaml:"cert_file,omitempty"`
	KeyFile  string `yaml:"key_file,omitempty"`

	Autocert Autocert `yaml:"autocert,omitempty"`

	AllowedNetworks Networks `yaml:"allowed_networks,omitempty"`

	// Catches all undefined fields
	XXX map[string]interface{} `yaml:",inline"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (h *HTTPS) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain HTTPS
	if err := unmarshal((*plain)(h)); err != nil {
		return err
	}

	if len(h.ListenAddr) > 0 {
		hasPair := len(h.CertFile) > 0 && len(h.KeyFile) > 0
		if !hasPair && len(h.Autocert.CacheDir) == 0 {
			return fmt.Errorf("configure either `cert_file` and `key_file` or `autocert.cache_dir` for TLS")
		}
	}

	return checkOverflow(h.XXX, "server.https")
}

// Autocert describes letsencrypt certificate retrieval.
type Autocert struct {
	// Path to the directory where letsencrypt certs are cached
	CacheDir string `yaml:"cache_dir,omitempty"`

	// List of hosts autocert is allowed to respond for
	AllowedHosts []string `yaml:"allowed_hosts,omitempty"`

	// Catches all undefined fields
	XXX map[string]interface{} `yaml:",inline"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (a *Autocert) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain Autocert
	if err := unmarshal((*plain)(a)); err != nil {
		return err
	}

	return checkOverflow(a.XXX, "server.https.autocert")
}

// Metrics restricts access to the /metrics endpoint.
type Metrics struct {
	AllowedNetworks Networks `yaml:"allowed_networks,omitempty"`

	// Catches all undefined fields
	XXX map[string]interface{} `yaml:",inline"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (m *Metrics) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain Metrics
	if err := unmarshal((*plain)(m)); err != nil {
		return err
	}

	return checkOverflow(m.XXX, "server.metrics")
}

// Upstream describes the JSON-returning service the handlers fetch from
// and the resilience knobs around it.
type Upstream struct {
	// Base URL of the upstream REST service
	// Default is `https://rest.ensembl.org`
	BaseURL string `yaml:"base_url,omitempty"`

	// Hard wall-clock timeout for a single fetch, retries included
	// Default is 30s
	Timeout Duration `yaml:"timeout,omitempty"`

	// Number of attempts for transient failures
	// Default is 3
	Retries int `yaml:"retries,omitempty"`

	// Base pause between attempts; attempt n sleeps n*retry_backoff
	// Default is 200ms
	RetryBackoff Duration `yaml:"retry_backoff,omitempty"`

	// Upper bound on upstream requests per second; zero disables
	// the limiter. Ensembl asks clients to self-limit.
	MaxRPS int `yaml:"max_rps,omitempty"`

	// Catches all undefined fields
	XXX map[string]interface{} `yaml:",inline"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (u *Upstream) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*u = defaultUpstream

	type plain Upstream
	if err := unmarshal((*plain)(u)); err != nil {
		return err
	}

	if _, err := url.Parse(u.BaseURL); err != nil || len(u.BaseURL) == 0 {
		return fmt.Errorf("field `upstream.base_url` must be a valid URL. Got %q", u.BaseURL)
	}

	if u.Retries < 1 {
		return fmt.Errorf("field `upstream.retries` must be positive. Got %d", u.Retries)
	}

	if u.MaxRPS < 0 {
		return fmt.Errorf("field `upstream.max_rps` must not be negative. Got %d", u.MaxRPS)
	}

	return checkOverflow(u.XXX, "upstream")
}

// Cache describes the TTL cache shared by all fetches.
type Cache struct {
	// Mode is either `memory` or `redis`
	// Default is `memory`
	Mode string `yaml:"mode,omitempty"`

	// How long a fetched payload stays valid
	// Default is 30s
	TTL Duration `yaml:"ttl,omitempty"`

	Redis Redis `yaml:"redis,omitempty"`

	// Catches all undefined fields
	XXX map[string]interface{} `yaml:",inline"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (c *Cache) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = defaultCache

	type plain Cache
	if err := unmarshal((*plain)(c)); err != nil {
		return err
	}

	if c.Mode != "memory" && c.Mode != "redis" {
		return fmt.Errorf("field `cache.mode` must be `memory` or `redis`. Got %q instead", c.Mode)
	}

	if c.Mode == "redis" && len(c.Redis.Addresses) == 0 {
		return fmt.Errorf("field `cache.redis.addresses` must contain at least 1 address")
	}

	if c.TTL <= 0 {
		return fmt.Errorf("field `cache.ttl` must be positive. Got %s", time.Duration(c.TTL))
	}

	return checkOverflow(c.XXX, "cache")
}

// Redis describes the redis cache backend connection.
type Redis struct {
	Addresses []string `yaml:"addresses"`

	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`

	// Catches all undefined fields
	XXX map[string]interface{} `yaml:",inline"`
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (r *Redis) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain Redis
	if err := unmarshal((*plain)(r)); err != nil {
		return err
	}

	return checkOverflow(r.XXX, "cache.redis")
}

// LoadFile loads and validates configuration from the provided .yml file.
func LoadFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// String returns the effective configuration in yaml form.
func (c *Config) String() string {
	content, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Sprintf("cannot marshal config: %s", err)
	}
	return string(content)
}
