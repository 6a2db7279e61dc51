// Package config defines the gateway configuration: inbound server settings,
// downstream service endpoints, outbound client behavior, and authentication.
//
// Configuration is layered: built-in defaults, then an optional YAML file,
// then environment variables. The environment set is closed and documented on
// ApplyEnv; it is sufficient to run the gateway with no config file at all.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/luxsim/helio/pkg/observability"
)

// DeploymentMode selects URL defaults and user-facing error wording.
type DeploymentMode string

const (
	// ModeLocal assumes all services run on localhost with well-known ports.
	ModeLocal DeploymentMode = "local"
	// ModeProduction requires explicit service URLs and hides internal
	// topology from error messages.
	ModeProduction DeploymentMode = "production"
)

// ServiceNames is the closed set of downstream services the gateway drives.
var ServiceNames = []string{"obstruction", "encoder", "model", "merger", "stats"}

// defaultLocalPorts holds the well-known local ports per service.
var defaultLocalPorts = map[string]int{
	"obstruction": 8081,
	"encoder":     8082,
	"model":       8083,
	"merger":      8084,
	"stats":       8085,
}

// AuthType identifies how inbound requests are authenticated.
type AuthType string

const (
	// AuthTypeToken compares the bearer token against a configured secret.
	AuthTypeToken AuthType = "token"
	// AuthTypeAuth0 validates OIDC JWTs against the issuer's JWKS.
	AuthTypeAuth0 AuthType = "auth0"
	// AuthTypeNone disables authentication.
	AuthTypeNone AuthType = "none"
)

// Config is the root gateway configuration.
type Config struct {
	// DeploymentMode is "local" or "production".
	DeploymentMode DeploymentMode `yaml:"deployment_mode,omitempty"`

	// Server configures the inbound HTTP listener.
	Server ServerConfig `yaml:"server,omitempty"`

	// Client configures outbound calls to downstream services.
	Client ClientConfig `yaml:"client,omitempty"`

	// Services maps each downstream service name to its endpoint settings.
	// Missing entries fall back to local defaults in local mode.
	Services map[string]*ServiceConfig `yaml:"services,omitempty"`

	// Auth configures inbound request authentication.
	Auth AuthConfig `yaml:"auth,omitempty"`

	// Observability configures tracing and metrics.
	Observability *observability.Config `yaml:"observability,omitempty"`
}

// ServerConfig configures the inbound HTTP listener.
type ServerConfig struct {
	// Host to bind to. Default: 0.0.0.0
	Host string `yaml:"host,omitempty"`

	// Port to listen on. Default: 8080, overridden by PORT.
	Port int `yaml:"port,omitempty"`
}

// Address returns the host:port bind address.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ClientConfig configures outbound HTTP behavior shared by all services.
type ClientConfig struct {
	// ConnectTimeout bounds connection establishment. Default: 10s
	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`

	// ReadTimeout bounds the whole call including body read. Default: 300s
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty"`

	// MaxRetries is the attempt budget per call. Default: 3
	MaxRetries int `yaml:"max_retries,omitempty"`

	// BaseDelay seeds the exponential retry backoff. Default: 300ms
	BaseDelay time.Duration `yaml:"base_delay,omitempty"`

	// MaxConnsPerHost caps the shared connection pool. Default: 10
	MaxConnsPerHost int `yaml:"max_conns_per_host,omitempty"`

	// BearerToken is attached to every outbound request when set.
	BearerToken string `yaml:"bearer_token,omitempty"`
}

// ServiceConfig configures one downstream service endpoint.
type ServiceConfig struct {
	// URL is the service base URL, e.g. http://obstruction:8081
	URL string `yaml:"url,omitempty"`

	// ReadTimeout overrides the client-wide read timeout for this service.
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty"`
}

// AuthConfig configures inbound authentication.
type AuthConfig struct {
	// Type is "token", "auth0" or "none". Default: none
	Type AuthType `yaml:"type,omitempty"`

	// Token is the shared secret for type "token".
	Token string `yaml:"token,omitempty"`

	// Auth0 holds OIDC settings for type "auth0".
	Auth0 *Auth0Config `yaml:"auth0,omitempty"`
}

// Auth0Config holds the OIDC issuer settings.
type Auth0Config struct {
	// Domain is the tenant domain, e.g. example.eu.auth0.com.
	Domain string `yaml:"domain,omitempty"`

	// Audience is the expected aud claim.
	Audience string `yaml:"audience,omitempty"`

	// Algorithms is the allowed signing algorithm set. Default: [RS256]
	Algorithms []string `yaml:"algorithms,omitempty"`
}

// JWKSURL returns the tenant's JWKS endpoint.
func (c *Auth0Config) JWKSURL() string {
	return fmt.Sprintf("https://%s/.well-known/jwks.json", c.Domain)
}

// Issuer returns the expected iss claim.
func (c *Auth0Config) Issuer() string {
	return fmt.Sprintf("https://%s/", c.Domain)
}

// New returns a Config built from defaults and environment only.
func New() (*Config, error) {
	cfg := &Config{}
	cfg.ApplyEnv()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays the closed environment variable set onto the config:
//
//	DEPLOYMENT_MODE           local | production
//	PORT                      inbound listen port
//	<SERVICE>_SERVICE_URL     per-service base URL override
//	AUTH_TYPE                 token | auth0 | none
//	API_TOKEN                 shared secret for token auth
//	AUTH0_DOMAIN              OIDC tenant domain
//	AUTH0_AUDIENCE            expected aud claim
//	AUTH0_ALGORITHMS          comma-separated signing algorithms
//
// Environment values win over file values.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("DEPLOYMENT_MODE"); v != "" {
		c.DeploymentMode = DeploymentMode(strings.ToLower(v))
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}

	for _, name := range ServiceNames {
		envKey := strings.ToUpper(name) + "_SERVICE_URL"
		v := os.Getenv(envKey)
		if v == "" {
			continue
		}
		if c.Services == nil {
			c.Services = make(map[string]*ServiceConfig)
		}
		if c.Services[name] == nil {
			c.Services[name] = &ServiceConfig{}
		}
		c.Services[name].URL = strings.TrimRight(v, "/")
	}

	if v := os.Getenv("AUTH_TYPE"); v != "" {
		c.Auth.Type = AuthType(strings.ToLower(v))
	}
	if v := os.Getenv("API_TOKEN"); v != "" {
		c.Auth.Token = v
		if c.Auth.Type == "" {
			c.Auth.Type = AuthTypeToken
		}
	}
	if v := os.Getenv("AUTH0_DOMAIN"); v != "" {
		if c.Auth.Auth0 == nil {
			c.Auth.Auth0 = &Auth0Config{}
		}
		c.Auth.Auth0.Domain = v
		if c.Auth.Type == "" {
			c.Auth.Type = AuthTypeAuth0
		}
	}
	if v := os.Getenv("AUTH0_AUDIENCE"); v != "" {
		if c.Auth.Auth0 == nil {
			c.Auth.Auth0 = &Auth0Config{}
		}
		c.Auth.Auth0.Audience = v
	}
	if v := os.Getenv("AUTH0_ALGORITHMS"); v != "" {
		if c.Auth.Auth0 == nil {
			c.Auth.Auth0 = &Auth0Config{}
		}
		var algs []string
		for _, alg := range strings.Split(v, ",") {
			if alg = strings.TrimSpace(alg); alg != "" {
				algs = append(algs, alg)
			}
		}
		c.Auth.Auth0.Algorithms = algs
	}
}

// SetDefaults fills unset fields with their defaults. In local mode every
// service without an explicit URL gets its well-known localhost port.
func (c *Config) SetDefaults() {
	if c.DeploymentMode == "" {
		c.DeploymentMode = ModeLocal
	}

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	if c.Client.ConnectTimeout == 0 {
		c.Client.ConnectTimeout = 10 * time.Second
	}
	if c.Client.ReadTimeout == 0 {
		c.Client.ReadTimeout = 300 * time.Second
	}
	if c.Client.MaxRetries == 0 {
		c.Client.MaxRetries = 3
	}
	if c.Client.BaseDelay == 0 {
		c.Client.BaseDelay = 300 * time.Millisecond
	}
	if c.Client.MaxConnsPerHost == 0 {
		c.Client.MaxConnsPerHost = 10
	}

	if c.Services == nil {
		c.Services = make(map[string]*ServiceConfig)
	}
	for _, name := range ServiceNames {
		if c.Services[name] == nil {
			c.Services[name] = &ServiceConfig{}
		}
		if c.Services[name].URL == "" && c.DeploymentMode == ModeLocal {
			c.Services[name].URL = fmt.Sprintf("http://localhost:%d", defaultLocalPorts[name])
		}
		c.Services[name].URL = strings.TrimRight(c.Services[name].URL, "/")
	}

	if c.Auth.Type == "" {
		c.Auth.Type = AuthTypeNone
	}
	if c.Auth.Auth0 != nil && len(c.Auth.Auth0.Algorithms) == 0 {
		c.Auth.Auth0.Algorithms = []string{"RS256"}
	}

	if c.Observability == nil {
		c.Observability = &observability.Config{}
	}
	c.Observability.SetDefaults()
}

// Validate checks the configuration for errors. Call after SetDefaults.
func (c *Config) Validate() error {
	switch c.DeploymentMode {
	case ModeLocal, ModeProduction:
	default:
		return fmt.Errorf("deployment_mode must be %q or %q, got %q", ModeLocal, ModeProduction, c.DeploymentMode)
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	if c.Client.ConnectTimeout <= 0 || c.Client.ReadTimeout <= 0 {
		return fmt.Errorf("client timeouts must be positive")
	}
	if c.Client.MaxRetries < 1 {
		return fmt.Errorf("client max_retries must be at least 1")
	}

	for _, name := range ServiceNames {
		svc := c.Services[name]
		if svc == nil || svc.URL == "" {
			return fmt.Errorf("no URL configured for the %s service (set %s_SERVICE_URL or services.%s.url)",
				name, strings.ToUpper(name), name)
		}
		if !strings.HasPrefix(svc.URL, "http://") && !strings.HasPrefix(svc.URL, "https://") {
			return fmt.Errorf("%s service URL %q must be http(s)", name, svc.URL)
		}
	}
	for name := range c.Services {
		if _, ok := defaultLocalPorts[name]; !ok {
			return fmt.Errorf("unknown service %q in services section", name)
		}
	}

	switch c.Auth.Type {
	case AuthTypeNone:
	case AuthTypeToken:
		if c.Auth.Token == "" {
			return fmt.Errorf("auth type %q requires a token (API_TOKEN or auth.token)", AuthTypeToken)
		}
	case AuthTypeAuth0:
		if c.Auth.Auth0 == nil || c.Auth.Auth0.Domain == "" || c.Auth.Auth0.Audience == "" {
			return fmt.Errorf("auth type %q requires AUTH0_DOMAIN and AUTH0_AUDIENCE", AuthTypeAuth0)
		}
	default:
		return fmt.Errorf("auth type must be %q, %q or %q, got %q",
			AuthTypeToken, AuthTypeAuth0, AuthTypeNone, c.Auth.Type)
	}

	if c.Observability != nil {
		if err := c.Observability.Validate(); err != nil {
			return fmt.Errorf("observability: %w", err)
		}
	}

	return nil
}

// IsLocal reports whether the gateway runs in local mode.
func (c *Config) IsLocal() bool {
	return c.DeploymentMode == ModeLocal
}

// ServiceURL returns the configured base URL for a service.
func (c *Config) ServiceURL(name string) string {
	if svc, ok := c.Services[name]; ok && svc != nil {
		return svc.URL
	}
	return ""
}

// ServiceReadTimeout returns the effective read timeout for a service.
func (c *Config) ServiceReadTimeout(name string) time.Duration {
	if svc, ok := c.Services[name]; ok && svc != nil && svc.ReadTimeout > 0 {
		return svc.ReadTimeout
	}
	return c.Client.ReadTimeout
}
