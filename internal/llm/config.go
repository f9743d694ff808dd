// Package llm calls an OpenAI-compatible chat-completions endpoint.
//
// A project's stored API settings are loosely keyed (the management UI has
// used both api_url and apiUrl, max_tokens and maxTokens). Settings.Config
// resolves them once into an immutable Config with a single Auth variant, so
// per-request code never probes optional keys.
package llm

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrMissingEndpoint is returned when no endpoint URL is configured.
var ErrMissingEndpoint = errors.New("api url is not configured")

// DefaultAuthHeader is the header used for the custom-token auth variant.
const DefaultAuthHeader = "X-Auth-Token"

// Auth is the credential attached to every request. Exactly one variant
// applies per Config: NoAuth, BearerAuth, HeaderAuth or RawAuth.
type Auth interface {
	// Apply sets the variant's header on h.
	Apply(h http.Header)
	// Kind names the variant for logs; it never includes the secret.
	Kind() string
	isAuth()
}

// NoAuth sends no credential.
type NoAuth struct{}

func (NoAuth) Apply(http.Header) {}
func (NoAuth) Kind() string      { return "none" }
func (NoAuth) isAuth()           {}

// BearerAuth sends "Authorization: Bearer <token>".
type BearerAuth struct {
	Token string
}

func (a BearerAuth) Apply(h http.Header) { h.Set("Authorization", "Bearer "+a.Token) }
func (BearerAuth) Kind() string          { return "bearer" }
func (BearerAuth) isAuth()               {}

// HeaderAuth sends a token in a custom header (X-Auth-Token by default).
type HeaderAuth struct {
	Name  string
	Value string
}

func (a HeaderAuth) Apply(h http.Header) {
	name := a.Name
	if name == "" {
		name = DefaultAuthHeader
	}
	h.Set(name, a.Value)
}
func (HeaderAuth) Kind() string { return "header" }
func (HeaderAuth) isAuth()      {}

// RawAuth sends the Authorization header value verbatim.
type RawAuth struct {
	Value string
}

func (a RawAuth) Apply(h http.Header) { h.Set("Authorization", a.Value) }
func (RawAuth) Kind() string          { return "raw" }
func (RawAuth) isAuth()               {}

// Defaults fill settings a project leaves unset.
type Defaults struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// StandardDefaults match what the management UI has always assumed.
var StandardDefaults = Defaults{
	Model:       "gpt-4",
	Temperature: 0.3,
	MaxTokens:   16384,
	Timeout:     30 * time.Second,
}

// Config is the resolved, immutable dispatch configuration for one run.
type Config struct {
	Endpoint    string
	Model       string
	Auth        Auth
	Temperature float64
	MaxTokens   int
	VerifyTLS   bool
	Timeout     time.Duration
}

// Validate checks that the config can be used to build a client.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return ErrMissingEndpoint
	}
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid api url %q: must be an absolute http(s) URL", c.Endpoint)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}

// Settings is the API configuration as stored on a project.
// Field names follow the management UI's JSON keys.
type Settings struct {
	APIURL        string   `json:"api_url,omitempty"`
	APIURLAlt     string   `json:"apiUrl,omitempty"`
	APIKey        string   `json:"apiKey,omitempty"`
	AuthToken     string   `json:"auth_token,omitempty"`
	Authorization string   `json:"authorization,omitempty"`
	ModelName     string   `json:"modelName,omitempty"`
	Temperature   *float64 `json:"temperature,omitempty"`
	MaxTokens     *int     `json:"max_tokens,omitempty"`
	MaxTokensAlt  *int     `json:"maxTokens,omitempty"`
	VerifySSL     *bool    `json:"verify_ssl,omitempty"`
	Timeout       *float64 `json:"timeout,omitempty"` // seconds
	RateLimit     *int     `json:"rate_limit,omitempty"`
}

// Endpoint returns the configured URL, accepting either key.
func (s Settings) Endpoint() string {
	if u := strings.TrimSpace(s.APIURL); u != "" {
		return u
	}
	return strings.TrimSpace(s.APIURLAlt)
}

// ResolveAuth picks the credential by fixed precedence:
// apiKey (bearer), then auth_token (X-Auth-Token), then authorization (raw).
func (s Settings) ResolveAuth() Auth {
	switch {
	case s.APIKey != "":
		return BearerAuth{Token: s.APIKey}
	case s.AuthToken != "":
		return HeaderAuth{Name: DefaultAuthHeader, Value: s.AuthToken}
	case s.Authorization != "":
		return RawAuth{Value: s.Authorization}
	default:
		return NoAuth{}
	}
}

// Config resolves the settings against d. It fails with ErrMissingEndpoint
// when no URL is set.
func (s Settings) Config(d Defaults) (Config, error) {
	cfg := Config{
		Endpoint:    s.Endpoint(),
		Model:       d.Model,
		Auth:        s.ResolveAuth(),
		Temperature: d.Temperature,
		MaxTokens:   d.MaxTokens,
		VerifyTLS:   true,
		Timeout:     d.Timeout,
	}
	if cfg.Endpoint == "" {
		return Config{}, ErrMissingEndpoint
	}

	if m := strings.TrimSpace(s.ModelName); m != "" {
		cfg.Model = m
	}
	if s.Temperature != nil {
		cfg.Temperature = *s.Temperature
	}
	if s.MaxTokens != nil && *s.MaxTokens > 0 {
		cfg.MaxTokens = *s.MaxTokens
	} else if s.MaxTokensAlt != nil && *s.MaxTokensAlt > 0 {
		cfg.MaxTokens = *s.MaxTokensAlt
	}
	if s.VerifySSL != nil {
		cfg.VerifyTLS = *s.VerifySSL
	}
	if s.Timeout != nil && *s.Timeout > 0 {
		cfg.Timeout = time.Duration(*s.Timeout * float64(time.Second))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
