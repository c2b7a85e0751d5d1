package connect

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Version is the module version reported to the authorization server
// via the telenordigital_sdk_version query parameter.
const Version = "go_0.1.0"

const (
	DefaultAuthorizationEndpoint = "/oauth/authorize"
	DefaultTokenEndpoint         = "/oauth/token"
	DefaultRevocationEndpoint    = "/oauth/revoke"
	DefaultUserinfoEndpoint      = "/oauth/userinfo"
)

// Config describes one CONNECT client. It is treated as immutable
// after construction: Client and AuthorizationFlow copy it by value so
// later mutation by the caller has no effect.
type Config struct {
	// Issuer is the base URL of the authorization server. Endpoint
	// paths are resolved against it.
	Issuer                string `yaml:"issuer" validate:"required,url"`
	AuthorizationEndpoint string `yaml:"authorization_endpoint"`
	TokenEndpoint         string `yaml:"token_endpoint"`
	RevocationEndpoint    string `yaml:"revocation_endpoint"`
	UserinfoEndpoint      string `yaml:"userinfo_endpoint"`

	ClientID     string       `yaml:"client_id" validate:"required"`
	ClientSecret SecretString `yaml:"client_secret"`

	// RedirectURI must match the redirect URI registered with the
	// authorization server exactly.
	RedirectURI string `yaml:"redirect_uri" validate:"required"`

	Scopes []string `yaml:"scopes"`

	// EssentialClaims are requested as essential userinfo claims via
	// the OIDC claims parameter. Duplicates are dropped on load.
	EssentialClaims []string `yaml:"essential_claims"`

	// ExtraParameters are appended to the authorization URL as-is,
	// e.g. prompt or ui_locales.
	ExtraParameters map[string]string `yaml:"extra_parameters"`

	// PublicClient controls whether this module exchanges the
	// authorization code itself (public client) or hands the raw code
	// to the caller's backend (confidential client). When unset, the
	// client is public iff no client secret is configured.
	PublicClient *bool `yaml:"public_client"`

	// OpenIDConnect enables identity handling: id tokens in token
	// responses are stored and exposed via IDTokenPayload. When
	// disabled, id tokens are dropped.
	OpenIDConnect bool `yaml:"openid_connect"`

	// AccountID keys the persisted session. Derived from the client
	// id when empty.
	AccountID string `yaml:"account_id"`

	// JwksURI enables signature verification of id tokens when set.
	JwksURI string `yaml:"jwks_uri"`

	// UseDiscovery populates the endpoints from the issuer's
	// .well-known/openid-configuration document.
	UseDiscovery bool `yaml:"use_discovery"`
}

// LoadConfig reads and validates a YAML config file. The client
// secret may alternatively be supplied via the CONNECT_CLIENT_SECRET
// environment variable.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unable to parse config file: %w", err)
	}

	if secret := os.Getenv("CONNECT_CLIENT_SECRET"); secret != "" {
		cfg.ClientSecret = NewSecretString(secret)
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Normalize applies endpoint defaults, deduplicates claims and
// validates the result.
func (c *Config) Normalize() error {
	if c.AuthorizationEndpoint == "" {
		c.AuthorizationEndpoint = DefaultAuthorizationEndpoint
	}
	if c.TokenEndpoint == "" {
		c.TokenEndpoint = DefaultTokenEndpoint
	}
	if c.RevocationEndpoint == "" {
		c.RevocationEndpoint = DefaultRevocationEndpoint
	}
	if c.UserinfoEndpoint == "" {
		c.UserinfoEndpoint = DefaultUserinfoEndpoint
	}

	c.EssentialClaims = dedupe(c.EssentialClaims)

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// IsPublicClient reports whether the module itself exchanges
// authorization codes for tokens.
func (c *Config) IsPublicClient() bool {
	if c.PublicClient != nil {
		return *c.PublicClient
	}
	return c.ClientSecret.IsEmpty()
}

// AccountKey is the session store key for this client.
func (c *Config) AccountKey() string {
	if c.AccountID != "" {
		return c.AccountID
	}
	return "default-" + c.ClientID
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
