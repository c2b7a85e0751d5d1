package connect

import (
	"encoding/json"
	"fmt"
	"net/http"
)

type DiscoveryDocument struct {
	Issuer                           string   `json:"issuer"`
	AuthorizationEndpoint            string   `json:"authorization_endpoint"`
	TokenEndpoint                    string   `json:"token_endpoint"`
	JwksURI                          string   `json:"jwks_uri"`
	UserinfoEndpoint                 string   `json:"userinfo_endpoint"`
	RevocationEndpoint               string   `json:"revocation_endpoint"`
	ResponseTypesSupported           []string `json:"response_types_supported"`
	IdTokenSigningAlgValuesSupported []string `json:"id_token_signing_alg_values_supported"`
}

func FetchDiscoveryDocument(url string) (*DiscoveryDocument, error) {
	resp, err := http.Get(url)
	if err != nil {
		return nil, fmt.Errorf("unable to get discovery document: %w", err)
	}
	defer resp.Body.Close()

	var doc DiscoveryDocument
	err = json.NewDecoder(resp.Body).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("unable to decode discovery document: %w", err)
	}

	return &doc, nil
}

// ApplyTo overrides the config's endpoints with the advertised ones.
// Endpoints the document does not advertise are left untouched.
func (d *DiscoveryDocument) ApplyTo(cfg *Config) {
	if d.AuthorizationEndpoint != "" {
		cfg.AuthorizationEndpoint = d.AuthorizationEndpoint
	}
	if d.TokenEndpoint != "" {
		cfg.TokenEndpoint = d.TokenEndpoint
	}
	if d.UserinfoEndpoint != "" {
		cfg.UserinfoEndpoint = d.UserinfoEndpoint
	}
	if d.RevocationEndpoint != "" {
		cfg.RevocationEndpoint = d.RevocationEndpoint
	}
	if d.JwksURI != "" && cfg.JwksURI == "" {
		cfg.JwksURI = d.JwksURI
	}
}
