package connect

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/telenordigital/connect-go/pkg/oauth2"
)

// RestClient performs a single request against the authorization
// server and returns the raw response body. Non-2xx responses are
// returned as *oauth2.Error with the HTTP status attached; transport
// failures pass through wrapped.
type RestClient interface {
	Perform(ctx context.Context, method, path string, params url.Values, headers http.Header) ([]byte, error)
}

type httpRestClient struct {
	base   string
	client *http.Client
}

// NewRestClient returns the default RestClient, resolving endpoint
// paths against the given base URL. POST parameters are sent
// form-encoded, GET parameters as the query string.
func NewRestClient(base string) RestClient {
	return &httpRestClient{
		base: base,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *httpRestClient) Perform(ctx context.Context, method, path string, params url.Values, headers http.Header) ([]byte, error) {
	endpoint, err := ResolveURL(c.base, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedURL, err)
	}

	var req *http.Request
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, endpoint.String(), strings.NewReader(params.Encode()))
		if err != nil {
			return nil, fmt.Errorf("unable to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		if len(params) > 0 {
			endpoint.RawQuery = params.Encode()
		}
		req, err = http.NewRequestWithContext(ctx, method, endpoint.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("unable to create request: %w", err)
		}
	}

	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read response body: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		oauthErr := &oauth2.Error{}
		if err := json.Unmarshal(body, oauthErr); err != nil || oauthErr.Code == "" {
			oauthErr.Code = fmt.Sprintf("http_%d", resp.StatusCode)
			oauthErr.Description = strings.TrimSpace(string(body))
		}
		oauthErr.StatusCode = resp.StatusCode
		return nil, oauthErr
	}

	return body, nil
}
