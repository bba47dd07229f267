package goldapi

import (
	"errors"
	"net/http"
	"net/url"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=goldapi_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// GoldAPIClient is a client for the GoldAPI.io spot price API.
type GoldAPIClient struct {
	// baseURL is the base URL for the API.
	baseURL string
	// token is the access token sent with each request.
	token string
	// httpClient is the HTTP httpClient.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// query contains additional query parameters to be sent with each request.
	query url.Values
}

// GoldAPIClientOption is a configuration option for the GoldAPI client.
type GoldAPIClientOption func(*GoldAPIClient)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) GoldAPIClientOption {
	return func(c *GoldAPIClient) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient HTTPClient) GoldAPIClientOption {
	return func(c *GoldAPIClient) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) GoldAPIClientOption {
	return func(c *GoldAPIClient) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithQuery sets additional query parameters to be sent with each request.
func WithQuery(query url.Values) GoldAPIClientOption {
	return func(c *GoldAPIClient) {
		for key, values := range query {
			for _, value := range values {
				c.query.Add(key, value)
			}
		}
	}
}

// NewGoldAPIClient creates a new GoldAPI client.
func NewGoldAPIClient(token string, opts ...GoldAPIClientOption) (*GoldAPIClient, error) {
	if token == "" {
		return nil, errors.New("goldapi: missing access token")
	}

	client := &GoldAPIClient{
		baseURL:    "https://www.goldapi.io/api",
		token:      token,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}
