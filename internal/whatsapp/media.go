package whatsapp

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// MediaFetcher resolves platform media identifiers into bytes. The two-step
// shape mirrors the platform API: an opaque identifier resolves to a
// short-lived URL, and the URL yields the payload.
type MediaFetcher interface {
	MediaURL(ctx context.Context, mediaID string) (string, error)
	Download(ctx context.Context, url string) ([]byte, error)
}

// Client talks to the WhatsApp Business (Graph) API for media resolution.
type Client struct {
	httpClient *resty.Client
	baseURL    string
}

// ClientOption customizes the media client.
type ClientOption func(*Client)

// NewClient builds a media client from a bearer token and API base URL.
func NewClient(accessToken, baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: resty.New().
			SetTimeout(30 * time.Second).
			SetAuthToken(accessToken).
			SetHeader("User-Agent", "relaydrop/1.0"),
		baseURL: baseURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// WithTimeout overrides the request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.SetTimeout(timeout)
		}
	}
}

type mediaResponse struct {
	URL string `json:"url"`
}

// MediaURL resolves a media identifier into its short-lived download URL.
func (c *Client) MediaURL(ctx context.Context, mediaID string) (string, error) {
	var media mediaResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetResult(&media).
		Get(fmt.Sprintf("%s/%s", c.baseURL, mediaID))
	if err != nil {
		return "", fmt.Errorf("resolve media %s: %w", mediaID, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("resolve media %s: status %d: %s", mediaID, resp.StatusCode(), resp.String())
	}
	if media.URL == "" {
		return "", fmt.Errorf("resolve media %s: response carried no url", mediaID)
	}
	return media.URL, nil
}

// Download fetches the media payload from a resolved URL.
func (c *Client) Download(ctx context.Context, url string) ([]byte, error) {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("download media: status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}
