package dropbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultAPIBaseURL     = "https://api.dropboxapi.com"
	defaultContentBaseURL = "https://content.dropboxapi.com"
)

// Client talks to the Dropbox HTTP API. It covers the two calls the relay
// needs: an identity check at startup and content uploads.
type Client struct {
	httpClient     *resty.Client
	apiBaseURL     string
	contentBaseURL string
}

// ClientOption customizes the Dropbox client.
type ClientOption func(*Client)

// NewClient builds a client from an access token.
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: resty.New().
			SetTimeout(30 * time.Second).
			SetAuthToken(token).
			SetHeader("User-Agent", "relaydrop/1.0"),
		apiBaseURL:     defaultAPIBaseURL,
		contentBaseURL: defaultContentBaseURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// WithBaseURLs overrides both endpoint hosts, primarily for tests.
func WithBaseURLs(apiBase, contentBase string) ClientOption {
	return func(c *Client) {
		if apiBase != "" {
			c.apiBaseURL = apiBase
		}
		if contentBase != "" {
			c.contentBaseURL = contentBase
		}
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.SetTimeout(timeout)
		}
	}
}

// Verify confirms the access token resolves to an account. Callers
// treat a failure here as fatal for the run.
func (c *Client) Verify(ctx context.Context) error {
	resp, err := c.httpClient.R().
		SetContext(ctx).
		Post(c.apiBaseURL + "/2/users/get_current_account")
	if err != nil {
		return fmt.Errorf("dropbox identity check: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("dropbox identity check: status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}

type uploadArg struct {
	Path       string `json:"path"`
	Mode       string `json:"mode"`
	Autorename bool   `json:"autorename"`
	Mute       bool   `json:"mute"`
}

// Upload writes data to remotePath with last-writer-wins semantics.
func (c *Client) Upload(ctx context.Context, remotePath string, data []byte) error {
	arg, err := json.Marshal(uploadArg{Path: remotePath, Mode: "overwrite"})
	if err != nil {
		return fmt.Errorf("dropbox upload arg: %w", err)
	}
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetHeader("Dropbox-API-Arg", string(arg)).
		SetBody(data).
		Post(c.contentBaseURL + "/2/files/upload")
	if err != nil {
		return fmt.Errorf("dropbox upload %s: %w", remotePath, err)
	}
	if resp.IsError() {
		return fmt.Errorf("dropbox upload %s: status %d: %s", remotePath, resp.StatusCode(), resp.String())
	}
	return nil
}
