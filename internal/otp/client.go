package otp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/BTreeMap/ClinicIntake/internal/models"
)

// DefaultClientTimeout bounds every request made by Client.
const DefaultClientTimeout = 15 * time.Second

// Endpoint paths served by the intake API.
const (
	PathSendCode   = "/api/send-otp"
	PathVerifyCode = "/api/verify-otp"
)

// ClientOpts holds configuration options for Client.
type ClientOpts struct {
	Timeout    time.Duration
	HTTPClient *http.Client
}

// ClientOption defines a configuration option for Client.
type ClientOption func(*ClientOpts)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *ClientOpts) { o.Timeout = d }
}

// WithHTTPClient supplies the underlying client. A cookie jar is attached if
// it has none.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(o *ClientOpts) { o.HTTPClient = c }
}

// Client is the wizard side of the challenge. It keeps the credential cookie
// in a jar between SendCode and VerifyCode.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a Client talking to the intake API at baseURL.
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	cfg := ClientOpts{Timeout: DefaultClientTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("create cookie jar: %w", err)
		}
		hc.Jar = jar
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}, nil
}

// HTTPClient exposes the cookie-carrying client for other calls to the same server.
func (c *Client) HTTPClient() *http.Client { return c.http }

// BaseURL returns the server root without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// SendCode asks the server to issue a code to phone and/or email.
func (c *Client) SendCode(ctx context.Context, phone, email string) error {
	_, _, err := c.PostJSON(ctx, PathSendCode, models.SendCodeRequest{Phone: phone, Email: email}, nil)
	return err
}

// VerifyCode submits code. ErrCodeMismatch and ErrCodeNotFound are the
// user-recoverable outcomes; anything else wraps ErrTransport or is an *APIError.
func (c *Client) VerifyCode(ctx context.Context, code string) error {
	_, _, err := c.PostJSON(ctx, PathVerifyCode, models.VerifyCodeRequest{OTP: code}, nil)
	return err
}

// PostJSON posts body to path and decodes the envelope along with the status
// code. Non-2xx answers are returned as *APIError; network and decoding
// failures wrap ErrTransport.
func (c *Client) PostJSON(ctx context.Context, path string, body any, header http.Header) (*models.APIResponse, int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}
	var env models.APIResponse
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 300 {
			return nil, resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		}
		return nil, resp.StatusCode, fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Success {
		return &env, resp.StatusCode, &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}
	return &env, resp.StatusCode, nil
}
