package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/BTreeMap/ClinicIntake/internal/models"
	"github.com/BTreeMap/ClinicIntake/internal/otp"
)

// Client talks to the intake server on behalf of one wizard session. It
// sends and verifies codes through the embedded otp.Client and shares its
// cookie jar for submission.
type Client struct {
	*otp.Client
}

// NewClient creates a Client for baseURL.
func NewClient(baseURL string, opts ...otp.ClientOption) (*Client, error) {
	c, err := otp.NewClient(baseURL, opts...)
	if err != nil {
		return nil, err
	}
	return &Client{Client: c}, nil
}

// SubmitForm posts answers and returns the submission id. Repeating a call
// with the same idempotencyKey returns the original id.
func (c *Client) SubmitForm(ctx context.Context, answers models.Answers, idempotencyKey string) (string, error) {
	header := http.Header{}
	if idempotencyKey != "" {
		header.Set(IdempotencyKeyHeader, idempotencyKey)
	}
	env, _, err := c.PostJSON(ctx, PathSubmitForm, answers, header)
	if err != nil {
		return "", err
	}
	result, ok := env.Result.(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("%w: submission response has no result", otp.ErrTransport)
	}
	id, _ := result["id"].(string)
	if id == "" {
		return "", fmt.Errorf("%w: submission response has no id", otp.ErrTransport)
	}
	return id, nil
}
