package client

import (
	"context"
	"errors"
	"net/http"
)

var errEmptyToken = errors.New("backend returned an empty access token")

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, creds LoginCredentials) (*AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/login", creds)
}

// Register creates an account and returns its bearer token.
func (c *Client) Register(ctx context.Context, creds RegisterCredentials) (*AuthResponse, error) {
	return c.authenticate(ctx, "/api/auth/register", creds)
}

func (c *Client) authenticate(ctx context.Context, path string, body any) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, errEmptyToken
	}
	return &resp, nil
}
