package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bradleyfalzon/ghinstallation/v2"
)

// TokenSource supplies tokens for authenticated GitHub requests
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a personal access token
type StaticToken string

// Token returns the token itself
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("no GitHub token configured")
	}
	return string(t), nil
}

// AppAuth provides GitHub App installation authentication
type AppAuth struct {
	transport *ghinstallation.Transport
}

// NewAppAuth creates a GitHub App authenticator on top of base. A nil base
// uses http.DefaultTransport.
func NewAppAuth(base http.RoundTripper, appID int64, privateKey []byte, installationID int64) (*AppAuth, error) {
	if base == nil {
		base = http.DefaultTransport
	}
	transport, err := ghinstallation.New(base, appID, installationID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create GitHub App transport: %w", err)
	}
	return &AppAuth{transport: transport}, nil
}

// Token returns a valid installation access token.
// Tokens are refreshed by ghinstallation when expired.
func (a *AppAuth) Token(ctx context.Context) (string, error) {
	token, err := a.transport.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get installation token: %w", err)
	}
	return token, nil
}

// Transport returns an HTTP transport that authenticates as the installation
func (a *AppAuth) Transport() http.RoundTripper {
	return a.transport
}
