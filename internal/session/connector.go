package session

import (
	"context"

	"github.com/tonimelisma/ion-go/internal/ion"
)

// Connection is the authenticated remote handle the session issues
// requests through. *ion.Connection satisfies it.
type Connection interface {
	AccessToken() string
	Me(ctx context.Context) (*ion.Profile, error)
	Assets(ctx context.Context) (*ion.Assets, error)
	Tokens(ctx context.Context) ([]ion.Token, error)
	Asset(ctx context.Context, id int64) (*ion.Asset, error)
	CreateToken(ctx context.Context, name string, scopes []string, assetIDs []int64) (*ion.Token, error)
}

// Connector produces connections: interactively through a browser flow, or
// optimistically from a persisted credential.
type Connector interface {
	// Authorize runs the interactive flow, calling openURL exactly once with
	// the authorization page URL. It blocks until the flow finishes.
	Authorize(ctx context.Context, openURL func(string) error) (Connection, error)
	// Resume builds an unverified connection from a stored access token.
	Resume(accessToken string) Connection
}

// CredentialStore persists string values by key. Get returns "" for a
// missing key.
type CredentialStore interface {
	Get(key string) (string, error)
	Set(key, value string) error
}

// NewConnector adapts an ion.Authenticator to Connector.
func NewConnector(auth *ion.Authenticator) Connector {
	return ionConnector{auth: auth}
}

type ionConnector struct {
	auth *ion.Authenticator
}

func (c ionConnector) Authorize(ctx context.Context, openURL func(string) error) (Connection, error) {
	conn, err := c.auth.Authorize(ctx, openURL)
	if err != nil {
		return nil, err
	}

	return conn, nil
}

func (c ionConnector) Resume(accessToken string) Connection {
	return c.auth.Resume(accessToken)
}
