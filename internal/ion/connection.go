package ion

import "context"

// Connection is an authenticated handle to the ion API. It is safe for
// concurrent use; every method blocks until the request completes.
type Connection struct {
	client      *Client
	accessToken string
}

// AccessToken returns the OAuth access token backing the connection.
func (c *Connection) AccessToken() string {
	return c.accessToken
}

// Client returns the underlying API client.
func (c *Connection) Client() *Client {
	return c.client
}

// Me returns the authenticated account's profile.
func (c *Connection) Me(ctx context.Context) (*Profile, error) {
	return c.client.Me(ctx)
}

// Assets returns the account's asset list.
func (c *Connection) Assets(ctx context.Context) (*Assets, error) {
	return c.client.Assets(ctx)
}

// Tokens returns the account's API tokens.
func (c *Connection) Tokens(ctx context.Context) ([]Token, error) {
	return c.client.Tokens(ctx)
}

// Asset returns one asset's details.
func (c *Connection) Asset(ctx context.Context, id int64) (*Asset, error) {
	return c.client.Asset(ctx, id)
}

// CreateToken creates an API token.
func (c *Connection) CreateToken(ctx context.Context, name string, scopes []string, assetIDs []int64) (*Token, error) {
	return c.client.CreateToken(ctx, name, scopes, assetIDs)
}
