package ion

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// tokenResponse mirrors one token in the /v2/tokens JSON responses.
type tokenResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Token        string    `json:"token"`
	Scopes       []string  `json:"scopes"`
	AssetIDs     []int64   `json:"assetIds"`
	IsDefault    bool      `json:"isDefault"`
	DateAdded    time.Time `json:"dateAdded"`
	DateModified time.Time `json:"dateModified"`
	DateLastUsed time.Time `json:"dateLastUsed"`
}

// tokensListResponse wraps the items array from GET /v2/tokens.
type tokensListResponse struct {
	Items []tokenResponse `json:"items"`
}

// createTokenRequest is the POST /v2/tokens body. AssetIDs is omitted to
// grant access to every asset the account owns.
type createTokenRequest struct {
	Name     string   `json:"name"`
	Scopes   []string `json:"scopes"`
	AssetIDs []int64  `json:"assetIds,omitempty"`
}

func (t *tokenResponse) toToken() Token {
	return Token{
		ID:           t.ID,
		Name:         t.Name,
		Value:        t.Token,
		Scopes:       t.Scopes,
		AssetIDs:     t.AssetIDs,
		IsDefault:    t.IsDefault,
		DateAdded:    t.DateAdded,
		DateModified: t.DateModified,
		DateLastUsed: t.DateLastUsed,
	}
}

// Tokens returns every API token on the account, in server order.
func (c *Client) Tokens(ctx context.Context) ([]Token, error) {
	c.logger.Info("listing tokens")

	var lr tokensListResponse
	if err := c.getJSON(ctx, "/v2/tokens", &lr); err != nil {
		return nil, err
	}

	tokens := make([]Token, 0, len(lr.Items))
	for i := range lr.Items {
		tokens = append(tokens, lr.Items[i].toToken())
	}

	c.logger.Info("listed tokens",
		slog.Int("count", len(tokens)),
	)

	return tokens, nil
}

// CreateToken creates a token with the given name and scopes. assetIDs
// restricts it to specific assets; nil means all assets.
func (c *Client) CreateToken(ctx context.Context, name string, scopes []string, assetIDs []int64) (*Token, error) {
	c.logger.Info("creating token",
		slog.String("name", name),
		slog.Any("scopes", scopes),
	)

	body, err := json.Marshal(createTokenRequest{Name: name, Scopes: scopes, AssetIDs: assetIDs})
	if err != nil {
		return nil, fmt.Errorf("ion: encoding create token request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, "/v2/tokens", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, fmt.Errorf("ion: decoding create token response: %w", err)
	}

	if tr.ID == "" {
		return nil, ErrEmptyResponse
	}

	tok := tr.toToken()

	c.logger.Info("created token",
		slog.String("id", tok.ID),
		slog.String("name", tok.Name),
	)

	return &tok, nil
}
