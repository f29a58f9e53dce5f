package ion

import (
	"context"
	"log/slog"
)

// profileResponse mirrors the /v1/me JSON response.
// Unexported; callers use Profile via toProfile() normalization.
type profileResponse struct {
	ID            int64  `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	Avatar        string `json:"avatar"`
	Storage       *struct {
		Used  int64 `json:"used"`
		Total int64 `json:"total"`
	} `json:"storage"`
}

func (p *profileResponse) toProfile() Profile {
	profile := Profile{
		ID:            p.ID,
		Username:      p.Username,
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		AvatarURL:     p.Avatar,
	}

	if p.Storage != nil {
		profile.StorageUsed = p.Storage.Used
		profile.StorageTotal = p.Storage.Total
	}

	return profile
}

// Me returns the authenticated account's profile. A response without an
// account id yields ErrEmptyResponse, which is how a revoked credential that
// still gets a 2xx shows up.
func (c *Client) Me(ctx context.Context) (*Profile, error) {
	c.logger.Info("fetching authenticated profile")

	var pr profileResponse
	if err := c.getJSON(ctx, "/v1/me", &pr); err != nil {
		return nil, err
	}

	if pr.ID == 0 && pr.Username == "" {
		return nil, ErrEmptyResponse
	}

	profile := pr.toProfile()

	c.logger.Debug("fetched profile",
		slog.Int64("id", profile.ID),
		slog.String("username", profile.Username),
	)

	return &profile, nil
}
