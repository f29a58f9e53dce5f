package ion

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// assetResponse mirrors one asset in the ion JSON responses.
type assetResponse struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Attribution     string    `json:"attribution"`
	Type            string    `json:"type"`
	Bytes           int64     `json:"bytes"`
	Status          string    `json:"status"`
	PercentComplete int       `json:"percentComplete"`
	DateAdded       time.Time `json:"dateAdded"`
}

// assetsListResponse wraps the items array from GET /v1/assets.
type assetsListResponse struct {
	Items    []assetResponse `json:"items"`
	NextPage string          `json:"nextPage"`
}

func (a *assetResponse) toAsset() Asset {
	return Asset{
		ID:              a.ID,
		Name:            a.Name,
		Description:     a.Description,
		Attribution:     a.Attribution,
		Type:            a.Type,
		Bytes:           a.Bytes,
		Status:          a.Status,
		PercentComplete: a.PercentComplete,
		DateAdded:       a.DateAdded,
	}
}

// Assets returns the first page of assets visible to the account.
func (c *Client) Assets(ctx context.Context) (*Assets, error) {
	c.logger.Info("listing assets")

	var lr assetsListResponse
	if err := c.getJSON(ctx, "/v1/assets", &lr); err != nil {
		return nil, err
	}

	assets := &Assets{
		Items:    make([]Asset, 0, len(lr.Items)),
		NextPage: lr.NextPage,
	}

	for i := range lr.Items {
		assets.Items = append(assets.Items, lr.Items[i].toAsset())
	}

	c.logger.Info("listed assets",
		slog.Int("count", len(assets.Items)),
	)

	return assets, nil
}

// Asset returns a single asset by id.
func (c *Client) Asset(ctx context.Context, id int64) (*Asset, error) {
	c.logger.Info("fetching asset",
		slog.Int64("asset_id", id),
	)

	var ar assetResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/v1/assets/%d", id), &ar); err != nil {
		return nil, err
	}

	asset := ar.toAsset()

	return &asset, nil
}
