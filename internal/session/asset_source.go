package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tonimelisma/ion-go/internal/async"
	"github.com/tonimelisma/ion-go/internal/ion"
)

// AssetSource is everything a renderer needs to stream one tileset, with an
// optional imagery overlay, using the session's asset access token.
type AssetSource struct {
	Tileset ion.Asset
	Imagery *ion.Asset // nil when no imagery was requested
	Token   string
}

// LookupAsset fetches one asset's details and calls done on the owning
// goroutine. The result is not cached.
func (s *Session) LookupAsset(id int64, done func(ion.Asset, error)) {
	if s.conn == nil {
		s.dispatcher.Post(func() { done(ion.Asset{}, ErrNotConnected) })
		return
	}

	conn := s.conn
	gen := s.generation

	s.metrics.FetchStarted(KindAssetDetail)

	async.Submit(s.dispatcher, KindAssetDetail.String(),
		func(ctx context.Context) (*ion.Asset, error) {
			return conn.Asset(ctx, id)
		},
		func(res async.Result[*ion.Asset]) {
			if s.stale(gen, KindAssetDetail) {
				done(ion.Asset{}, errConnectionChanged)
				return
			}

			if !res.OK() {
				s.metrics.FetchFailed(KindAssetDetail)
				done(ion.Asset{}, classify(KindAssetDetail, res.Err))

				return
			}

			if res.Value == nil {
				done(ion.Asset{}, classify(KindAssetDetail, ion.ErrEmptyResponse))
				return
			}

			done(*res.Value, nil)
		},
	)
}

// PrepareAssetSource resolves a tileset and, when imageryID is not
// negative, an imagery asset, then waits for the asset access token and
// calls done on the owning goroutine. A missing asset surfaces as an error
// wrapping ion.ErrNotFound.
func (s *Session) PrepareAssetSource(tilesetID, imageryID int64, done func(AssetSource, error)) {
	if s.conn == nil {
		s.dispatcher.Post(func() { done(AssetSource{}, ErrNotConnected) })
		return
	}

	conn := s.conn
	gen := s.generation

	s.metrics.FetchStarted(KindAssetDetail)
	s.logger.Debug("preparing asset source",
		slog.Int64("tileset_id", tilesetID),
		slog.Int64("imagery_id", imageryID),
	)

	async.Submit(s.dispatcher, "prepare-asset-source",
		func(ctx context.Context) (AssetSource, error) {
			tileset, err := conn.Asset(ctx, tilesetID)
			if err != nil {
				return AssetSource{}, fmt.Errorf("tileset %d: %w", tilesetID, err)
			}

			if tileset == nil {
				return AssetSource{}, fmt.Errorf("tileset %d: %w", tilesetID, ion.ErrEmptyResponse)
			}

			src := AssetSource{Tileset: *tileset}

			if imageryID >= 0 {
				imagery, err := conn.Asset(ctx, imageryID)
				if err != nil {
					return AssetSource{}, fmt.Errorf("imagery %d: %w", imageryID, err)
				}

				if imagery == nil {
					return AssetSource{}, fmt.Errorf("imagery %d: %w", imageryID, ion.ErrEmptyResponse)
				}

				src.Imagery = imagery
			}

			return src, nil
		},
		func(res async.Result[AssetSource]) {
			if s.stale(gen, KindAssetDetail) {
				done(AssetSource{}, errConnectionChanged)
				return
			}

			if !res.OK() {
				s.metrics.FetchFailed(KindAssetDetail)
				done(AssetSource{}, classify(KindAssetDetail, res.Err))

				return
			}

			s.withAssetAccessToken(func(tok ion.Token, err error) {
				if err != nil {
					done(AssetSource{}, err)
					return
				}

				src := res.Value
				src.Token = tok.Value
				done(src, nil)
			})
		},
	)
}

// withAssetAccessToken calls fn with the asset access token, immediately if
// it is Loaded, otherwise after the next AssetAccessTokenUpdated. A failed
// token list leaves the derived token queued without firing, so fn also
// completes with the list's error when TokensUpdated reports Failed and no
// derivation is in flight.
func (s *Session) withAssetAccessToken(fn func(ion.Token, error)) {
	if s.assetToken.loaded() {
		fn(s.assetToken.value, nil)
		return
	}

	var (
		tokenSub, listSub Subscription
		finished          bool
	)

	finish := func(tok ion.Token, err error) {
		if finished {
			return
		}

		finished = true
		tokenSub.Unsubscribe()
		listSub.Unsubscribe()
		fn(tok, err)
	}

	tokenSub = s.Events.AssetAccessTokenUpdated.Subscribe(func() {
		switch {
		case s.assetToken.loaded():
			finish(s.assetToken.value, nil)
		case s.assetToken.err != nil:
			finish(ion.Token{}, s.assetToken.err)
		default:
			finish(ion.Token{}, ErrNotConnected)
		}
	})

	listSub = s.Events.TokensUpdated.Subscribe(func() {
		if s.tokens.status() == Failed && !s.assetToken.loading {
			finish(ion.Token{}, s.tokens.err)
		}
	})

	s.RefreshAssetAccessToken()
}
