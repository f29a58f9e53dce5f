package session

import (
	"context"
	"log/slog"

	"github.com/tonimelisma/ion-go/internal/async"
	"github.com/tonimelisma/ion-go/internal/ion"
)

// refresh is the coalescing fetch shared by the directly fetched kinds.
// At most one fetch per kind is in flight; requests made while one is
// pending (or while disconnected) set the queued flag, and the queued
// request is issued once when the pending fetch completes.
func refresh[T any](
	s *Session,
	kind Kind,
	c *cached[T],
	fetch func(ctx context.Context, conn Connection) (T, error),
	again func(),
	after func(ok bool),
) {
	if s.conn == nil {
		c.queued = true
		return
	}

	if c.loading {
		c.queued = true
		s.metrics.FetchCoalesced(kind)

		return
	}

	c.loading = true
	c.queued = false

	conn := s.conn
	gen := s.generation

	s.metrics.FetchStarted(kind)
	s.logger.Debug("fetch started", slog.String("kind", kind.String()))

	async.Submit(s.dispatcher, kind.String(),
		func(ctx context.Context) (T, error) {
			return fetch(ctx, conn)
		},
		func(res async.Result[T]) {
			if s.stale(gen, kind) {
				return
			}

			c.loading = false

			if res.OK() {
				c.set(res.Value)
			} else {
				c.fail(classify(kind, res.Err))
				s.metrics.FetchFailed(kind)
				s.logger.Warn("fetch failed",
					slog.String("kind", kind.String()),
					slog.String("error", c.err.Error()),
				)
			}

			s.Events.For(kind).Fire()

			if c.queued {
				again()
			}

			if after != nil {
				after(res.OK())
			}
		},
	)
}

// RefreshProfile requests a fresh profile.
func (s *Session) RefreshProfile() {
	refresh(s, KindProfile, &s.profile,
		func(ctx context.Context, conn Connection) (ion.Profile, error) {
			p, err := conn.Me(ctx)
			if err != nil {
				return ion.Profile{}, err
			}

			if p == nil {
				return ion.Profile{}, ion.ErrEmptyResponse
			}

			return *p, nil
		},
		s.RefreshProfile, nil)
}

// RefreshAssets requests a fresh asset list.
func (s *Session) RefreshAssets() {
	refresh(s, KindAssetList, &s.assets,
		func(ctx context.Context, conn Connection) (ion.Assets, error) {
			a, err := conn.Assets(ctx)
			if err != nil {
				return ion.Assets{}, err
			}

			if a == nil {
				return ion.Assets{}, ion.ErrEmptyResponse
			}

			return *a, nil
		},
		s.RefreshAssets, nil)
}

// RefreshTokens requests a fresh token list. A successful completion also
// releases an asset access token refresh that was waiting on the list.
func (s *Session) RefreshTokens() {
	refresh(s, KindTokenList, &s.tokens,
		func(ctx context.Context, conn Connection) ([]ion.Token, error) {
			return conn.Tokens(ctx)
		},
		s.RefreshTokens,
		func(ok bool) {
			if ok && s.assetToken.queued && !s.assetToken.loading {
				s.RefreshAssetAccessToken()
			}
		})
}

// RefreshAssetAccessToken derives the asset access token: the last token in
// the token list whose name matches TokenName, or a newly created
// read-only token when none matches. Without a connection or a loaded token
// list, the request is queued and a token list refresh is started.
func (s *Session) RefreshAssetAccessToken() {
	c := &s.assetToken

	if c.loading {
		c.queued = true
		s.metrics.FetchCoalesced(KindAssetAccessToken)

		return
	}

	if s.conn == nil || !s.tokens.loaded() {
		c.queued = true
		s.RefreshTokens()

		return
	}

	c.loading = true
	c.queued = false

	gen := s.generation

	if tok, ok := findToken(s.tokens.value, s.tokenName); ok {
		s.logger.Debug("asset access token found in token list", slog.String("token_id", tok.ID))

		s.dispatcher.Post(func() {
			if s.stale(gen, KindAssetAccessToken) {
				return
			}

			s.adoptAssetToken(tok, nil)
		})

		return
	}

	conn := s.conn
	name := s.tokenName

	s.metrics.FetchStarted(KindAssetAccessToken)
	s.logger.Info("creating asset access token", slog.String("name", name))

	async.Submit(s.dispatcher, "create-token",
		func(ctx context.Context) (*ion.Token, error) {
			return conn.CreateToken(ctx, name, []string{assetReadScope}, nil)
		},
		func(res async.Result[*ion.Token]) {
			if s.stale(gen, KindAssetAccessToken) {
				return
			}

			if !res.OK() || res.Value == nil {
				err := res.Err
				if err == nil {
					err = ion.ErrEmptyResponse
				}

				s.metrics.FetchFailed(KindAssetAccessToken)
				s.adoptAssetToken(ion.Token{}, classify(KindAssetAccessToken, err))

				return
			}

			s.adoptAssetToken(*res.Value, nil)
		},
	)
}

// adoptAssetToken commits the derived token outcome, notifies, and on
// success refreshes the asset list the token grants access to. A queued
// request is already satisfied by a successful adoption.
func (s *Session) adoptAssetToken(tok ion.Token, err error) {
	c := &s.assetToken
	c.loading = false

	if err != nil {
		c.fail(err)
		s.logger.Warn("asset access token unavailable", slog.String("error", err.Error()))
	} else {
		c.set(tok)
		c.queued = false
	}

	s.Events.AssetAccessTokenUpdated.Fire()

	if err == nil {
		s.RefreshAssets()
		return
	}

	if c.queued {
		s.RefreshAssetAccessToken()
	}
}

// findToken returns the last token named name. When several share the
// name, the one listed last wins.
func findToken(tokens []ion.Token, name string) (ion.Token, bool) {
	var (
		found ion.Token
		ok    bool
	)

	for _, t := range tokens {
		if t.Name == name {
			found = t
			ok = true
		}
	}

	return found, ok
}

// RefreshProfileIfNeeded refreshes unless the profile is Loaded with no
// pending request. It reports whether the profile is Loaded.
func (s *Session) RefreshProfileIfNeeded() bool {
	if s.profile.queued || !s.profile.loaded() {
		s.RefreshProfile()
	}

	return s.profile.loaded()
}

// RefreshAssetsIfNeeded is RefreshProfileIfNeeded for the asset list.
func (s *Session) RefreshAssetsIfNeeded() bool {
	if s.assets.queued || !s.assets.loaded() {
		s.RefreshAssets()
	}

	return s.assets.loaded()
}

// RefreshTokensIfNeeded is RefreshProfileIfNeeded for the token list.
func (s *Session) RefreshTokensIfNeeded() bool {
	if s.tokens.queued || !s.tokens.loaded() {
		s.RefreshTokens()
	}

	return s.tokens.loaded()
}

// RefreshAssetAccessTokenIfNeeded is RefreshProfileIfNeeded for the asset
// access token.
func (s *Session) RefreshAssetAccessTokenIfNeeded() bool {
	if s.assetToken.queued || !s.assetToken.loaded() {
		s.RefreshAssetAccessToken()
	}

	return s.assetToken.loaded()
}
