// Package session is the client-side state layer for an ion account. A
// Session owns the connection lifecycle (interactive authorize, resume from
// a persisted credential, disconnect) and a cache of the account's profile,
// assets and tokens, plus the derived asset access token.
//
// Every exported method must be called from the goroutine that pumps the
// session's dispatcher. Remote calls run on dispatcher workers, and their
// results are applied by the owner during Pump, so state is never mutated
// concurrently and notifications always fire on the owning goroutine.
//
// Getters never block. A getter on a resource that is not Loaded returns a
// zero value and starts (or coalesces into) a refresh; observers learn about
// the outcome through the Events hub.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tonimelisma/ion-go/internal/async"
	"github.com/tonimelisma/ion-go/internal/ion"
)

// CredentialKey is the store key under which the access token is persisted.
const CredentialKey = "IonSession|AccessToken"

// DefaultTokenSuffix is appended to the project name to form the name of the
// API token the session looks up or creates for asset access.
const DefaultTokenSuffix = " (Created by ion-go)"

// DefaultAuthorizeTimeout bounds how long Connect waits for the user to
// finish the browser flow.
const DefaultAuthorizeTimeout = 5 * time.Minute

// assetReadScope is the only scope requested for the asset access token.
const assetReadScope = "assets:read"

// Metrics receives orchestrator counters. Implementations must be safe for
// use from the owning goroutine; the session never calls them concurrently.
type Metrics interface {
	FetchStarted(kind Kind)
	FetchCoalesced(kind Kind)
	FetchFailed(kind Kind)
	CompletionDiscarded(kind Kind)
}

type noopMetrics struct{}

func (noopMetrics) FetchStarted(Kind)        {}
func (noopMetrics) FetchCoalesced(Kind)      {}
func (noopMetrics) FetchFailed(Kind)         {}
func (noopMetrics) CompletionDiscarded(Kind) {}

// Options configures a Session. Connector, Store and Dispatcher are required.
type Options struct {
	Connector  Connector
	Store      CredentialStore
	Dispatcher *async.Dispatcher

	// OpenURL is called once per Connect with the authorization page URL.
	OpenURL func(string) error

	ProjectName      string
	TokenSuffix      string
	AuthorizeTimeout time.Duration

	Metrics Metrics
	Logger  *slog.Logger
}

// Session is the asynchronous ion session manager.
type Session struct {
	// Events fires on every observable state change.
	Events *Hub

	connector  Connector
	store      CredentialStore
	dispatcher *async.Dispatcher
	openURL    func(string) error
	metrics    Metrics
	logger     *slog.Logger

	tokenName        string
	authorizeTimeout time.Duration

	conn         Connection
	connecting   bool
	resuming     bool
	connErr      error
	authorizeURL string

	// generation is bumped on every connection change; completions issued
	// under an older generation are dropped.
	generation uint64

	profile    cached[ion.Profile]
	assets     cached[ion.Assets]
	tokens     cached[[]ion.Token]
	assetToken cached[ion.Token]
}

// New creates a disconnected Session.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metrics := opts.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	suffix := opts.TokenSuffix
	if suffix == "" {
		suffix = DefaultTokenSuffix
	}

	timeout := opts.AuthorizeTimeout
	if timeout <= 0 {
		timeout = DefaultAuthorizeTimeout
	}

	return &Session{
		Events:           newHub(),
		connector:        opts.Connector,
		store:            opts.Store,
		dispatcher:       opts.Dispatcher,
		openURL:          opts.OpenURL,
		metrics:          metrics,
		logger:           logger,
		tokenName:        opts.ProjectName + suffix,
		authorizeTimeout: timeout,
	}
}

// Dispatcher returns the dispatcher whose Pump applies this session's results.
func (s *Session) Dispatcher() *async.Dispatcher {
	return s.dispatcher
}

// TokenName returns the name of the API token used for asset access.
func (s *Session) TokenName() string {
	return s.tokenName
}

// IsConnected reports whether a connection is held. During Resume the
// connection is held optimistically before it has been verified.
func (s *Session) IsConnected() bool {
	return s.conn != nil
}

// IsConnecting reports whether an interactive authorize is in progress.
func (s *Session) IsConnecting() bool {
	return s.connecting
}

// IsResuming reports whether a stored credential is being verified.
func (s *Session) IsResuming() bool {
	return s.resuming
}

// Connection returns the held connection, or nil.
func (s *Session) Connection() Connection {
	return s.conn
}

// AuthorizeURL returns the URL handed to the opener by the most recent
// Connect, or "" when none has been issued.
func (s *Session) AuthorizeURL() string {
	return s.authorizeURL
}

// Connect starts the interactive authorization flow. It is a no-op while a
// connection is held or another Connect or Resume is in progress.
func (s *Session) Connect() {
	if s.connecting || s.resuming || s.conn != nil {
		s.logger.Debug("connect ignored",
			slog.Bool("connecting", s.connecting),
			slog.Bool("resuming", s.resuming),
			slog.Bool("connected", s.conn != nil),
		)

		return
	}

	s.connecting = true
	s.connErr = nil
	s.generation++
	gen := s.generation

	s.logger.Info("starting authorization")

	var once sync.Once

	open := func(url string) error {
		var err error

		once.Do(func() {
			s.dispatcher.Post(func() {
				if gen == s.generation {
					s.authorizeURL = url
				}
			})

			if s.openURL != nil {
				err = s.openURL(url)
			}
		})

		return err
	}

	timeout := s.authorizeTimeout

	async.Submit(s.dispatcher, "authorize",
		func(ctx context.Context) (Connection, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			return s.connector.Authorize(ctx, open)
		},
		func(res async.Result[Connection]) {
			if s.stale(gen, KindConnection) {
				return
			}

			s.connecting = false

			if !res.OK() || res.Value == nil {
				s.connErr = classify(KindConnection, res.Err)
				s.metrics.FetchFailed(KindConnection)
				s.logger.Warn("authorization failed", slog.String("error", errString(s.connErr)))
				s.Events.ConnectionUpdated.Fire()

				return
			}

			s.conn = res.Value
			s.logger.Info("authorization succeeded")
			s.SaveCredential(res.Value.AccessToken())
			s.RefreshAssetAccessToken()
			s.Events.ConnectionUpdated.Fire()
		},
	)
}

// Resume rebuilds the connection from the persisted credential and
// verifies it with a profile request. Without a stored credential it does
// nothing. The connection is held optimistically while verification runs.
func (s *Session) Resume() {
	if s.resuming {
		s.logger.Debug("resume ignored, already resuming")
		return
	}

	if s.connecting || s.conn != nil {
		s.logger.Debug("resume ignored, already connected or connecting")
		return
	}

	credential := s.ReadCredential()
	if credential == "" {
		s.logger.Info("no stored credential, staying disconnected")
		return
	}

	s.resuming = true
	s.connErr = nil
	s.generation++
	gen := s.generation

	conn := s.connector.Resume(credential)
	s.conn = conn

	s.logger.Info("verifying stored credential")

	async.Submit(s.dispatcher, "verify",
		func(ctx context.Context) (*ion.Profile, error) {
			return conn.Me(ctx)
		},
		func(res async.Result[*ion.Profile]) {
			if s.stale(gen, KindConnection) {
				return
			}

			s.resuming = false

			if !res.OK() || res.Value == nil {
				err := res.Err
				if err == nil {
					err = ion.ErrEmptyResponse
				}

				s.connErr = classify(KindConnection, err)
				s.metrics.FetchFailed(KindConnection)
				s.logger.Warn("stored credential rejected", slog.String("error", errString(s.connErr)))
				s.dropConnection()
				s.Events.ConnectionUpdated.Fire()

				return
			}

			s.logger.Info("stored credential verified", slog.String("username", res.Value.Username))
			s.RefreshAssetAccessToken()
			s.Events.ConnectionUpdated.Fire()
		},
	)
}

// Disconnect drops the connection, clears every cache, erases the stored
// credential and fires all five notifications. Results of requests still in
// flight are discarded when they arrive.
func (s *Session) Disconnect() {
	s.clear()
	s.SaveCredential("")

	s.logger.Info("disconnected")

	for _, sig := range s.Events.All() {
		sig.Fire()
	}
}

// Reconnect replaces the connection with one built from the stored
// credential, for when another process has written a different one. It
// clears state like Disconnect but keeps the credential, fires all five
// notifications, then resumes. Without a stored credential it behaves
// like Disconnect.
func (s *Session) Reconnect() {
	if s.ReadCredential() == "" {
		s.Disconnect()
		return
	}

	s.clear()

	s.logger.Info("reconnecting with stored credential")

	for _, sig := range s.Events.All() {
		sig.Fire()
	}

	s.Resume()
}

// clear resets the connection and every cache and invalidates requests in
// flight.
func (s *Session) clear() {
	s.generation++
	s.conn = nil
	s.connecting = false
	s.resuming = false
	s.connErr = nil
	s.authorizeURL = ""

	s.profile.reset()
	s.assets.reset()
	s.tokens.reset()
	s.assetToken.reset()
}

// dropConnection abandons a connection that failed verification. Resources
// fetched or being fetched through it are reset, and their signals fire.
func (s *Session) dropConnection() {
	s.generation++
	s.conn = nil

	changed := map[Kind]bool{
		KindProfile:          s.profile.reset(),
		KindAssetList:        s.assets.reset(),
		KindTokenList:        s.tokens.reset(),
		KindAssetAccessToken: s.assetToken.reset(),
	}

	for _, kind := range []Kind{KindProfile, KindAssetList, KindTokenList, KindAssetAccessToken} {
		if changed[kind] {
			s.Events.For(kind).Fire()
		}
	}
}

// stale reports whether a completion issued under gen must be dropped.
func (s *Session) stale(gen uint64, kind Kind) bool {
	if gen == s.generation {
		return false
	}

	s.metrics.CompletionDiscarded(kind)
	s.logger.Debug("discarding stale completion",
		slog.String("kind", kind.String()),
		slog.Uint64("issued_generation", gen),
		slog.Uint64("generation", s.generation),
	)

	return true
}

// SaveCredential persists token under CredentialKey. Store failures are
// logged, not returned.
func (s *Session) SaveCredential(token string) {
	if err := s.store.Set(CredentialKey, token); err != nil {
		s.logger.Warn("saving credential failed", slog.String("error", err.Error()))
	}
}

// ReadCredential returns the persisted access token, or "" when none is
// stored or the store cannot be read.
func (s *Session) ReadCredential() string {
	token, err := s.store.Get(CredentialKey)
	if err != nil {
		s.logger.Warn("reading credential failed", slog.String("error", err.Error()))
		return ""
	}

	return token
}

// LastError returns the classified error recorded for kind's most recent
// failure, or nil.
func (s *Session) LastError(kind Kind) error {
	switch kind {
	case KindConnection:
		return s.connErr
	case KindProfile:
		return s.profile.err
	case KindAssetList:
		return s.assets.err
	case KindTokenList:
		return s.tokens.err
	case KindAssetAccessToken:
		return s.assetToken.err
	default:
		return nil
	}
}

// Status returns the state of a cached resource kind.
func (s *Session) Status(kind Kind) State {
	switch kind {
	case KindProfile:
		return s.profile.status()
	case KindAssetList:
		return s.assets.status()
	case KindTokenList:
		return s.tokens.status()
	case KindAssetAccessToken:
		return s.assetToken.status()
	default:
		return NotLoaded
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}

	return err.Error()
}
