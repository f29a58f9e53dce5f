package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tonimelisma/ion-go/internal/async"
	"github.com/tonimelisma/ion-go/internal/config"
	"github.com/tonimelisma/ion-go/internal/ion"
	"github.com/tonimelisma/ion-go/internal/session"
	"github.com/tonimelisma/ion-go/internal/settings"
	"github.com/tonimelisma/ion-go/internal/tokenfile"
)

// dataDirPermissions is used when creating the directory holding the
// settings database.
const dataDirPermissions = 0o700

// closeTimeout bounds how long Close waits for in-flight requests.
const closeTimeout = 5 * time.Second

// errNotLoggedIn is returned by commands that need a stored credential.
var errNotLoggedIn = errors.New("not logged in, run 'ion-go login' first")

// IonSession bundles a session with the dispatcher that applies its results
// and the credential store behind it. Every method must be called from the
// goroutine that created it.
type IonSession struct {
	Session    *session.Session
	Dispatcher *async.Dispatcher

	// CredentialPath is the token file the session persists to, or "" when
	// the credential lives in the settings database.
	CredentialPath string

	pump   time.Duration
	logger *slog.Logger
	closer func() error
}

// ionSessionOptions are the per-command knobs of NewIonSession.
type ionSessionOptions struct {
	Connector session.Connector
	OpenURL   func(string) error
	Metrics   session.Metrics
}

// NewIonSession builds a disconnected session from resolved config. A nil
// opts.Connector talks to the configured ion deployment.
func NewIonSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ionSessionOptions) (*IonSession, error) {
	pump, connect, data := cfg.Durations()

	store, credPath, closer, err := openCredentialStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	connector := opts.Connector
	if connector == nil {
		connector = session.NewConnector(newAuthenticator(cfg, newHTTPClient(connect, data), logger))
	}

	d := async.NewDispatcher(int64(cfg.Session.MaxConcurrentRequests), logger)

	s := session.New(session.Options{
		Connector:   connector,
		Store:       store,
		Dispatcher:  d,
		OpenURL:     opts.OpenURL,
		ProjectName: cfg.Ion.ProjectName,
		TokenSuffix: cfg.Ion.TokenSuffix,
		Metrics:     opts.Metrics,
		Logger:      logger,
	})

	return &IonSession{
		Session:        s,
		Dispatcher:     d,
		CredentialPath: credPath,
		pump:           pump,
		logger:         logger,
		closer:         closer,
	}, nil
}

// Await pumps the dispatcher until done reports true or ctx ends.
func (is *IonSession) Await(ctx context.Context, done func() bool) error {
	return is.Dispatcher.PumpUntil(ctx, is.pump, done)
}

// Resume restores the stored credential and waits for its verification.
// It returns errNotLoggedIn when nothing is stored and the classified
// failure when the credential was rejected.
func (is *IonSession) Resume(ctx context.Context) error {
	s := is.Session

	if s.ReadCredential() == "" {
		return errNotLoggedIn
	}

	s.Resume()

	if err := is.Await(ctx, func() bool { return !s.IsResuming() }); err != nil {
		return err
	}

	if !s.IsConnected() {
		if err := s.LastError(session.KindConnection); err != nil {
			return fmt.Errorf("verifying stored credential: %w", err)
		}

		return errNotLoggedIn
	}

	return nil
}

// Load triggers kind through get and pumps until it settles. The returned
// error is the classified failure recorded on the resource.
func (is *IonSession) Load(ctx context.Context, kind session.Kind, get func()) error {
	s := is.Session

	get()

	settled := func() bool {
		switch {
		case !s.IsConnected():
			return true
		case s.Status(kind) == session.Loaded || s.Status(kind) == session.Failed:
			return true
		// The derived token waits on the token list and never starts if
		// that fails.
		case kind == session.KindAssetAccessToken && s.Status(session.KindTokenList) == session.Failed:
			return true
		}

		return false
	}

	if err := is.Await(ctx, settled); err != nil {
		return err
	}

	if !s.IsConnected() {
		return session.ErrNotConnected
	}

	if s.Status(kind) == session.Loaded {
		return nil
	}

	if err := s.LastError(kind); err != nil {
		return err
	}

	return s.LastError(session.KindTokenList)
}

// Close stops the dispatcher, applies completions that already arrived and
// releases the credential store.
func (is *IonSession) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if err := is.Dispatcher.Close(ctx); err != nil {
		is.logger.Warn("dispatcher did not drain", slog.String("error", err.Error()))
	}

	is.Dispatcher.Pump()

	if is.closer != nil {
		if err := is.closer(); err != nil {
			is.logger.Warn("closing credential store", slog.String("error", err.Error()))
		}
	}
}

// openCredentialStore returns the configured credential backend, the token
// file path for the file backend, and an optional close function.
func openCredentialStore(
	ctx context.Context, cfg *config.Config, logger *slog.Logger,
) (session.CredentialStore, string, func() error, error) {
	switch cfg.Session.CredentialStore {
	case config.CredentialStoreSQLite:
		path := config.SettingsDBPath()
		if path == "" {
			return nil, "", nil, fmt.Errorf("cannot determine data directory for %s", config.CredentialStoreSQLite)
		}

		if err := os.MkdirAll(filepath.Dir(path), dataDirPermissions); err != nil {
			return nil, "", nil, fmt.Errorf("creating data directory: %w", err)
		}

		st, err := settings.Open(ctx, path, logger)
		if err != nil {
			return nil, "", nil, err
		}

		return st, "", st.Close, nil
	default:
		path := config.CredentialFilePath()
		if path == "" {
			return nil, "", nil, fmt.Errorf("cannot determine data directory for %s", config.CredentialStoreFile)
		}

		return tokenfile.NewStore(path, logger), path, nil, nil
	}
}

// newAuthenticator maps the [ion] and [network] sections onto the OAuth
// client and the REST client it hands out.
func newAuthenticator(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) *ion.Authenticator {
	return ion.NewAuthenticator(ion.AuthConfig{
		ClientName:        cfg.Ion.ProjectName,
		ClientID:          cfg.Ion.ClientID,
		AuthorizeURL:      cfg.Ion.AuthorizeURL,
		TokenURL:          cfg.Ion.TokenURL,
		APIURL:            cfg.Ion.APIURL,
		RedirectPath:      cfg.Ion.RedirectPath,
		Scopes:            cfg.Ion.Scopes,
		UserAgent:         cfg.Network.UserAgent,
		RequestsPerSecond: cfg.Network.RequestsPerSecond,
	}, httpClient, logger)
}

// newHTTPClient bounds connection setup by connect and waiting for response
// headers by data. There is no overall timeout: the dispatcher's context
// cancels requests on shutdown.
func newHTTPClient(connect, data time.Duration) *http.Client {
	dialer := &net.Dialer{Timeout: connect, KeepAlive: 30 * time.Second}

	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			DialContext:           dialer.DialContext,
			ForceAttemptHTTP2:     true,
			TLSHandshakeTimeout:   connect,
			ResponseHeaderTimeout: data,
			IdleConnTimeout:       90 * time.Second,
			MaxIdleConnsPerHost:   4,
		},
	}
}
