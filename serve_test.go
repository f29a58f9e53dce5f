package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/ion-go/internal/config"
	"github.com/tonimelisma/ion-go/internal/ion"
	"github.com/tonimelisma/ion-go/internal/session"
	"github.com/tonimelisma/ion-go/internal/telemetry"
	"github.com/tonimelisma/ion-go/internal/tokenfile"
)

// stubConn answers every request immediately.
type stubConn struct {
	token string
}

func (c stubConn) AccessToken() string { return c.token }

func (c stubConn) Me(context.Context) (*ion.Profile, error) {
	if c.token != testAccessToken {
		return nil, &ion.APIError{StatusCode: http.StatusUnauthorized, Err: ion.ErrUnauthorized}
	}

	return &ion.Profile{ID: 1, Username: "alice"}, nil
}

func (c stubConn) Assets(context.Context) (*ion.Assets, error) {
	return &ion.Assets{Items: []ion.Asset{{ID: 1, Name: "Terrain"}}}, nil
}

func (c stubConn) Tokens(context.Context) ([]ion.Token, error) {
	return []ion.Token{{ID: "t1", Name: "ion-go (Created by ion-go)", Value: "secret"}}, nil
}

func (c stubConn) Asset(_ context.Context, id int64) (*ion.Asset, error) {
	return &ion.Asset{ID: id}, nil
}

func (c stubConn) CreateToken(context.Context, string, []string, []int64) (*ion.Token, error) {
	return nil, errors.New("unexpected create")
}

type stubConnector struct{}

func (stubConnector) Authorize(context.Context, func(string) error) (session.Connection, error) {
	return stubConn{token: testAccessToken}, nil
}

func (stubConnector) Resume(token string) session.Connection {
	return stubConn{token: token}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newStubSession builds an IonSession over stubConnector with the file
// credential store in a temporary data directory.
func newStubSession(t *testing.T, metrics session.Metrics) *IonSession {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "data"))

	cfg := config.DefaultConfig()
	cfg.Session.PumpInterval = "5ms"

	is, err := NewIonSession(context.Background(), cfg, quietLogger(), ionSessionOptions{
		Connector: stubConnector{},
		Metrics:   metrics,
	})
	require.NoError(t, err)
	t.Cleanup(is.Close)

	return is
}

func awaitCtx(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	return ctx
}

func TestSyncCredential_ResumesOnExternalLogin(t *testing.T) {
	is := newStubSession(t, nil)
	s := is.Session

	require.NoError(t, tokenfile.Save(is.CredentialPath, map[string]string{session.CredentialKey: testAccessToken}))

	syncCredential(s, quietLogger())
	assert.True(t, s.IsResuming())

	require.NoError(t, is.Await(awaitCtx(t), func() bool { return !s.IsResuming() }))
	assert.True(t, s.IsConnected())
}

func TestSyncCredential_DisconnectsOnExternalLogout(t *testing.T) {
	is := newStubSession(t, nil)
	s := is.Session

	require.NoError(t, tokenfile.Save(is.CredentialPath, map[string]string{session.CredentialKey: testAccessToken}))
	require.NoError(t, is.Resume(awaitCtx(t)))

	require.NoError(t, tokenfile.Save(is.CredentialPath, map[string]string{session.CredentialKey: ""}))

	syncCredential(s, quietLogger())
	assert.False(t, s.IsConnected())

	// The write-back of the empty credential is a no-op.
	syncCredential(s, quietLogger())
	assert.False(t, s.IsConnected())
	assert.False(t, s.IsResuming())
}

func TestSyncCredential_ReconnectsOnReplacedCredential(t *testing.T) {
	is := newStubSession(t, nil)
	s := is.Session

	require.NoError(t, tokenfile.Save(is.CredentialPath, map[string]string{session.CredentialKey: testAccessToken}))
	require.NoError(t, is.Resume(awaitCtx(t)))

	require.NoError(t, tokenfile.Save(is.CredentialPath, map[string]string{session.CredentialKey: "other-token"}))

	syncCredential(s, quietLogger())

	require.True(t, s.IsResuming())
	assert.Equal(t, "other-token", s.Connection().AccessToken())

	require.NoError(t, is.Await(awaitCtx(t), func() bool { return !s.IsResuming() }))

	// The stub rejects every token but the test one; the replacement stays
	// stored for the next login or resume.
	assert.False(t, s.IsConnected())
	assert.Equal(t, "other-token", s.ReadCredential())
}

func TestSyncCredential_NoCredentialNoop(t *testing.T) {
	is := newStubSession(t, nil)

	syncCredential(is.Session, quietLogger())

	assert.False(t, is.Session.IsConnected())
	assert.False(t, is.Session.IsResuming())
}

func TestServer_Endpoints(t *testing.T) {
	collector := telemetry.NewCollector()
	is := newStubSession(t, collector)

	srv := newServer(is, collector, quietLogger())
	defer srv.detach()

	hs := httptest.NewServer(srv.mux)
	defer hs.Close()

	resp, err := http.Get(hs.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	is.Session.Disconnect()

	resp, err = http.Get(hs.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "ion_go_dispatcher_tasks_in_flight")
	assert.Contains(t, string(body), `ion_go_session_notifications_total{event="ConnectionUpdated"} 1`)
}

func TestServerLoop_StopsOnCancel(t *testing.T) {
	collector := telemetry.NewCollector()
	is := newStubSession(t, collector)

	srv := newServer(is, collector, quietLogger())
	defer srv.detach()

	ctx, cancel := context.WithCancel(context.Background())
	hup := make(chan os.Signal, 1)
	reloaded := make(chan struct{}, 1)

	done := make(chan error, 1)
	go func() {
		done <- srv.loop(ctx, is, hup, func() { reloaded <- struct{}{} }, nil)
	}()

	hup <- os.Interrupt

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("reload not called")
	}

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestServerLoop_ReturnsServeError(t *testing.T) {
	collector := telemetry.NewCollector()
	is := newStubSession(t, collector)

	srv := newServer(is, collector, quietLogger())
	defer srv.detach()

	serveErr := make(chan error, 1)
	serveErr <- errors.New("address in use")

	err := srv.loop(context.Background(), is, nil, func() {}, serveErr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
}

func TestReloadConfig_AppliesLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlog_level = \"debug\"\n"), 0o600))

	lv := new(slog.LevelVar)
	cc := &CLIContext{Logger: quietLogger(), Level: lv}
	holder := config.NewHolder(config.DefaultConfig(), path)

	reloadConfig(holder, cc)
	assert.Equal(t, slog.LevelDebug, lv.Level())
	assert.Equal(t, "debug", holder.Config().Logging.LogLevel)

	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlog_level = \"loud\"\n"), 0o600))

	reloadConfig(holder, cc)
	assert.Equal(t, slog.LevelDebug, lv.Level())
	assert.Equal(t, "debug", holder.Config().Logging.LogLevel)
}

func TestReloadConfig_FlagsStillWin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[logging]\nlog_level = \"debug\"\n"), 0o600))

	lv := new(slog.LevelVar)
	cc := &CLIContext{Logger: quietLogger(), Level: lv, Flags: CLIFlags{Quiet: true}}

	reloadConfig(config.NewHolder(config.DefaultConfig(), path), cc)
	assert.Equal(t, slog.LevelError, lv.Level())
}
