package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/ion-go/internal/config"
	"github.com/tonimelisma/ion-go/internal/session"
	"github.com/tonimelisma/ion-go/internal/tokenfile"
)

func TestIonSession_ResumeWithoutCredential(t *testing.T) {
	is := newStubSession(t, nil)

	require.ErrorIs(t, is.Resume(awaitCtx(t)), errNotLoggedIn)
}

func TestIonSession_ResumeRejected(t *testing.T) {
	is := newStubSession(t, nil)
	require.NoError(t, tokenfile.Save(is.CredentialPath, map[string]string{session.CredentialKey: "stale"}))

	err := is.Resume(awaitCtx(t))
	require.ErrorIs(t, err, session.ErrAuthFailure)
	assert.Contains(t, err.Error(), "verifying stored credential")
}

func TestIonSession_LoadResources(t *testing.T) {
	is := newStubSession(t, nil)
	s := is.Session
	require.NoError(t, tokenfile.Save(is.CredentialPath, map[string]string{session.CredentialKey: testAccessToken}))
	require.NoError(t, is.Resume(awaitCtx(t)))

	require.NoError(t, is.Load(awaitCtx(t), session.KindAssetList, func() { s.GetAssets() }))
	assert.Equal(t, "Terrain", s.GetAssets().Items[0].Name)

	require.NoError(t, is.Load(awaitCtx(t), session.KindAssetAccessToken, func() {}))
	assert.Equal(t, "secret", s.GetAssetAccessToken().Value)
}

func TestIonSession_LoadNotConnected(t *testing.T) {
	is := newStubSession(t, nil)

	err := is.Load(awaitCtx(t), session.KindProfile, func() { is.Session.GetProfile() })
	require.ErrorIs(t, err, session.ErrNotConnected)
}

func TestIonSession_AwaitHonorsContext(t *testing.T) {
	is := newStubSession(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, is.Await(ctx, func() bool { return false }), context.Canceled)
}

func TestOpenCredentialStore_SQLite(t *testing.T) {
	newStubSession(t, nil) // isolates the data directory

	cfg := newSQLiteConfig()

	store, path, closer, err := openCredentialStore(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	require.NotNil(t, closer)
	defer closer()

	assert.Empty(t, path)

	require.NoError(t, store.Set(session.CredentialKey, "abc"))

	got, err := store.Get(session.CredentialKey)
	require.NoError(t, err)
	assert.Equal(t, "abc", got)
}

func newSQLiteConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Session.CredentialStore = config.CredentialStoreSQLite

	return cfg
}
