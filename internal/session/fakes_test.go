package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/ion-go/internal/async"
	"github.com/tonimelisma/ion-go/internal/ion"
)

const testProject = "Unit Test"

// fakeConn is a scripted Connection. Methods named in gates block until the
// gate is closed (or the context ends).
type fakeConn struct {
	accessToken string

	mu          sync.Mutex
	calls       map[string]int
	gates       map[string]chan struct{}
	profile     *ion.Profile
	meErr       error
	assets      *ion.Assets
	assetsErr   error
	tokens      []ion.Token
	tokensErr   error
	created     *ion.Token
	createErr   error
	createCalls []createCall
	byID        map[int64]ion.Asset
	nilAsset    bool
}

type createCall struct {
	name     string
	scopes   []string
	assetIDs []int64
}

func newFakeConn(accessToken string) *fakeConn {
	return &fakeConn{
		accessToken: accessToken,
		calls:       make(map[string]int),
		gates:       make(map[string]chan struct{}),
		profile:     &ion.Profile{ID: 7, Username: "ada"},
		assets:      &ion.Assets{Items: []ion.Asset{{ID: 1, Name: "terrain"}}},
		created:     &ion.Token{ID: "new", Name: testProject + DefaultTokenSuffix, Value: "created-token"},
		byID:        make(map[int64]ion.Asset),
	}
}

func (f *fakeConn) gate(method string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan struct{})
	f.gates[method] = ch

	return ch
}

func (f *fakeConn) enter(ctx context.Context, method string) error {
	f.mu.Lock()
	f.calls[method]++
	ch := f.gates[method]
	f.mu.Unlock()

	if ch == nil {
		return nil
	}

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeConn) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[method]
}

func (f *fakeConn) set(fn func(f *fakeConn)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fn(f)
}

func (f *fakeConn) AccessToken() string { return f.accessToken }

func (f *fakeConn) Me(ctx context.Context) (*ion.Profile, error) {
	if err := f.enter(ctx, "me"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.profile, f.meErr
}

func (f *fakeConn) Assets(ctx context.Context) (*ion.Assets, error) {
	if err := f.enter(ctx, "assets"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.assets, f.assetsErr
}

func (f *fakeConn) Tokens(ctx context.Context) ([]ion.Token, error) {
	if err := f.enter(ctx, "tokens"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.tokens, f.tokensErr
}

func (f *fakeConn) Asset(ctx context.Context, id int64) (*ion.Asset, error) {
	if err := f.enter(ctx, "asset"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.nilAsset {
		return nil, nil
	}

	a, ok := f.byID[id]
	if !ok {
		return nil, &ion.APIError{StatusCode: 404, Message: "not found", Err: ion.ErrNotFound}
	}

	return &a, nil
}

func (f *fakeConn) CreateToken(ctx context.Context, name string, scopes []string, assetIDs []int64) (*ion.Token, error) {
	if err := f.enter(ctx, "create"); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCalls = append(f.createCalls, createCall{name: name, scopes: scopes, assetIDs: assetIDs})

	if f.createErr != nil {
		return nil, f.createErr
	}

	return f.created, nil
}

// fakeConnector hands out a fixed connection.
type fakeConnector struct {
	conn *fakeConn

	mu           sync.Mutex
	authorizeErr error
	authorizeURL string
	authorizes   int
	resumed      []string
}

func (c *fakeConnector) Authorize(_ context.Context, openURL func(string) error) (Connection, error) {
	c.mu.Lock()
	c.authorizes++
	err := c.authorizeErr
	url := c.authorizeURL
	c.mu.Unlock()

	if url == "" {
		url = "https://ion.example/oauth?state=x"
	}

	if openErr := openURL(url); openErr != nil {
		return nil, openErr
	}

	if err != nil {
		return nil, err
	}

	return c.conn, nil
}

func (c *fakeConnector) Resume(accessToken string) Connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resumed = append(c.resumed, accessToken)

	return c.conn
}

// memStore is an in-memory CredentialStore.
type memStore struct {
	mu     sync.Mutex
	values map[string]string
	getErr error
	setErr error
	sets   int
}

func newMemStore() *memStore {
	return &memStore{values: make(map[string]string)}
}

func (m *memStore) Get(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return "", m.getErr
	}

	return m.values[key], nil
}

func (m *memStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sets++

	if m.setErr != nil {
		return m.setErr
	}

	m.values[key] = value

	return nil
}

// countingMetrics records orchestrator counters.
type countingMetrics struct {
	started, coalesced, failed, discarded map[Kind]int
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{
		started:   make(map[Kind]int),
		coalesced: make(map[Kind]int),
		failed:    make(map[Kind]int),
		discarded: make(map[Kind]int),
	}
}

func (m *countingMetrics) FetchStarted(k Kind)        { m.started[k]++ }
func (m *countingMetrics) FetchCoalesced(k Kind)      { m.coalesced[k]++ }
func (m *countingMetrics) FetchFailed(k Kind)         { m.failed[k]++ }
func (m *countingMetrics) CompletionDiscarded(k Kind) { m.discarded[k]++ }

// harness bundles a session with its fakes and a per-event fire counter.
type harness struct {
	s         *Session
	conn      *fakeConn
	connector *fakeConnector
	store     *memStore
	metrics   *countingMetrics
	fired     map[string]int
	opened    *openRecorder
}

type openRecorder struct {
	mu   sync.Mutex
	urls []string
	err  error
}

func (o *openRecorder) open(url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.urls = append(o.urls, url)

	return o.err
}

func (o *openRecorder) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.urls)
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	d := async.NewDispatcher(4, slog.Default())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d.Close(ctx)
	})

	conn := newFakeConn("access-token")
	h := &harness{
		conn:      conn,
		connector: &fakeConnector{conn: conn},
		store:     newMemStore(),
		metrics:   newCountingMetrics(),
		fired:     make(map[string]int),
		opened:    &openRecorder{},
	}

	h.s = New(Options{
		Connector:   h.connector,
		Store:       h.store,
		Dispatcher:  d,
		OpenURL:     h.opened.open,
		ProjectName: testProject,
		Metrics:     h.metrics,
		Logger:      slog.Default(),
	})

	for _, sig := range h.s.Events.All() {
		name := sig.Name()
		sig.Subscribe(func() { h.fired[name]++ })
	}

	return h
}

// settle pumps until no task is in flight and no continuation is pending.
func (h *harness) settle(t *testing.T) {
	t.Helper()

	h.pumpUntil(t, h.s.Dispatcher().Idle)
}

func (h *harness) pumpUntil(t *testing.T, done func() bool) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, h.s.Dispatcher().PumpUntil(ctx, time.Millisecond, done))
}

// connect runs a successful interactive connect to completion and clears
// the fire counters.
func (h *harness) connect(t *testing.T) {
	t.Helper()

	h.s.Connect()
	h.settle(t)
	require.True(t, h.s.IsConnected())

	h.resetFired()
}

func (h *harness) resetFired() {
	for k := range h.fired {
		delete(h.fired, k)
	}
}

var errBoom = errors.New("boom")
