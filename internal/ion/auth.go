package ion

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// Default OAuth2 endpoints and client registration.
const (
	DefaultAuthorizeURL = "https://ion.cesium.com/oauth"
	DefaultTokenURL     = "https://api.cesium.com/oauth/token"
	DefaultClientID     = "190"
	DefaultRedirectPath = "/ion-go/oauth2/callback"
)

// DefaultScopes are the scopes requested by Authorize.
var DefaultScopes = []string{
	"assets:list",
	"assets:read",
	"profile:read",
	"tokens:read",
	"tokens:write",
	"geocode",
}

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// AuthConfig describes the OAuth2 client and the API the resulting
// connection talks to.
type AuthConfig struct {
	ClientName   string
	ClientID     string
	AuthorizeURL string
	TokenURL     string
	APIURL       string
	RedirectPath string
	Scopes       []string
	UserAgent    string

	// RequestsPerSecond caps each Connection's request rate. Zero disables.
	RequestsPerSecond float64
}

// withDefaults fills empty fields with the production defaults.
func (c AuthConfig) withDefaults() AuthConfig {
	if c.ClientID == "" {
		c.ClientID = DefaultClientID
	}

	if c.AuthorizeURL == "" {
		c.AuthorizeURL = DefaultAuthorizeURL
	}

	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}

	if c.APIURL == "" {
		c.APIURL = DefaultAPIURL
	}

	if c.RedirectPath == "" {
		c.RedirectPath = DefaultRedirectPath
	}

	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes
	}

	return c
}

// callbackResult carries the authorization code or error from the callback handler.
type callbackResult struct {
	code string
	err  error
}

// Authenticator produces Connections, either interactively through the
// browser or from a stored access token.
type Authenticator struct {
	cfg        AuthConfig
	httpClient *http.Client
	logger     *slog.Logger
}

// NewAuthenticator creates an Authenticator. A nil httpClient uses
// http.DefaultClient for both the token exchange and API calls.
func NewAuthenticator(cfg AuthConfig, httpClient *http.Client, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Authenticator{
		cfg:        cfg.withDefaults(),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Authorize performs the authorization code + PKCE flow:
//  1. Binds a localhost HTTP server on a random port
//  2. Calls openURL with the authorization URL, exactly once
//  3. Receives the callback with the authorization code
//  4. Exchanges the code for an access token using PKCE
//  5. Returns a Connection bound to that token
//
// Authorize blocks until the callback arrives or ctx is canceled; callers that
// must not block run it through a dispatcher. Persisting the token is the
// caller's job.
func (a *Authenticator) Authorize(ctx context.Context, openURL func(string) error) (*Connection, error) {
	a.logger.Info("starting browser authorization (authorization code + PKCE)",
		slog.String("client", a.cfg.ClientName),
	)

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()

	srv, port, err := startCallbackServer(ctx, mux, resultCh, a.logger)
	if err != nil {
		return nil, err
	}

	defer shutdownCallbackServer(srv, a.logger)

	cfg := a.oauthConfig(fmt.Sprintf("http://127.0.0.1:%d%s", port, a.cfg.RedirectPath))
	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("ion: generating state token: %w", err)
	}

	registerCallbackHandler(mux, a.cfg.RedirectPath, state, resultCh)

	authURL := cfg.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	a.logger.Info("opening browser for authorization")

	if openErr := openURL(authURL); openErr != nil {
		// The URL is still valid; the user can open it by hand.
		a.logger.Warn("failed to open browser",
			slog.String("error", openErr.Error()),
		)
	}

	code, err := waitForCallback(ctx, resultCh)
	if err != nil {
		return nil, err
	}

	a.logger.Info("received authorization code, exchanging for token")

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)

	tok, err := cfg.Exchange(exchangeCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("ion: token exchange failed: %w", err)
	}

	a.logger.Info("authorization successful")

	return a.Resume(tok.AccessToken), nil
}

// Resume builds a Connection from a stored access token without contacting
// the service. The token is unverified until the first call succeeds.
func (a *Authenticator) Resume(accessToken string) *Connection {
	client := NewClient(a.cfg.APIURL, a.httpClient, StaticToken(accessToken), a.logger, a.cfg.UserAgent)
	client.SetRateLimit(a.cfg.RequestsPerSecond, 1)

	return &Connection{client: client, accessToken: accessToken}
}

func (a *Authenticator) oauthConfig(redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:    a.cfg.ClientID,
		RedirectURL: redirectURL,
		Scopes:      a.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   a.cfg.AuthorizeURL,
			TokenURL:  a.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// startCallbackServer binds to 127.0.0.1:0 and starts an HTTP server with the
// given mux. Returns the server, the port, and any error.
func startCallbackServer(
	ctx context.Context,
	mux *http.ServeMux,
	resultCh chan<- callbackResult,
	logger *slog.Logger,
) (*http.Server, int, error) {
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		return nil, 0, fmt.Errorf("ion: binding localhost listener: %w", err)
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		return nil, 0, fmt.Errorf("ion: listener address is not TCP")
	}

	port := tcpAddr.Port
	logger.Info("callback server listening", slog.Int("port", port))

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			select {
			case resultCh <- callbackResult{err: fmt.Errorf("ion: callback server error: %w", serveErr)}:
			default:
			}
		}
	}()

	return srv, port, nil
}

// registerCallbackHandler adds the callback route to the mux.
// Must be called before the browser redirects back.
func registerCallbackHandler(mux *http.ServeMux, path, state string, resultCh chan<- callbackResult) {
	mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
		handleOAuthCallback(w, r, state, resultCh)
	})
}

// handleOAuthCallback validates the state, extracts the code, and sends the result.
// Only the first callback is delivered; later hits are answered but ignored.
func handleOAuthCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	send := func(res callbackResult) {
		select {
		case resultCh <- res:
		default:
		}
	}

	// Validate state to prevent CSRF.
	if r.URL.Query().Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		send(callbackResult{err: fmt.Errorf("ion: OAuth2 state mismatch (possible CSRF)")})

		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		desc := r.URL.Query().Get("error_description")
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)
		send(callbackResult{err: fmt.Errorf("ion: authorization failed: %s: %s", errParam, desc)})

		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		send(callbackResult{err: fmt.Errorf("ion: callback missing authorization code")})

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authorization successful</h1>"+
		"<p>You can close this window and return to the application.</p></body></html>")
	send(callbackResult{code: code})
}

// shutdownCallbackServer gracefully shuts down the callback HTTP server.
func shutdownCallbackServer(srv *http.Server, logger *slog.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// waitForCallback blocks until the callback fires or the context is canceled.
func waitForCallback(ctx context.Context, resultCh <-chan callbackResult) (string, error) {
	select {
	case result := <-resultCh:
		if result.err != nil {
			return "", result.err
		}

		return result.code, nil
	case <-ctx.Done():
		return "", fmt.Errorf("ion: browser authorization canceled: %w", ctx.Err())
	}
}

// generateState produces a cryptographically random hex string for the OAuth2
// state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
