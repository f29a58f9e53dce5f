package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ion-go/internal/bridge"
	"github.com/tonimelisma/ion-go/internal/config"
	"github.com/tonimelisma/ion-go/internal/session"
	"github.com/tonimelisma/ion-go/internal/telemetry"
	"github.com/tonimelisma/ion-go/internal/tokenfile"
)

// Timeouts for the serve HTTP server.
const (
	serveReadHeaderTimeout = 10 * time.Second
	serveShutdownTimeout   = 5 * time.Second
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Keep a session alive and stream its state over WebSocket",
		Long: `Resume the stored session and keep it up to date. Session notifications are
pushed to WebSocket clients on /events and counters are exported on /metrics.

A login or logout from another ion-go process is picked up from the credential
file. SIGHUP (or "ion-go reload") re-reads the config file and applies its log
level. Only one serve runs per data directory.`,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "address to listen on (overrides serve.listen_addr)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := shutdownContext(cmd.Context(), cc.Logger)

	lock, err := acquirePIDLock(config.ServePIDPath())
	if err != nil {
		return err
	}
	defer lock.Release()

	collector := telemetry.NewCollector()

	is, err := NewIonSession(ctx, cc.Cfg.Config, cc.Logger, ionSessionOptions{Metrics: collector})
	if err != nil {
		return err
	}
	defer is.Close()

	ln, err := net.Listen("tcp", cc.Cfg.Serve.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cc.Cfg.Serve.ListenAddr, err)
	}

	srv := newServer(is, collector, cc.Logger)
	defer srv.detach()

	httpSrv := &http.Server{
		Handler:           srv.mux,
		ReadHeaderTimeout: serveReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
		defer cancel()

		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			cc.Logger.Warn("http shutdown", slog.String("error", err.Error()))
		}
	}()

	cc.Logger.Info("serving",
		slog.String("addr", ln.Addr().String()),
		slog.String("project", cc.Cfg.Ion.ProjectName),
	)
	cc.Statusf("Listening on http://%s (events on /events, metrics on /metrics)\n", ln.Addr())

	if is.CredentialPath != "" {
		go func() {
			err := tokenfile.Watch(ctx, is.CredentialPath, cc.Logger, func() {
				is.Dispatcher.Post(func() { syncCredential(is.Session, cc.Logger) })
			})
			if err != nil {
				cc.Logger.Warn("credential watch stopped", slog.String("error", err.Error()))
			}
		}()
	}

	hup, stopHup := reloadSignals()
	defer stopHup()

	holder := config.NewHolder(cc.Cfg.Config, cc.Cfg.Path)

	is.Session.Resume()

	return srv.loop(ctx, is, hup, func() { reloadConfig(holder, cc) }, serveErr)
}

// server is the HTTP side of serve: the WebSocket bridge and the metrics
// endpoint, both fed by the session's notification hub.
type server struct {
	mux    *http.ServeMux
	bridge *bridge.Bridge

	detachBridge  func()
	detachMetrics func()
}

func newServer(is *IonSession, collector *telemetry.Collector, logger *slog.Logger) *server {
	s := is.Session

	collector.ObserveDispatcher(is.Dispatcher)

	br := bridge.New(logger, bridge.Options{})

	srv := &server{
		mux:           http.NewServeMux(),
		bridge:        br,
		detachBridge:  br.Attach(s.Events, func() bridge.Snapshot { return bridge.SnapshotOf(s) }),
		detachMetrics: collector.ObserveHub(s.Events),
	}

	srv.mux.Handle("/events", br)
	srv.mux.Handle("/metrics", collector.Handler())
	srv.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	return srv
}

func (srv *server) detach() {
	srv.detachBridge()
	srv.detachMetrics()
}

// loop is the session's owning goroutine: it pumps completions as they
// arrive and on every tick, and handles reload requests between pumps.
func (srv *server) loop(
	ctx context.Context, is *IonSession, hup <-chan os.Signal, reload func(), serveErr <-chan error,
) error {
	ticker := time.NewTicker(is.pump)
	defer ticker.Stop()

	for {
		is.Dispatcher.Pump()

		select {
		case <-ctx.Done():
			return nil
		case err := <-serveErr:
			return fmt.Errorf("http server: %w", err)
		case <-hup:
			reload()
		case <-is.Dispatcher.Ready():
		case <-ticker.C:
		}
	}
}

// syncCredential reconciles the session with a credential file changed by
// another process: a removed credential disconnects, a new one resumes and
// a replaced one reconnects. Disconnect writes the empty credential back,
// which lands here again as a no-op.
func syncCredential(s *session.Session, logger *slog.Logger) {
	stored := s.ReadCredential()

	switch {
	case stored == "" && s.IsConnected():
		logger.Info("credential removed externally, disconnecting")
		s.Disconnect()
	case stored != "" && !s.IsConnected() && !s.IsConnecting() && !s.IsResuming():
		logger.Info("credential stored externally, resuming")
		s.Resume()
	case stored != "" && s.IsConnected() && s.Connection().AccessToken() != stored:
		logger.Info("credential replaced externally, reconnecting")
		s.Reconnect()
	}
}

// reloadConfig re-reads the config file on SIGHUP. Only the log level takes
// effect without a restart; a broken file keeps the running config.
func reloadConfig(holder *config.Holder, cc *CLIContext) {
	cfg, err := holder.Reload()
	if err != nil {
		cc.Logger.Warn("config reload failed, keeping current config",
			slog.String("path", holder.Path()),
			slog.String("error", err.Error()),
		)

		return
	}

	cc.Level.Set(logLevel(cfg.Logging.LogLevel, cc.Flags))

	cc.Logger.Info("config reloaded",
		slog.String("path", holder.Path()),
		slog.String("log_level", cc.Level.Level().String()),
	)
}
