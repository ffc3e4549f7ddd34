// sshcored -- SSH Binary Packet Protocol transport core daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/sshcore/transport/internal/config"
	sshmetrics "github.com/sshcore/transport/internal/metrics"
	"github.com/sshcore/transport/internal/netio"
	"github.com/sshcore/transport/internal/server"
	"github.com/sshcore/transport/internal/transport"
	appversion "github.com/sshcore/transport/internal/version"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// readBufSize is the per-connection read buffer size fed to Session.Feed.
const readBufSize = 32 * 1024

// Keepalive tuning for accepted connections: a half-open peer is detected
// within roughly keepaliveIdle + keepaliveInterval*keepaliveCount instead
// of waiting on the platform's (often multi-hour) default.
const (
	keepaliveIdle     = 60 * time.Second
	keepaliveInterval = 15 * time.Second
	keepaliveCount    = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("sshcored starting",
		slog.String("version", appversion.Version),
		slog.String("control_addr", cfg.Control.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Int("listeners", len(cfg.Listeners)),
	)

	reg := prometheus.NewRegistry()
	collector := sshmetrics.NewCollector(reg)
	registry := server.NewRegistry()

	if err := runServers(cfg, collector, registry, reg, logger, *configPath, logLevel); err != nil {
		logger.Error("sshcored exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("sshcored stopped")
	return 0
}

// runServers sets up and runs the control-plane HTTP server, metrics HTTP
// server, and TCP accept loops under an errgroup with signal-aware context
// for graceful shutdown.
func runServers(
	cfg *config.Config,
	collector *sshmetrics.Collector,
	registry *server.Registry,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	controlSrv := newControlServer(cfg.Control, registry, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	lm := newListenerManager(registry, collector, logger)
	if err := lm.reconcile(gCtx, g, cfg.Listeners); err != nil {
		return fmt.Errorf("start listeners: %w", err)
	}
	defer lm.closeAll(logger)

	startHTTPServers(gCtx, g, cfg, controlSrv, metricsSrv, logger)
	startSIGHUPHandler(gCtx, g, configPath, logLevel, lm, logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, controlSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

// startHTTPServers registers the control-plane and metrics HTTP server
// goroutines.
func startHTTPServers(
	ctx context.Context,
	g *errgroup.Group,
	cfg *config.Config,
	controlSrv *http.Server,
	metricsSrv *http.Server,
	logger *slog.Logger,
) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("control-plane server listening", slog.String("addr", cfg.Control.Addr))
		return listenAndServe(ctx, &lc, controlSrv, cfg.Control.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path),
		)
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

// startSIGHUPHandler registers the config-reload goroutine: on SIGHUP it
// reloads the configuration file and reconciles the listener set against it.
// A SIGHUP arriving less than config.ReloadInterval after the previous
// reload is skipped.
func startSIGHUPHandler(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	lm *listenerManager,
	logger *slog.Logger,
) {
	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		var lastReload time.Time
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-sigHUP:
				if !lastReload.IsZero() && time.Since(lastReload) < config.ReloadInterval {
					logger.Warn("SIGHUP reload skipped: previous reload too recent")
					continue
				}
				lastReload = time.Now()
				reloadConfig(ctx, g, configPath, logLevel, lm, logger)
			}
		}
	})
}

// reloadConfig reloads configPath and reconciles the live listener set and
// log level against it, logging (but not failing the daemon on) any error.
func reloadConfig(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	lm *listenerManager,
	logger *slog.Logger,
) {
	newCfg, err := loadConfig(configPath)
	if err != nil {
		logger.Warn("SIGHUP reload: failed to load configuration", slog.String("error", err.Error()))
		return
	}

	logLevel.Set(config.ParseLogLevel(newCfg.Log.Level))

	if err := lm.reconcile(ctx, g, newCfg.Listeners); err != nil {
		logger.Warn("SIGHUP reload: failed to reconcile listeners", slog.String("error", err.Error()))
		return
	}

	logger.Info("SIGHUP reload complete", slog.Int("listeners", len(newCfg.Listeners)))
}

// -------------------------------------------------------------------------
// Listener management -- accept loop + declarative reconciliation
// -------------------------------------------------------------------------

// liveListener pairs a bound net.Listener with the cancel func for its
// accept-loop goroutine.
type liveListener struct {
	ln     net.Listener
	cancel context.CancelFunc
}

// listenerManager owns the set of live TCP listeners declared by
// config.ListenerConfig entries, diffing the desired set against the live
// one on every reconcile call (startup and SIGHUP reload).
type listenerManager struct {
	registry  *server.Registry
	collector *sshmetrics.Collector
	logger    *slog.Logger

	mu   sync.Mutex
	live map[string]*liveListener
}

func newListenerManager(registry *server.Registry, collector *sshmetrics.Collector, logger *slog.Logger) *listenerManager {
	return &listenerManager{
		registry:  registry,
		collector: collector,
		logger:    logger,
		live:      make(map[string]*liveListener),
	}
}

// reconcile brings the live listener set in line with desired, starting
// listeners for new entries and tearing down ones no longer declared.
// New listeners' accept loops are registered on g so the daemon's
// errgroup waits on them and propagates their failures.
func (lm *listenerManager) reconcile(ctx context.Context, g *errgroup.Group, desired []config.ListenerConfig) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	wanted := make(map[string]config.ListenerConfig, len(desired))
	for _, lc := range desired {
		wanted[lc.ListenerKey()] = lc
	}

	for key, ll := range lm.live {
		if _, ok := wanted[key]; !ok {
			ll.cancel()
			if err := ll.ln.Close(); err != nil {
				lm.logger.Warn("failed to close listener", slog.String("addr", key), slog.String("error", err.Error()))
			}
			delete(lm.live, key)
			lm.logger.Info("listener stopped", slog.String("addr", key))
		}
	}

	for key, lc := range wanted {
		if _, ok := lm.live[key]; ok {
			continue
		}

		ln, err := netio.ListenTCP(ctx, lc.Addr, lc.ReusePort)
		if err != nil {
			return fmt.Errorf("listen on %s: %w", lc.Addr, err)
		}

		acceptCtx, cancel := context.WithCancel(ctx)
		lm.live[key] = &liveListener{ln: ln, cancel: cancel}

		role := transport.RoleServer
		if lc.Role == "client" {
			role = transport.RoleClient
		}

		lm.logger.Info("listener started",
			slog.String("addr", lc.Addr),
			slog.String("role", lc.Role),
			slog.Bool("reuse_port", lc.ReusePort),
		)

		g.Go(func() error {
			return acceptLoop(acceptCtx, ln, role, lm.registry, lm.collector, lm.logger)
		})
	}

	return nil
}

// closeAll tears down every live listener, logging any close error.
func (lm *listenerManager) closeAll(logger *slog.Logger) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for key, ll := range lm.live {
		ll.cancel()
		if err := ll.ln.Close(); err != nil {
			logger.Warn("failed to close listener", slog.String("addr", key), slog.String("error", err.Error()))
		}
	}
}

// acceptLoop accepts connections on ln until ctx is cancelled, handling
// each on its own goroutine.
func acceptLoop(
	ctx context.Context,
	ln net.Listener,
	role transport.Role,
	registry *server.Registry,
	collector *sshmetrics.Collector,
	logger *slog.Logger,
) error {
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept on %s: %w", ln.Addr(), err)
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			if err := netio.TuneKeepAlive(tcpConn, keepaliveIdle, keepaliveInterval, keepaliveCount); err != nil {
				logger.Warn("keepalive tuning failed", slog.String("peer_addr", conn.RemoteAddr().String()), slog.Any("error", err))
			}
		}

		go handleConn(conn, role, registry, collector, logger)
	}
}

// handleConn drives one accepted connection's Session through the Packet
// Reassembler until the connection closes or the session enters the ERROR
// phase, registering it with the Registry for the session-management
// surface's duration and forwarding every phase transition it observes.
func handleConn(
	conn net.Conn,
	role transport.Role,
	registry *server.Registry,
	collector *sshmetrics.Collector,
	logger *slog.Logger,
) {
	connLogger := logger.With(
		slog.String("component", "session"),
		slog.String("peer_addr", conn.RemoteAddr().String()),
	)

	sess := transport.New(role, connLogger,
		transport.WithWriter(conn),
		transport.WithTrafficCounterSink(collector.NewSessionSink(role.String())),
	)

	id := registry.Register(sess, conn.RemoteAddr().String(), conn.Close)
	defer registry.Unregister(id)
	defer func() { _ = conn.Close() }()

	collector.RecordPhaseChange(role.String(), "", sess.Phases().Session.String())

	buf := make([]byte, readBufSize)
	lastPhase := sess.Phases().Session.String()

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			sess.Feed(buf[:n])

			if phase := sess.Phases().Session.String(); phase != lastPhase {
				collector.RecordPhaseChange(role.String(), lastPhase, phase)
				lastPhase = phase
				registry.NotifyPhaseChange(id)
			}

			if sess.InError() {
				if te := sess.Err(); te != nil {
					connLogger.Warn("session entered ERROR", slog.String("error", te.Error()))
				}
				collector.ForgetSession(role.String(), lastPhase)
				return
			}
		}
		if err != nil {
			collector.ForgetSession(role.String(), lastPhase)
			return
		}
	}
}

// -------------------------------------------------------------------------
// HTTP servers
// -------------------------------------------------------------------------

// listenAndServe creates a TCP listener using the ListenConfig (for noctx
// compliance) and serves HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newControlServer creates an HTTP server for the control-plane surface
// (session management JSON API + grpchealth), served over plaintext
// HTTP/2 via h2c so ConnectRPC clients can reach it without TLS.
func newControlServer(cfg config.ControlConfig, registry *server.Registry, logger *slog.Logger) *http.Server {
	srv := server.New(registry, logger)
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(srv.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// gracefulShutdown performs an orderly shutdown of the HTTP servers. The
// parent context is already cancelled when this function is called; a
// fresh timeout context is created internally for server drain.
func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

// loadConfig loads configuration from a file path or returns defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}

// newLoggerWithLevel creates a structured logger using a shared LevelVar
// for dynamic log level changes via SIGHUP reload.
func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
