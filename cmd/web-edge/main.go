package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pribylovaa/go-outreach-web/internal/apiclient"
	"github.com/pribylovaa/go-outreach-web/internal/cache"
	"github.com/pribylovaa/go-outreach-web/internal/config"
	"github.com/pribylovaa/go-outreach-web/internal/credentials"
	edgehttp "github.com/pribylovaa/go-outreach-web/internal/http"
	"github.com/pribylovaa/go-outreach-web/internal/invitation"
	"github.com/pribylovaa/go-outreach-web/internal/metrics"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting web-edge", "env", cfg.Env, "api", cfg.API.BaseURL)

	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	client, err := apiclient.New(cfg.API, log, nil)
	if err != nil {
		log.Error("api_client_init_failed", slog.String("err", err.Error()))
		os.Exit(1)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	// Хранилище исходов приглашений: Redis, если задан, иначе память процесса.
	var (
		store   invitation.OutcomeStore = invitation.NewMemoryStore()
		outcome *cache.Outcomes
	)
	if cfg.Redis.URL != "" {
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		outcome, err = cache.NewOutcomes(pingCtx, cfg.Redis.URL, cfg.Redis.Prefix)
		cancel()
		if err != nil {
			log.Error("redis_init_failed", slog.String("err", err.Error()))
			os.Exit(1)
		}

		defer func() {
			if cerr := outcome.Close(); cerr != nil {
				log.Warn("redis_close_failed", slog.String("err", cerr.Error()))
			}
		}()

		store = outcome
		log.Info("invitation_store_redis", slog.String("prefix", cfg.Redis.Prefix))
	}

	flow := invitation.New(invitation.Options{
		Acceptor:        client,
		Store:           store,
		OutcomeTTL:      cfg.Invitation.OutcomeTTL,
		DashboardPrefix: cfg.Routes.ProtectedPrefix,
		Metrics:         m,
	})

	policy := credentials.PolicyFromConfig(cfg.Cookies)
	if !policy.Secure {
		log.Warn("cookies_insecure", slog.String("hint", "only for local http development"))
	}

	appHandler := edgehttp.NewRouter(edgehttp.Deps{Client: client, Flow: flow}, edgehttp.Options{
		Logger:  log,
		Timeout: cfg.Timeouts.Service,
		Routes:  cfg.Routes,
		Policy:  policy,
		Metrics: m,
		CORS:    cfg.CORS,
	})
	if cfg.CORS.Enabled() {
		log.Info("cors_enabled", slog.Any("origins", cfg.CORS.AllowedOrigins))
	}

	var ready int32 // 0 — not ready; 1 — ready

	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&ready) != 1 {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}

		if outcome != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			defer cancel()
			if err := outcome.Ping(ctx); err != nil {
				http.Error(w, "redis unavailable", http.StatusServiceUnavailable)
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.Handle("/", appHandler)

	httpAddr := cfg.HTTP.Addr()
	httpSrv := &http.Server{
		Addr:              httpAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", httpAddr)
	if err != nil {
		log.Error("http_listen_failed", slog.String("addr", httpAddr), slog.String("err", err.Error()))
		os.Exit(1)
	}

	log.Info("http_listen_start", slog.String("addr", httpAddr))

	serveErrCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
		}
		close(serveErrCh)
	}()

	atomic.StoreInt32(&ready, 1)
	log.Info("web_edge_ready")

	select {
	case <-rootCtx.Done():
		log.Info("shutdown_requested")
	case err := <-serveErrCh:
		if err != nil {
			log.Error("http_serve_failed", slog.String("err", err.Error()))
		}
	}

	atomic.StoreInt32(&ready, 0)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http_shutdown_incomplete", slog.String("err", err.Error()))
	} else {
		log.Info("http_stopped")
	}

	log.Info("service_stopped")
}

func setupLogger(env string) *slog.Logger {
	switch env {
	case envLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case envProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}
