package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/AlexKimmel/WebShield/internal/auth"
	"github.com/AlexKimmel/WebShield/internal/config"
	"github.com/AlexKimmel/WebShield/internal/gatekeeper"
	"github.com/AlexKimmel/WebShield/internal/gateway"
	"github.com/AlexKimmel/WebShield/internal/lookup"
	"github.com/AlexKimmel/WebShield/internal/obs"
	"github.com/AlexKimmel/WebShield/internal/proxy"
	"github.com/AlexKimmel/WebShield/internal/routing"
	"github.com/AlexKimmel/WebShield/internal/storage"
)

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to the YAML config file")
	flag.Parse()

	path := *cfgPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !isFlagSet("config") {
		path = "" // defaults + env only
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := obs.SetupLogger(cfg.Observability.LogLevel)
	logger.Info().Str("storage", cfg.Storage.Backend).Str("address_source", cfg.Shield.AddressSource).Msg("starting webshield")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := obs.NewMetrics(reg)

	stores, err := storage.Open(ctx, cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("open storage")
	}
	defer stores.Close()

	tr := proxy.NewHTTPTransport()
	lookupOpts := lookup.Options{
		HTTPClient: &http.Client{Transport: tr, Timeout: cfg.Services.Timeout()},
		MaxRPS:     cfg.Services.MaxRPS,
		Burst:      cfg.Services.Burst,
		Observe:    metrics.ObserveLookup,
	}
	reputation, err := lookup.NewReputationClient(cfg.Services.ReputationURL, lookupOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("reputation client")
	}
	var detector gatekeeper.AddressDetector
	if cfg.Shield.AddressSource == "detect" {
		detector = lookup.NewAddressClient(cfg.Services.AddressURL, lookupOpts)
	}
	gk := gatekeeper.New(detector, reputation)

	var origin http.Handler
	if cfg.Upstream.URL != "" {
		target, err := url.Parse(cfg.Upstream.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid upstream url")
		}
		origin = proxy.Handler(target, tr, cfg.Upstream.Timeout())
	} else {
		origin = http.FileServer(http.Dir(cfg.Upstream.StaticDir))
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	mux.HandleFunc("/version", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("v.0.1.0"))
	})

	mux.Handle(cfg.Observability.PrometheusPath, metrics.Handler())
	mux.Handle("/", origin)

	skip := map[string]struct{}{
		"/health":                        {},
		"/version":                       {},
		cfg.Observability.PrometheusPath: {},
	}

	handler := gateway.Chain(
		mux,
		obs.Logger(logger),
		gateway.RouteMatcher(routing.FromConfig(cfg.Routes)),
		metrics.Middleware(skip),
		gateway.BodyLimit(cfg.Server.MaxBody()),
		auth.FromConfig(cfg.Auth).Middleware(),
		gateway.Shield(gk, gateway.ShieldOptions{
			Config: gatekeeper.Config{
				RiskThreshold: cfg.Shield.RiskThreshold,
				MaxRequests:   cfg.Shield.MaxRequests,
				Window:        cfg.Shield.Window(),
				IP:            cfg.Shield.IP,
				ForbiddenPage: cfg.Shield.ForbiddenPage,
			},
			AddressSource:     cfg.Shield.AddressSource,
			TrustForwardedFor: cfg.Shield.TrustForwardedFor,
			Timeout:           cfg.Shield.LookupTimeout(),
			Durable:           stores.Durable,
			Session:           stores.Session,
			SecureCookies:     cfg.Shield.SecureCookies,
			Skip:              skip,
			SkipSubresources:  cfg.Shield.SkipSubresources,
			OnOutcome:         metrics.ObserveOutcome,
		}),
	)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout(),
		IdleTimeout:       cfg.Server.IdleTimeout(),
		ReadTimeout:       cfg.Server.ReadTimeout(),
	}

	// start
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	logger.Info().Msg("bye")
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
