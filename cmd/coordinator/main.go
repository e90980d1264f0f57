// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package main

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/propagators/b3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AccelByte/extend-lockstep-coordinator/pkg/aco"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/archive"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/common"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/config"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/constants"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/coordinator"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/envelope"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/games"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/matchmaker"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/metrics"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/rating"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/store"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/transport"
	"github.com/AccelByte/extend-lockstep-coordinator/pkg/winrate"
)

const storeNamespace = "lockstep"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	common.SetupLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serviceName := common.GetEnv("SERVICE_NAME", "lockstep-coordinator")
	shutdownTracing, err := setupTracing(serviceName, cfg.ZipkinEndpoint)
	if err != nil {
		logrus.Fatalf("unable to set up tracing: %v", err)
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	sessionMetrics := metrics.NewMetrics(promRegistry)

	st := store.NewRedisStore(store.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, storeNamespace, cfg.MaxTxRetries)
	if err := st.Ping(ctx); err != nil {
		logrus.Fatalf("unable to reach rating store: %v", err)
	}

	gameArchive, err := archive.Open(cfg.ArchivePath)
	if err != nil {
		logrus.Fatalf("unable to open game archive: %v", err)
	}

	rootScope := envelope.NewRootScope(ctx, serviceName, "")
	defer rootScope.Finish()

	model := aco.NewModel(cfg)
	winRates := winrate.NewProvider(gameArchive, cfg.WinRateBucketSize, sessionMetrics, constants.CategoryPvP)
	go winRates.Run(rootScope, time.Duration(cfg.WinRateRecomputeSeconds)*time.Second)

	updater := rating.NewUpdater(cfg, st, model, winRates, sessionMetrics)
	go updater.RunDecay(rootScope)

	seed := uint64(time.Now().UnixNano())
	registry := games.NewRegistry(sessionMetrics, rand.New(rand.NewPCG(seed, seed>>1)))
	mm := matchmaker.NewMatchMaker(cfg, registry, model, winRates, rand.New(rand.NewPCG(seed>>1, seed)), sessionMetrics)

	hub := transport.NewHub(nil)
	coord := coordinator.New(cfg, registry, mm, hub, gameArchive, updater, sessionMetrics)
	hub.SetHandler(coord)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	gameServer := &http.Server{Addr: cfg.ListenAddress, Handler: mux}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
	metricsServer := &http.Server{Addr: cfg.MetricsAddress, Handler: metricsMux}

	for _, srv := range []*http.Server{gameServer, metricsServer} {
		go func(srv *http.Server) {
			logrus.Infof("listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Fatalf("server on %s failed: %v", srv.Addr, err)
			}
		}(srv)
	}

	logrus.Debugf("game config: %s", common.LogJSONFormatter(cfg.GameConfig(constants.CategoryPvP, true)))
	if err := coord.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logrus.Errorf("coordinator stopped: %v", err)
	}

	shutdownTimeout := time.Duration(common.GetEnvInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range []*http.Server{gameServer, metricsServer} {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logrus.Warnf("shutdown of %s: %v", srv.Addr, err)
		}
	}
	if err := gameArchive.Close(); err != nil {
		logrus.Warnf("closing game archive: %v", err)
	}
	if err := st.Close(); err != nil {
		logrus.Warnf("closing rating store: %v", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logrus.Warnf("flushing traces: %v", err)
	}
	logrus.Info("coordinator stopped")
}

// setupTracing installs the b3 propagator and, when a collector is configured, a tracer provider
// exporting to zipkin. The returned function flushes pending spans.
func setupTracing(serviceName, zipkinEndpoint string) (func(context.Context) error, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		b3.New(b3.WithInjectEncoding(b3.B3MultipleHeader)),
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	if zipkinEndpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := zipkin.New(zipkinEndpoint)
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(attribute.String("service.name", serviceName))),
	)
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}
