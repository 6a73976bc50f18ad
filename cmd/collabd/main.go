// Command collabd is the collaborative-editing content backend server: it
// wires a ContentStore, PubSub Bus, ContentType registry, Document Cache,
// and Presence Service together and exposes them over the framed RPC
// multiplexer at /rpc, with a Prometheus exporter alongside.
//
// Usage:
//
//	collabd [config.yaml]
//
// Listen/metrics addresses, store/bus backend selection, and cache tuning
// can all be overridden with COLLABD_* environment variables; see
// pkg/config.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/AltairaLabs/collabkit/internal/backend"
	"github.com/AltairaLabs/collabkit/internal/cache"
	"github.com/AltairaLabs/collabkit/internal/content"
	"github.com/AltairaLabs/collabkit/internal/contenttype/counter"
	"github.com/AltairaLabs/collabkit/internal/contenttype/jsonschema"
	"github.com/AltairaLabs/collabkit/internal/metrics"
	"github.com/AltairaLabs/collabkit/internal/presence"
	"github.com/AltairaLabs/collabkit/internal/pubsub"
	"github.com/AltairaLabs/collabkit/internal/rpc"
	"github.com/AltairaLabs/collabkit/internal/service"
	"github.com/AltairaLabs/collabkit/internal/store"
	"github.com/AltairaLabs/collabkit/pkg/config"
	"github.com/AltairaLabs/collabkit/pkg/logger"
)

func main() {
	var cfgPath string
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal(err)
	}

	registry := content.NewRegistry()
	registry.Register("counter", counter.New())
	registry.Register("jsonschema", jsonschema.New())

	st := newStore(cfg)
	bus := newBus(cfg)

	b := backend.New(st, bus, registry, backend.Options{
		MaxSchemaSize:    cfg.MaxSchemaSize,
		MaxOperationSize: cfg.MaxOperationSize,
		MaxSnapshotSize:  cfg.MaxSnapshotSize,
		CacheOptions: cache.Options{
			TTL:                 cfg.CacheTTL,
			TailLimit:           cfg.CacheLimit,
			ShouldStoreSnapshot: cache.DefaultShouldStoreSnapshot(cfg.RetentionK),
		},
	})

	pres := presence.New(bus, 0)

	// No exporter is configured: spans are recorded and propagated (so
	// submitOperation traces nest under the inbound RPC connection) but not
	// shipped anywhere. Wiring an OTLP exporter is left to deployment config.
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	exporter := metrics.NewExporter(cfg.MetricsAddr)
	go func() {
		if err := exporter.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics exporter stopped", "error", err)
		}
	}()

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(r *http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("rpc: websocket upgrade failed", "error", err)
			return
		}
		metrics.RPCConnectionsActive.Inc()
		transport := rpc.NewWSTransport(wsConn)
		svcRegistry := rpc.NewServiceRegistry()
		conn := rpc.NewConn(transport, svcRegistry)
		conn.OnDestroy(func() { metrics.RPCConnectionsActive.Dec() })

		// The RPC connection outlives this upgrade handler, so the request
		// context (cancelled the instant this handler returns) can't be used
		// directly. Its span context is copied onto a detached background
		// context so spans started over the connection's lifetime (e.g.
		// submitOperation) still nest under the inbound trace otelhttp started.
		bgCtx := trace.ContextWithSpanContext(context.Background(),
			trace.SpanContextFromContext(r.Context()))
		if err := service.Bind(bgCtx, svcRegistry, conn, b, pres, nil); err != nil {
			logger.Error("rpc: service bind failed", "error", err)
			conn.Destroy()
			return
		}
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           otelhttp.NewHandler(mux, "collabd"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("collabd listening", "addr", cfg.ListenAddr, "metricsAddr", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("\nShutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := exporter.Shutdown(ctx); err != nil {
		logger.Error("metrics exporter shutdown error", "error", err)
	}
	if err := tp.Shutdown(ctx); err != nil {
		logger.Error("tracer provider shutdown error", "error", err)
	}
	b.Close()
	pres.Close()
}

func newStore(cfg config.Config) store.Store {
	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return store.NewRedisStore(client)
	default:
		return store.NewMemoryStore()
	}
}

func newBus(cfg config.Config) pubsub.Bus {
	switch cfg.BusBackend {
	case config.BusBackendRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return pubsub.NewRedisBus(client)
	default:
		return pubsub.NewLocalBus()
	}
}
