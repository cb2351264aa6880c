package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"hexlink.local/internal/app/shortener"
	"hexlink.local/internal/app/shortener/cache"
	"hexlink.local/internal/app/shortener/httpapi"
	"hexlink.local/internal/app/shortener/repo"
	"hexlink.local/internal/app/shortener/stats"
	platformcache "hexlink.local/internal/platform/cache"
	"hexlink.local/internal/platform/config"
	"hexlink.local/internal/platform/httpmiddleware"
	"hexlink.local/internal/platform/httpserver"
	"hexlink.local/internal/platform/logging"
	"hexlink.local/internal/platform/metrics"
	"hexlink.local/internal/platform/trace"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat, cfg.ServiceName))

	mode, err := shortener.ParseMode(cfg.ShortenMode)
	if err != nil {
		log.Fatal(err)
	}

	// 存储
	openCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	raw, err := repo.Open(openCtx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	if err := raw.Ping(openCtx); err != nil {
		log.Fatal(err)
	}
	slog.Info("store ready", "driver", cfg.StoreDriver)

	// 点击落库：支持的后端自己记，其余只写日志
	var recorder stats.Recorder = stats.LogRecorder{}
	if r, ok := raw.(stats.Recorder); ok {
		recorder = r
	}

	backend := repo.Backend(raw)
	if cfg.CacheEnabled {
		redisClient, err := platformcache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatal(err)
		}
		localCache, err := cache.NewLocalCache(100000, 1<<24) // 10万条目，16MB
		if err != nil {
			log.Fatal(err)
		}
		// 预期 100 万短码，1% 误判率
		cached := repo.NewCachedStore(raw, cache.NewLinkCache(redisClient, localCache), cache.NewBloomFilter(1_000_000, 0.01))
		if err := cached.Warm(openCtx); err != nil {
			log.Fatal(err)
		}
		backend = cached
		defer redisClient.Close()
	} else {
		slog.Warn("cache disabled by config", "CACHE_ENABLED", false)
	}
	defer backend.Close()

	svc := shortener.NewService(backend, backend, shortener.Options{
		DomainPrefix: cfg.DomainPrefix,
		Mode:         mode,
	})

	// 统计收集器（Channel 或 Kafka）
	var (
		collector       stats.Collector
		kafkaConsumer   *stats.KafkaConsumer
		channelConsumer *stats.Consumer
	)
	if cfg.KafkaEnabled {
		slog.Info("collecting clicks via kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		collector = stats.NewKafkaCollector(cfg.KafkaBrokers, cfg.KafkaTopic)
		kafkaConsumer = stats.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, recorder)
	} else {
		slog.Info("collecting clicks via channel")
		channelCollector := stats.NewChannelCollector(10000)
		collector = channelCollector
		channelConsumer = stats.NewConsumer(recorder, channelCollector)
	}

	metrics.Init()

	if cfg.TracingEnabled {
		shutdown, err := trace.Init(cfg.OtlpGrpcEndpoint, cfg.ServiceName)
		if err != nil {
			slog.Error("trace init failed", "err", err)
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				if err := shutdown(ctx); err != nil {
					slog.Error("trace shutdown failed", "err", err)
				}
			}()
		}
	} else {
		slog.Warn("tracing disabled by config", "TRACING_ENABLED", false)
	}

	// 对外业务
	r := chi.NewRouter()
	r.Use(httpmiddleware.Recovery, httpmiddleware.ReqID, httpmiddleware.AccessLog, httpmiddleware.Metrics, httpmiddleware.TraceName)
	r.Get("/healthz", httpapi.Healthz)
	r.Route("/api/v1", func(api chi.Router) {
		httpapi.RegisterAPIRoutes(api, svc)
	})
	httpapi.RegisterPublicRoutes(r, svc, collector)

	publicHandler := http.Handler(r)
	if cfg.TracingEnabled {
		publicHandler = otelhttp.NewHandler(r, "http")
	}
	publicSrv := httpserver.New(cfg, publicHandler)

	// 仅本机/内网
	adminMux := http.NewServeMux()
	adminMux.Handle("/metrics", promhttp.Handler())
	adminMux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := backend.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("store not ready"))
			return
		}
		_, _ = w.Write([]byte("store ready"))
	})
	adminMux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service_name": cfg.ServiceName,
			"version":      version,
			"commit":       commit,
			"build_time":   buildTime,
			"go_version":   runtime.Version(),
			"store_driver": cfg.StoreDriver,
			"shorten_mode": mode.String(),
		})
	})
	if cfg.PprofEnabled {
		adminMux.HandleFunc("/debug/pprof/", pprof.Index)
		adminMux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		adminMux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		adminMux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		adminMux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	adminSrv := httpserver.NewWithAddr(cfg, cfg.AdminAddr, adminMux) // 推荐：127.0.0.1:6060

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if kafkaConsumer != nil {
		go kafkaConsumer.Run(stopCtx)
		defer kafkaConsumer.Close()
	}
	if channelConsumer != nil {
		go channelConsumer.Run(stopCtx)
	}
	defer collector.Close()

	errch := make(chan error, 2)
	go func() { errch <- httpserver.Run(stopCtx, publicSrv, cfg.ShutdownTimeout) }()
	go func() { errch <- httpserver.Run(stopCtx, adminSrv, cfg.ShutdownTimeout) }()
	slog.Info("listening", "addr", cfg.Addr, "admin_addr", cfg.AdminAddr)

	if err := <-errch; err != nil {
		stop()
		select {
		case <-errch:
		case <-time.After(cfg.ShutdownTimeout + time.Second):
		}
		slog.Error("server exited", "err", err)
		os.Exit(1)
	}
	stop()
	<-errch
}
