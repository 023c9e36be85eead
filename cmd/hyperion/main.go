// Command hyperion runs the simulation core driver loop standalone, wiring
// Config, Store, Pipeline, the metrics HTTP surface, and the admin console
// together the way dragonfly's own main wires a *server.Server, adapted to a
// core that owns no listener of its own (spec.md §1).
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/time/rate"

	"github.com/Ruben2424/hyperion/server/sim"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to the simulation core's TOML config file")
	metricsAddr := flag.String("metrics-addr", ":9090", "listen address for the /metrics, /healthz, /stats HTTP surface")
	mongoURI := flag.String("mongo-uri", "", "mongo-driver connection URI for death/respawn analytics; leave empty to disable")
	redisAddr := flag.String("redis-addr", "", "redis address to publish the player count to; leave empty to disable")
	flag.Parse()

	log := slog.Default()

	cfg, err := sim.LoadConfig(*configPath)
	if err != nil {
		log.Error("load config", "err", err)
		os.Exit(1)
	}

	store := sim.NewStore()
	global := sim.NewGlobal(cfg)
	clock := sim.NewClock(log.With("component", "clock"), cfg)
	registry := sim.NewRegistry(log.With("component", "registry"))
	pipeline := sim.NewPipeline(log.With("component", "pipeline"), store, global, registry, nil, 0)

	ingress := sim.NewQueueIngressSource()
	pingLimiter := sim.NewKeepAlivePingLimiter(rate.Limit(1), 2)
	egress := sim.NewCompressingEgressSink(sim.NewLoggingEgressSink(log.With("component", "egress")),
		global.CompressionThreshold, nil).WithPingLimiter(pingLimiter)
	pipeline.Ingress = ingress
	pipeline.Egress = egress

	var redisSink *sim.RedisPlayerCountSink
	if *redisAddr != "" {
		instance, err := os.Hostname()
		if err != nil {
			instance = "hyperion"
		}
		redisClient := redis.NewClient(&redis.Options{Addr: *redisAddr})
		redisSink = sim.NewRedisPlayerCountSink(redisClient, instance, 30*time.Second)
	}

	if *mongoURI != "" {
		mongoClient, err := mongo.Connect(options.Client().ApplyURI(*mongoURI))
		if err != nil {
			log.Error("connect mongo analytics sink", "err", err)
			os.Exit(1)
		}
		collection := mongoClient.Database("hyperion").Collection("vitals_transitions")
		pipeline.WithAnalytics(sim.NewMongoAnalyticsSink(collection))
	}

	metrics := sim.NewMetrics(prometheus.DefaultRegisterer, global)
	stats := func(ev sim.StatsEvent) {
		metrics.ObserveTick(ev)
		if redisSink != nil {
			if err := redisSink.Publish(context.Background(), global.PlayerCount()); err != nil {
				log.Warn("publish player count to redis", "err", err)
			}
		}
	}
	srv := sim.NewServer(log.With("component", "server"), clock, pipeline, global, stats).
		WithTickDurationObserver(metrics.ObserveTickDuration)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:    *metricsAddr,
		Handler: metrics.Router(prometheus.DefaultGatherer, []string{"*"}),
	}
	go func() {
		log.Info("metrics surface listening", "addr", *metricsAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server", "err", err)
		}
	}()

	console := sim.NewConsole(srv, store, global, log.With("component", "console"))
	go console.Run()

	log.Info("simulation core starting")
	srv.Run(ctx)
	_ = httpServer.Close()
	log.Info("simulation core stopped", "tick", global.Tick())
}
