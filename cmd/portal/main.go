package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/ukydev/fleet-portal/internal/config"
	"github.com/ukydev/fleet-portal/internal/db"
	"github.com/ukydev/fleet-portal/internal/feeds"
	"github.com/ukydev/fleet-portal/internal/handlers"
	"github.com/ukydev/fleet-portal/internal/metrics"
	"github.com/ukydev/fleet-portal/internal/notify"
	"github.com/ukydev/fleet-portal/internal/portal"
)

type options struct {
	envFile    string
	port       string
	feedSource string
	logLevel   string
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("portal", flag.ContinueOnError)
	fs.StringVar(&o.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	fs.StringVar(&o.port, "port", "", "HTTP port (overrides PORT)")
	fs.StringVar(&o.feedSource, "feed-source", "", "feed source: mock or mongo (overrides FEED_SOURCE)")
	fs.StringVar(&o.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

// apply copies flag overrides onto the loaded configuration.
func (o options) apply(cfg *config.Config) error {
	if o.port != "" {
		cfg.Port = o.port
	}
	if o.feedSource != "" {
		cfg.FeedSource = o.feedSource
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	return cfg.Validate()
}

// buildSource returns the configured feed source and a cleanup func.
func buildSource(ctx context.Context, cfg *config.Config) (feeds.Source, func(), error) {
	switch cfg.FeedSource {
	case config.FeedSourceMongo:
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, nil, err
		}
		database := client.Database(cfg.MongoDB)
		source := &feeds.Mongo{
			Vehicles:   &db.MongoCollection{Collection: database.Collection(db.VehiclesCollection)},
			Policies:   &db.MongoCollection{Collection: database.Collection(db.PoliciesCollection)},
			Exceptions: &db.MongoCollection{Collection: database.Collection(db.ExceptionsCollection)},
		}
		log.WithField("database", cfg.MongoDB).Info("Using MongoDB feeds")
		cleanup := func() {
			if err := client.Disconnect(context.Background()); err != nil {
				log.WithError(err).Warn("Failed to disconnect from MongoDB")
			}
		}
		return source, cleanup, nil
	case config.FeedSourceMock:
		mock, err := feeds.NewMock(cfg.FeedLatency)
		if err != nil {
			return nil, nil, err
		}
		log.WithField("latency", cfg.FeedLatency).Info("Using mock feeds")
		return mock, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown feed source %q", cfg.FeedSource)
	}
}

func buildPublisher(cfg *config.Config) notify.Publisher {
	if cfg.MQTTBroker == "" {
		return notify.Noop{}
	}
	pub, err := notify.NewMQTTPublisher(notify.Config{
		Broker:   cfg.MQTTBroker,
		ClientID: cfg.MQTTClientID,
		Topic:    cfg.MQTTTopic,
		QoS:      1,
	})
	if err != nil {
		log.WithError(err).Warn("MQTT unavailable, notifications disabled")
		return notify.Noop{}
	}
	return pub
}

func run(ctx context.Context, cfg *config.Config) error {
	reg := metrics.New()

	source, cleanup, err := buildSource(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build feed source: %w", err)
	}
	defer cleanup()

	publisher := buildPublisher(cfg)
	defer publisher.Close()

	store := portal.NewStore(source, portal.WithPublisher(publisher), portal.WithMetrics(reg))
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("failed to load feeds: %w", err)
	}

	router := handlers.NewRouter(handlers.NewPortalHandler(store), handlers.RouterConfig{
		Metrics:                reg,
		RateLimitRequests:      cfg.RateLimitRequests,
		RateLimitWindowSeconds: cfg.RateLimitWindowSeconds,
		TrustProxyHeaders:      cfg.TrustProxyHeaders,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("Invalid flags: %v", err)
	}

	cfg, err := config.Load(opts.envFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := opts.apply(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	cfg.ConfigureLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.WithError(err).Fatal("Portal stopped")
	}
}
