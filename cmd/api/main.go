// @title certivax API
// @version 1.0
// @description Registro de certificación de trazabilidad ganadera.
// @BasePath /
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

	"certivax/internal/adapters/archive/memory"
	archives3 "certivax/internal/adapters/archive/s3"
	"certivax/internal/adapters/auth/introspect"
	"certivax/internal/adapters/auth/jwtverifier"
	"certivax/internal/adapters/publisher"
	"certivax/internal/adapters/publisher/kafka"
	"certivax/internal/adapters/publisher/redisstream"
	mem "certivax/internal/adapters/storage/memory"
	pg "certivax/internal/adapters/storage/postgres"
	"certivax/internal/adapters/storage/sqlite"
	"certivax/internal/adapters/storage/sqlstore"
	"certivax/internal/domain/registry"
	"certivax/internal/platform/config"
	"certivax/internal/platform/logger"
	"certivax/internal/platform/metrics"
	"certivax/internal/platform/redis"
	"certivax/internal/ports/auth"
	"certivax/internal/router"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "certivax: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log := logger.New(logger.Options{
		Level:  logger.ParseLevel(cfg.LogLevel),
		Format: logger.ParseFormat(cfg.LogFormat),
		App:    cfg.AppName,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	checks := map[string]router.HealthCheck{}
	var closers []func()
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	store, err := openStore(ctx, cfg.Store, checks, &closers)
	if err != nil {
		return err
	}

	sinks := []publisher.Sink{{Name: "log", Publisher: publisher.NewLog(log)}}
	if cfg.Notify.RedisURL != "" {
		rc, err := redis.New(ctx, cfg.Notify.RedisURL)
		if err != nil {
			return err
		}
		closers = append(closers, func() { _ = rc.Close() })
		checks["redis"] = rc.Health
		sinks = append(sinks, publisher.Sink{Name: "redis", Publisher: redisstream.New(rc, cfg.Notify.RedisStream, 0)})
	}
	if len(cfg.Notify.KafkaBrokers) > 0 {
		kp, err := kafka.New(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
		if err != nil {
			return err
		}
		closers = append(closers, kp.Close)
		if err := kp.EnsureTopic(ctx, 3, 1); err != nil {
			log.Warn("kafka topic not ensured", logger.Fields{"error": err})
		}
		sinks = append(sinks, publisher.Sink{Name: "kafka", Publisher: kp})
	}

	var archive registry.MetadataArchive
	switch cfg.Archive.Driver {
	case config.ArchiveMemory:
		archive = memory.New()
	case config.ArchiveS3:
		a, err := archives3.New(ctx, archives3.Config{
			Region:    cfg.Archive.Region,
			Bucket:    cfg.Archive.Bucket,
			Endpoint:  cfg.Archive.Endpoint,
			PathStyle: cfg.Archive.PathStyle,
		})
		if err != nil {
			return err
		}
		archive = a
	}

	verifier, err := newVerifier(cfg.Auth)
	if err != nil {
		return err
	}

	svc := registry.NewService(store, registry.Options{
		Publisher: publisher.NewMulti(m, sinks...),
		Archive:   archive,
		Logger:    log,
		Metrics:   m,
	})

	contractHash, err := contractHash(cfg.Registry)
	if err != nil {
		return err
	}
	meta, err := svc.Bootstrap(ctx, registry.Principal(cfg.Registry.Owner), contractHash)
	if err != nil {
		return fmt.Errorf("bootstrap registry: %w", err)
	}
	log.Info("registry ready", logger.Fields{
		"owner":         string(meta.Owner),
		"contract_hash": meta.ContractHash.Hex(),
		"store":         string(cfg.Store.Driver),
		"auth":          string(cfg.Auth.Mode),
	})

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: router.NewRouter(router.Options{
			AuthVerifier: verifier,
			Service:      svc,
			Logger:       log,
			HealthChecks: checks,
		}),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting server", logger.Fields{"addr": cfg.HTTPAddr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("shutting down", nil)
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.Store, checks map[string]router.HealthCheck, closers *[]func()) (registry.Store, error) {
	var s *sqlstore.Store
	switch cfg.Driver {
	case config.StoreMemory:
		return mem.NewStore(), nil
	case config.StorePostgres:
		db, err := pg.Open(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		*closers = append(*closers, func() { _ = db.Close() })
		s = pg.NewStore(db)
	case config.StoreSQLite:
		db, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		*closers = append(*closers, func() { _ = db.Close() })
		s = sqlite.NewStore(db)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}

	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	checks["store"] = s.Ping
	return s, nil
}

func newVerifier(cfg config.Auth) (auth.AuthVerifier, error) {
	switch cfg.Mode {
	case config.AuthJWT:
		return jwtverifier.New(cfg.JWTSigningKey, cfg.JWTIssuer)
	case config.AuthIntrospect:
		return introspect.New(introspect.Config{
			BaseURL: cfg.IntrospectURL,
			APIKey:  cfg.IntrospectToken,
		})
	default:
		// modo dev: X-Debug-Principal
		return nil, nil
	}
}

func contractHash(cfg config.Registry) (registry.Hash, error) {
	if cfg.ContractHash != "" {
		h, err := registry.ParseHash(cfg.ContractHash)
		if err != nil {
			return registry.Hash{}, fmt.Errorf("REGISTRY_CONTRACT_HASH: %w", err)
		}
		return h, nil
	}
	return registry.Commitment([]byte(cfg.ContractLabel)), nil
}
