package main

import (
	"context"
	"database/sql"
	"errors"
	"field-visit-service/internal/adapters/cache"
	"field-visit-service/internal/adapters/events"
	"field-visit-service/internal/adapters/geocode"
	"field-visit-service/internal/adapters/position"
	"field-visit-service/internal/adapters/redisstore"
	"field-visit-service/internal/adapters/repositories"
	"field-visit-service/internal/api"
	"field-visit-service/internal/api/handlers"
	"field-visit-service/internal/config"
	"field-visit-service/internal/platform/db"
	"field-visit-service/internal/ports"
	"field-visit-service/internal/services"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
)

// main is the application composition root.
// It wires concrete adapters (SQLite, Redis or Postgres, AMQP, ORS) behind
// ports and runs the HTTP server until SIGINT/SIGTERM.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	schedule, err := config.LoadSchedule(cfg.SchedulePath, cfg.Timezone)
	if err != nil {
		return err
	}

	// Device-local store: snapshot cache, and the ledger when no Postgres is configured.
	localDB, err := db.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer localDB.Close()
	if err := repositories.InitSchema(localDB); err != nil {
		return err
	}

	checks := map[string]handlers.HealthCheck{
		"sqlite": localDB.PingContext,
	}

	var pgDB *sql.DB
	if cfg.DatabaseURL != "" {
		pgDB, err = db.Open(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pgDB.Close()
		if err := repositories.InitPostgresSchema(pgDB); err != nil {
			return err
		}
		checks["postgres"] = pgDB.PingContext
	}

	var (
		status ports.StatusStore
		nearby handlers.NearbyFinder
	)
	switch cfg.StatusBackend {
	case config.BackendPostgres:
		status = repositories.NewSQLStatusStore(pgDB)
	default:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			// Tracking keeps working offline; the bridge re-syncs on the next write.
			log.Printf("redis unreachable at startup addr=%s err=%v", cfg.RedisAddr, err)
		}
		store := redisstore.NewRedisStatusStore(client)
		status, nearby = store, store
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	var ledger ports.WorkLedger = repositories.NewSqliteWorkLedger(localDB)
	if pgDB != nil {
		ledger = repositories.NewSQLWorkLedger(pgDB)
	}

	publisher := events.Fanout{events.LogPublisher{}}
	if cfg.AMQPURL != "" {
		amqpPub, err := events.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return err
		}
		defer amqpPub.Close()
		publisher = append(publisher, amqpPub)
		checks["amqp"] = func(context.Context) error { return amqpPub.Ping() }
	}

	var geocoder ports.Geocoder
	if cfg.ORSAPIKey != "" {
		var geoCache geocode.Cache = cache.NewSqliteGeocodeCache(localDB)
		if pgDB != nil {
			geoCache = cache.NewSQLGeocodeCache(pgDB)
		}
		ors, err := geocode.NewORSGeocoder(cfg.ORSAPIKey, cfg.GeocodeCountry, geoCache)
		if err != nil {
			return err
		}
		geocoder = ors
	}

	hub := position.NewHubSource(0)
	defer hub.Close()

	// Dispatchers outlive the signal context so shutdown can still flush them.
	regCtx, cancelRegistry := context.WithCancel(context.Background())
	defer cancelRegistry()

	registry := services.NewRegistry(regCtx, services.DispatcherDeps{
		Local:        cache.NewSqliteSnapshotStore(localDB),
		Remote:       status,
		Ledger:       ledger,
		Events:       publisher,
		Positions:    hub,
		Clock:        ports.SystemClock{},
		RadiusMeters: cfg.GeofenceRadiusMeters,
		Sync: services.SyncConfig{
			LocalDebounce:    cfg.LocalDebounce,
			PositionInterval: cfg.PositionPushInterval,
		},
	})

	router := api.NewRouter(api.Deps{
		Registry:  registry,
		Positions: hub,
		Nearby:    nearby,
		Geocoder:  geocoder,
		Ledger:    ledger,
		Schedule:  schedule,
		Clock:     ports.SystemClock{},
		Checks:    checks,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening addr=:%s status_backend=%s", cfg.Port, cfg.StatusBackend)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
	case <-ctx.Done():
		log.Println("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	// Flush every user's pending snapshots before the stores close.
	if err := registry.Close(shutdownCtx); err != nil {
		log.Printf("registry close: %v", err)
	}
	return nil
}
