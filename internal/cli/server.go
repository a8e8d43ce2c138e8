package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gymkana-live-service/internal/app"
	"gymkana-live-service/internal/config"
	"gymkana-live-service/internal/domain"
	"gymkana-live-service/internal/infra/memory"
	pginfra "gymkana-live-service/internal/infra/postgres"
	redisinfra "gymkana-live-service/internal/infra/redis"
	transport "gymkana-live-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live event server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var store app.Store
	var loader memory.CatalogLoader
	if pool != nil {
		store = pginfra.NewStore(pool)
		loader = pginfra.NewCatalogLoader(pool)
	} else {
		memStore := memory.NewStore()
		seedDemoEvent(memStore)
		store = memStore
		loader = memStore
	}

	catalogTTL := config.TTLDuration(cfg.Catalog.TTL, 10*time.Minute)
	var catalog app.ChallengeCatalog
	if redisClient != nil {
		catalog = redisinfra.NewCatalog(redisClient, loader, catalogTTL)
	} else {
		catalog = memory.NewCatalog(loader, catalogTTL)
	}

	var notifier app.Notifier
	if redisClient != nil {
		notifier = redisinfra.NewNotifier(redisClient)
	} else {
		notifier = memory.NewNotifier()
	}

	service := app.NewLiveService(store, catalog, notifier)
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting gymkana live service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemoEvent loads a minimal event so the service is usable without
// Postgres; production data arrives via admin tooling and migrations.
func seedDemoEvent(store *memory.Store) {
	const eventID = "demo-event-001"
	store.AddTeam(domain.Team{EventID: eventID, Name: "Red Foxes", Color: "#EF4444"})
	store.AddTeam(domain.Team{EventID: eventID, Name: "Blue Owls", Color: "#3B82F6"})
	store.AddChallenge(domain.Challenge{
		EventID: eventID,
		Title:   "Team photo at the fountain",
		Type:    domain.MediaImage,
		Points:  10,
		Order:   1,
	})
	store.AddChallenge(domain.Challenge{
		EventID: eventID,
		Title:   "Best event slogan",
		Type:    domain.MediaText,
		Points:  5,
		Order:   2,
	})
}
