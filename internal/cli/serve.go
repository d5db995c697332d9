package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/preetsinghmakkar/MentorLink/internal/config"
	"github.com/preetsinghmakkar/MentorLink/internal/ratelimit"
	"github.com/preetsinghmakkar/MentorLink/internal/repositories"
	"github.com/preetsinghmakkar/MentorLink/internal/repositories/memory"
	"github.com/preetsinghmakkar/MentorLink/internal/server"
	"github.com/preetsinghmakkar/MentorLink/internal/services"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

var seedPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and WebSocket server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&seedPath, "seed", "", "YAML file of users to create at startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, users, db, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	if seedPath != "" {
		n, err := seedUsers(ctx, users, seedPath)
		if err != nil {
			return err
		}
		log.Info().Int("users", n).Str("file", seedPath).Msg("seeded users")
	}

	var opts []server.Option
	if db != nil {
		opts = append(opts, server.WithHealthCheck("database", db))
	}

	var (
		limiter  ratelimit.Limiter
		notifier services.Notifier
	)
	if cfg.RedisURL != "" {
		redisClient, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() {
			if err := redisClient.Close(); err != nil {
				log.Warn().Err(err).Msg("redis close error")
			}
		}()
		limiter = ratelimit.NewRedisLimiter(redisClient, cfg.SendRateLimit, cfg.SendRateWindow)
		notifier = services.NewRedisNotifier(redisClient)
		opts = append(opts, server.WithHealthCheck("redis", server.RedisPinger{Client: redisClient}))
	} else {
		memLimiter := ratelimit.NewMemoryLimiter(cfg.SendRateLimit, cfg.SendRateWindow)
		go sweepLimiter(ctx, memLimiter, cfg.SendRateWindow)
		limiter = memLimiter
		notifier = services.NewLogNotifier(log)
	}

	srv := server.New(cfg, stores, notifier, limiter, log, opts...)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("store", cfg.StoreDriver).Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Hijacked websocket connections are not tracked by http.Server
	srv.Shutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config) (server.Stores, userStore, *sql.DB, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		store := memory.NewStore()
		users := store.Users()
		return server.Stores{
			Sessions: store.Sessions(),
			Messages: store.Messages(),
			Users:    users,
		}, users, nil, nil
	default:
		db, err := repositories.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return server.Stores{}, nil, nil, err
		}
		if err := repositories.Migrate(ctx, db); err != nil {
			db.Close()
			return server.Stores{}, nil, nil, err
		}
		users := repositories.NewUserRepository(db)
		return server.Stores{
			Sessions: repositories.NewSessionRepository(db),
			Messages: repositories.NewMessageRepository(db),
			Users:    users,
		}, users, db, nil
	}
}

func openRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func sweepLimiter(ctx context.Context, l *ratelimit.MemoryLimiter, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Cleanup()
		}
	}
}
