package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/bandafrc/api/internal/agenda"
	"github.com/bandafrc/api/internal/auth"
	"github.com/bandafrc/api/internal/config"
	"github.com/bandafrc/api/internal/db"
	internalhttp "github.com/bandafrc/api/internal/http"
	"github.com/bandafrc/api/internal/realtime"
	"github.com/bandafrc/api/internal/repertorio"
	"github.com/bandafrc/api/internal/repo"
	"github.com/bandafrc/api/internal/service"
	"github.com/bandafrc/api/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api encerrada com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("db: %w", err)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("redis parse: %w", err)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	avatares, partiturasBlobs, err := buildBlobs(cfg)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	broker := realtime.NewBroker(redisClient, log.Logger)
	broker.Start(ctx)
	defer broker.Stop()

	repository := repo.New(pool)
	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTAccessTTL)
	authService := service.NewAuthService(repository, redisClient, jwtManager, cfg.JWTRefreshTTL)

	agendaService := agenda.NewService(agenda.NewRepository(pool), agenda.NewRedisCache(redisClient), broker)
	repertorioService := repertorio.NewService(repertorio.NewRepository(pool), partiturasBlobs)

	handler := internalhttp.NewRouter(internalhttp.RouterDeps{
		Config:     cfg,
		JWT:        jwtManager,
		Auth:       internalhttp.NewAuthHandler(authService),
		Perfil:     internalhttp.NewPerfilHandler(repository, avatares, cfg.MaxImagemBytes),
		Agenda:     agenda.NewHandler(agendaService),
		Repertorio: repertorio.NewHandler(repertorioService, cfg.MaxPDFBytes),
		DB:         pool,
		Redis:      redisClient,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("API ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("encerrando...")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildBlobs instancia um cliente por bucket conforme o provedor escolhido.
func buildBlobs(cfg *config.Config) (avatares, partituras storage.Blobs, err error) {
	switch cfg.Storage.Provider {
	case "s3", "r2":
		avatares, err = storage.NewS3Blobs(storage.S3Config{
			Endpoint:     cfg.Storage.S3Endpoint,
			Region:       cfg.Storage.S3Region,
			Bucket:       cfg.Storage.BucketAvatars,
			AccessKey:    cfg.Storage.S3AccessKey,
			SecretKey:    cfg.Storage.S3SecretKey,
			PublicDomain: cfg.Storage.S3PublicURL,
		})
		if err != nil {
			return nil, nil, err
		}
		partituras, err = storage.NewS3Blobs(storage.S3Config{
			Endpoint:     cfg.Storage.S3Endpoint,
			Region:       cfg.Storage.S3Region,
			Bucket:       cfg.Storage.BucketRepertorio,
			AccessKey:    cfg.Storage.S3AccessKey,
			SecretKey:    cfg.Storage.S3SecretKey,
			PublicDomain: cfg.Storage.S3PublicURL,
		})
		if err != nil {
			return nil, nil, err
		}
		return avatares, partituras, nil
	case "noop", "":
		log.Warn().Msg("storage noop ativo: uploads serão recusados")
		return storage.NoopBlobs{}, storage.NoopBlobs{}, nil
	default:
		return nil, nil, fmt.Errorf("provedor de storage desconhecido: %q", cfg.Storage.Provider)
	}
}
