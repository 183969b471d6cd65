package main

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/layer-3/panadero/adapters/events"
	"github.com/layer-3/panadero/adapters/hasher"
	"github.com/layer-3/panadero/adapters/otp"
	"github.com/layer-3/panadero/adapters/store"
	"github.com/layer-3/panadero/adapters/tokenizer"
	"github.com/layer-3/panadero/config"
	"github.com/layer-3/panadero/core"
	"github.com/layer-3/panadero/logging"
	"github.com/layer-3/panadero/ports"
	"github.com/layer-3/panadero/service"
	transport "github.com/layer-3/panadero/transport/http"
)

const purgeInterval = 10 * time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	signingKey, err := loadSigningKey(cfg, logger)
	if err != nil {
		return err
	}

	var redisClient *redis.Client
	if cfg.RevocationBackend == "redis" || cfg.EventsBackend == "redis" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to reach redis: %w", err)
		}
	}

	memStore := store.NewMemoryStore()
	memStore.StartJanitor(ctx, purgeInterval)

	var pgStore *store.PostgresStore
	if cfg.StoreBackend == "postgres" || cfg.RevocationBackend == "postgres" {
		if err := store.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		db, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		pgStore = store.NewPostgresStore(db)
	}

	var credentials ports.CredentialStore = memStore
	if cfg.StoreBackend == "postgres" {
		credentials = pgStore
	}

	var revocations ports.Store = memStore
	switch cfg.RevocationBackend {
	case "redis":
		revocations = store.NewRedisStore(redisClient)
	case "postgres":
		revocations = pgStore
		go purgePostgres(ctx, pgStore, logger)
	}

	// Initialize Watermill publisher and subscriber
	wmLogger := events.NewZapLoggerAdapter(logger.Named("watermill"))
	publisher, subscriber, err := newPubSub(cfg, redisClient, wmLogger)
	if err != nil {
		return err
	}
	defer publisher.Close()
	defer subscriber.Close()

	origin := uuid.NewString()
	authService := service.NewAuthService(
		tokenizer.NewJWTTokenizer(signingKey, tokenizer.WithIssuer(cfg.Issuer)),
		revocations,
		credentials,
		hasher.NewBcryptHasher(cfg.BcryptCost),
		otp.NewTOTPProvider(cfg.TOTPIssuer),
		events.NewWatermillPublisher(publisher, origin),
		service.WithTTLs(cfg.AccessTTL, cfg.RefreshTTL, cfg.ChallengeTTL),
		service.WithLogger(logger.Named("auth")),
	)

	listener := events.NewListener(subscriber, origin, logger.Named("events"))
	go func() {
		err := listener.Run(ctx, func(ctx context.Context, event events.LogoutEvent) error {
			revoked := make([]core.Revocation, 0, len(event.Revoked))
			for _, r := range event.Revoked {
				revoked = append(revoked, core.Revocation{Key: r.Key, ExpiresAt: r.ExpiresAt})
			}
			return authService.ApplyRemoteRevocations(ctx, revoked)
		})
		if err != nil {
			logger.Error("logout listener stopped", zap.Error(err))
		}
	}()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := transport.SetupRouter(authService, logger.Named("http"), transport.RouterConfig{
		CORSOrigins:    cfg.AllowedOrigins(),
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr),
			zap.String("store", cfg.StoreBackend),
			zap.String("revocations", cfg.RevocationBackend),
			zap.String("events", cfg.EventsBackend))
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

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loadSigningKey(cfg config.Config, logger *zap.Logger) (*ecdsa.PrivateKey, error) {
	pemBytes, err := cfg.SigningKey()
	if err != nil {
		return nil, err
	}
	if pemBytes != nil {
		return tokenizer.ParseSigningKey(pemBytes)
	}

	if cfg.IsProduction() {
		return nil, fmt.Errorf("SIGNING_KEY_PEM or SIGNING_KEY_FILE is required in production")
	}
	logger.Warn("no signing key configured, generating an ephemeral key")
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

func newPubSub(cfg config.Config, client *redis.Client, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber, error) {
	if cfg.EventsBackend != "redis" {
		ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, logger)
		return ch, ch, nil
	}

	publisher, err := redisstream.NewPublisher(redisstream.PublisherConfig{Client: client}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Redis publisher: %w", err)
	}
	// No consumer group: every instance receives every logout
	subscriber, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{Client: client}, logger)
	if err != nil {
		publisher.Close()
		return nil, nil, fmt.Errorf("failed to create Redis subscriber: %w", err)
	}
	return publisher, subscriber, nil
}

func purgePostgres(ctx context.Context, pg *store.PostgresStore, logger *zap.Logger) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := pg.PurgeExpired(ctx)
			if err != nil {
				logger.Warn("failed to purge revoked tokens", zap.Error(err))
				continue
			}
			logger.Debug("purged revoked tokens", zap.Int64("removed", removed))
		}
	}
}
