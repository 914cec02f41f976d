package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	kms "cloud.google.com/go/kms/apiv1"
	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/auth"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/keymgmt"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/chain"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/config"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/custody"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/middleware"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/pubsub"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/store"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/pkg/ws"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/relay"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/session"
	"github.com/kollektive-hackathon/walletrelay-backend/internal/wallet"
	wsroutes "github.com/kollektive-hackathon/walletrelay-backend/internal/ws"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const shutdownTimeout = 15 * time.Second

func main() {
	setupViper()
	setupZerolog()

	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	setupLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	walletStore := setupStore(cfg.Store)

	signer, closeSigner := setupSigner(ctx, cfg.Custody)
	defer closeSigner()

	custodyClient, err := custody.NewClient(custody.Config{
		BaseUrl:   cfg.Custody.BaseUrl,
		AppId:     cfg.Custody.AppId,
		AppSecret: cfg.Custody.AppSecret,
		Signer:    signer,
		Timeout:   cfg.Custody.Timeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize custody client")
	}

	verifier := setupVerifier(ctx, cfg, custodyClient)

	publisher, closePublisher := setupPublisher(ctx, cfg.PubSubProject)
	defer closePublisher()

	balances, err := chain.DialBalanceReader(ctx, cfg.ChainRpcUrl, cfg.ChainTimeout)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to dial chain rpc")
	}
	defer balances.Close()

	hub := ws.NewNotificationHub()
	wallets := wallet.NewService(walletStore, custodyClient, balances, publisher, hub)
	relayer := relay.NewService(walletStore, custodyClient, publisher, cfg.ChainId)
	sessions := session.NewAdapter(wallets)

	apiRouter := setupApiRouter(cfg, auth.NewGate(verifier), hub, wallets, relayer, sessions)

	server := &http.Server{
		Addr:         cfg.Port,
		Handler:      apiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.Custody.Timeout + 10*time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Port).Int64("chainId", cfg.ChainId).Msg("Starting wallet relay api")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server stopped unexpectedly")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

func setupStore(cfg config.StoreConfig) store.Store {
	switch cfg.Driver {
	case config.StoreDriverSupabase:
		s, err := store.NewSupabaseStore(store.SupabaseConfig{
			Url:     cfg.SupabaseUrl,
			ApiKey:  cfg.SupabaseKey,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize supabase store")
		}
		return s
	case config.StoreDriverMemory:
		log.Warn().Msg("Using in-memory wallet store, mappings are lost on restart")
		return store.NewMemoryStore()
	default:
		s := store.NewGormStore(setupDb(cfg.DbUrl)).WithTimeout(cfg.Timeout)
		if cfg.AutoMigrate {
			if err := s.Migrate(); err != nil {
				log.Fatal().Err(err).Msg("Failed to migrate database")
			}
		}
		return s
	}
}

func setupDb(dbUrl string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dbUrl), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	sqlDb, err := db.DB()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to get database handle")
	}

	sqlDb.SetMaxOpenConns(50)
	sqlDb.SetConnMaxLifetime(time.Minute * 10)

	return db
}

func setupSigner(ctx context.Context, cfg config.CustodyConfig) (custody.AuthorizationSigner, func()) {
	if cfg.AuthorizationKey != "" {
		signer, err := custody.NewLocalSigner(cfg.AuthorizationKey)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid custody authorization key")
		}
		return signer, func() {}
	}

	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize kms client")
	}
	closeClient := func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close kms client")
		}
	}

	var key *keymgmt.AuthorizationKey
	if cfg.AuthorizationKmsKey != "" {
		key, err = keymgmt.GetAuthorizationKey(ctx, client, cfg.AuthorizationKmsKey, cfg.Timeout)
	} else {
		key, err = keymgmt.CreateAuthorizationKey(ctx, client, cfg.AuthorizationKmsKeyRing, cfg.Timeout)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load custody authorization key")
	}

	// The provider needs the public key registered as a quorum signer before
	// wallet calls are accepted.
	log.Info().
		Str("keyVersion", key.VersionName).
		Str("publicKey", key.Base64).
		Msg("Custody authorization key ready")

	return custody.NewKMSSigner(client, key.VersionName), closeClient
}

func setupVerifier(ctx context.Context, cfg *config.Config, users *custody.Client) auth.Verifier {
	if cfg.Auth.Provider == config.AuthProviderFirebase {
		verifier, err := auth.NewFirebaseVerifier(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize firebase verifier")
		}
		return verifier
	}

	verifier, err := auth.NewPrivyVerifier(cfg.Custody.AppId, cfg.Auth.PrivyVerificationKey, users)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize privy verifier")
	}
	return verifier
}

func setupPublisher(ctx context.Context, projectId string) (pubsub.Publisher, func()) {
	if projectId == "" {
		log.Info().Msg("PUBSUB_PROJECT_ID not set, domain events are not published")
		return pubsub.NoopPublisher{}, func() {}
	}

	publisher, err := pubsub.NewGooglePublisher(ctx, projectId)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize pub sub")
	}
	return publisher, func() {
		if err := publisher.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close pub sub client")
		}
	}
}

func setupApiRouter(
	cfg *config.Config,
	gate *auth.Gate,
	hub *ws.WebSocketNotificationHub,
	wallets *wallet.Service,
	relayer *relay.Service,
	sessions *session.Adapter,
) *gin.Engine {
	apiRouter := gin.New()
	apiRouter.Use(gin.Logger())
	apiRouter.HandleMethodNotAllowed = true

	middleware.RegisterGlobalMiddleware(apiRouter, cfg.AllowedOrigins)

	routerGroup := apiRouter.Group("/api")
	routerGroup.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "chainId": cfg.ChainId})
	})

	verifyAuthToken := middleware.VerifyAuthToken(gate)

	wallet.RegisterRoutes(routerGroup, wallets, verifyAuthToken)
	relay.RegisterRoutes(routerGroup, relayer, verifyAuthToken)
	session.RegisterRoutes(routerGroup, sessions, verifyAuthToken)
	wsroutes.RegisterRoutes(routerGroup, hub, wallets, verifyAuthToken)

	if cfg.Auth.Provider == config.AuthProviderFirebase {
		auth.RegisterRoutes(routerGroup, auth.IdentityPlatformConfig{
			ApiKey:  cfg.Auth.GoogleProjectApiKey,
			Timeout: cfg.Custody.Timeout,
		}, wallets)
	}

	return apiRouter
}

func setupViper() {
	viper.AutomaticEnv()
	viper.SetConfigFile("./.env")
	if err := viper.ReadInConfig(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			log.Fatal().Err(err).Msg("Failed to read .env")
		}
	}
}

func setupZerolog() {
	zerolog.LevelFieldName = "severity"
	zerolog.TimestampFieldName = "time"
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

func setupLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		log.Warn().Str("level", level).Msg("Unknown LOG_LEVEL, using info")
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
	if parsed == zerolog.DebugLevel || parsed == zerolog.TraceLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}
