package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/bounceparty/api/internal/di"
	"github.com/bounceparty/api/internal/domain"
	"github.com/bounceparty/api/internal/handlers"
	"github.com/bounceparty/api/internal/payments"
	"github.com/bounceparty/api/internal/platform/auth"
	"github.com/bounceparty/api/internal/platform/config"
	pfirestore "github.com/bounceparty/api/internal/platform/firestore"
	"github.com/bounceparty/api/internal/platform/idempotency"
	"github.com/bounceparty/api/internal/platform/jobs"
	"github.com/bounceparty/api/internal/platform/maps"
	"github.com/bounceparty/api/internal/platform/observability"
	"github.com/bounceparty/api/internal/platform/secrets"
	"github.com/bounceparty/api/internal/repositories"
	firestoreRepo "github.com/bounceparty/api/internal/repositories/firestore"
	redisRepo "github.com/bounceparty/api/internal/repositories/redis"
	"github.com/bounceparty/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	buildInfo := buildInfoFromEnv(envValues, startedAt)
	serviceLogger := observability.ServiceLogger(logger.Named("services"))

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore, pfirestore.WithClientOptions(gcpClientOptions(envValues)...))
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}

	var (
		checks    []repositories.DependencyCheck
		closers   []firestoreRepo.RegistryOption
		infra     = di.Infrastructure{Build: buildInfo, Clock: time.Now, Logger: serviceLogger}
		idemStore idempotency.Store
	)

	if !cfg.Redis.Disabled {
		redisClient := redisRepo.NewClient(cfg.Redis)
		redisStore, err := redisRepo.NewStore(redisClient, cfg.Redis.KeyPrefix)
		if err != nil {
			logger.Fatal("failed to initialise redis store", zap.Error(err))
		}
		distanceCache, err := redisRepo.NewDistanceCache(redisStore)
		if err != nil {
			logger.Fatal("failed to initialise distance cache", zap.Error(err))
		}
		redisIdem, err := idempotency.NewRedisStore(redisClient, cfg.Redis.KeyPrefix)
		if err != nil {
			logger.Fatal("failed to initialise idempotency store", zap.Error(err))
		}
		infra.CartStore = redisStore
		infra.DistanceCache = distanceCache
		idemStore = redisIdem
		checks = append(checks, repositories.DependencyCheck{
			Name:     "redis",
			Features: []string{domain.FeatureCarts, domain.FeatureDistanceCache, domain.FeatureIdempotency},
			Check:    redisStore.Ping,
		})
		closers = append(closers, firestoreRepo.WithCloser(func(context.Context) error {
			return redisClient.Close()
		}))
	} else {
		logger.Warn("redis disabled; carts unavailable and idempotency keys held in memory")
		idemStore = idempotency.NewMemoryStore()
	}

	if strings.TrimSpace(cfg.Maps.APIKey) != "" {
		mapsClient, err := maps.New(cfg.Maps)
		if err != nil {
			logger.Fatal("failed to initialise maps client", zap.Error(err))
		}
		infra.Routes = mapsClient
		infra.Geocoder = mapsClient
	} else {
		logger.Warn("maps api key not configured; travel distance uses straight-line estimates")
	}

	if projectID := strings.TrimSpace(cfg.PubSub.ProjectID); projectID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, projectID, gcpClientOptions(envValues)...)
		if err != nil {
			logger.Fatal("failed to initialise pubsub client", zap.Error(err))
		}
		topic := pubsubClient.Topic(cfg.PubSub.OrderEventsTopic)
		publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise order event publisher", zap.Error(err))
		}
		infra.Events = publisher
		checks = append(checks, repositories.DependencyCheck{
			Name:     "pubsub",
			Features: []string{domain.FeatureOrderEvents},
			Check: func(ctx context.Context) error {
				ok, err := topic.Exists(ctx)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("topic %s does not exist", cfg.PubSub.OrderEventsTopic)
				}
				return nil
			},
		})
		closers = append(closers, firestoreRepo.WithCloser(func(context.Context) error {
			topic.Stop()
			return pubsubClient.Close()
		}))
	}

	if strings.TrimSpace(cfg.Stripe.APIKey) != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:        cfg.Stripe.APIKey,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Logger:        observability.ServiceLogger(logger.Named("payments")),
			Clock:         time.Now,
		})
		if err != nil {
			logger.Fatal("failed to initialise stripe provider", zap.Error(err))
		}
		infra.Payments = stripeProvider
	} else {
		logger.Warn("stripe api key not configured; checkout disabled")
	}

	if check, ok := secretManagerCheck(fetcher, envValues); ok {
		checks = append(checks, check)
	}

	registryOpts := append([]firestoreRepo.RegistryOption{firestoreRepo.WithHealthChecks(checks...)}, closers...)
	registry, err := firestoreRepo.NewRegistry(firestoreProvider, registryOpts...)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, registry, infra)
	if err != nil {
		logger.Fatal("failed to initialise services", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	portalTokens, err := auth.NewPortalTokens(cfg.Portal.TokenSecret, cfg.Portal.Issuer, cfg.Portal.TokenTTL)
	if err != nil {
		logger.Fatal("failed to initialise portal tokens", zap.Error(err))
	}
	var verifierOpts []auth.FirebaseOption
	if buildInfo.Environment != "local" {
		verifierOpts = append(verifierOpts, auth.WithRevocationCheck())
	}
	firebaseVerifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase, verifierOpts...)
	if err != nil {
		logger.Fatal("failed to initialise firebase verifier", zap.Error(err))
	}
	authenticator := auth.NewAuthenticator(firebaseVerifier)

	idempotencyMiddleware := idempotency.Middleware(
		idemStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithMethods(http.MethodPost),
		idempotency.WithLogger(logger.Named("idempotency")),
	)

	svc := container.Services
	quoteHandlers := handlers.NewQuoteHandlers(svc.Quotes, svc.Carts,
		handlers.WithQuoteRateLimit(cfg.Quotes.RateLimit, cfg.Quotes.RateWindow, time.Now),
	)
	cartHandlers := handlers.NewCartHandlers(svc.Carts)
	orderHandlers := handlers.NewOrderHandlers(handlers.OrderHandlersDeps{
		Orders:      svc.Orders,
		Checkout:    svc.Checkout,
		Carts:       svc.Carts,
		Portal:      portalTokens,
		Idempotency: idempotencyMiddleware,
	})
	portalHandlers := handlers.NewPortalHandlers(svc.Orders, portalTokens.RequirePortalToken("orderID"))
	adminHandlers := handlers.NewAdminHandlers(svc.Orders, svc.PricingRules)

	var webhookHandlers *handlers.WebhookHandlers
	if container.Payments != nil {
		webhookHandlers = handlers.NewWebhookHandlers(container.Payments, svc.Checkout)
	}

	projectID := traceProjectID(cfg)
	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(projectID),
		observability.RecoveryMiddleware(logger.Named("http")),
		observability.RequestLoggerMiddleware(),
	}

	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithHealthBuildInfo(buildInfo),
		handlers.WithHealthSystemService(svc.System),
	)

	opts := []handlers.Option{
		handlers.WithMiddlewares(middlewares...),
		handlers.WithRequestTimeout(cfg.Server.WriteTimeout),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithQuoteRoutes(quoteHandlers.Routes),
		handlers.WithCartRoutes(cartHandlers.Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithPortalRoutes(portalHandlers.Routes),
		handlers.WithAdminRoutes(adminHandlers.Routes),
		handlers.WithAdminMiddlewares(authenticator.RequireFirebaseAuth(auth.RoleAdmin)),
	}
	if webhookHandlers != nil {
		opts = append(opts, handlers.WithWebhookRoutes(webhookHandlers.Routes))
	}

	router := handlers.NewRouter(opts...)
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("bounceparty api listening", zap.String("version", buildInfo.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func buildInfoFromEnv(env map[string]string, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(env["API_BUILD_VERSION"])
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(env["API_BUILD_COMMIT_SHA"])
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.ToLower(strings.TrimSpace(env["API_ENVIRONMENT"]))
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	defaultProject := strings.TrimSpace(env["API_SECRET_DEFAULT_PROJECT_ID"])
	if defaultProject == "" {
		defaultProject = strings.TrimSpace(env["API_FIREBASE_PROJECT_ID"])
	}
	fallbackPath := strings.TrimSpace(env["API_SECRET_FALLBACK_FILE"])
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if defaultProject != "" {
		opts = append(opts, secrets.WithDefaultProject(defaultProject))
	}
	if clientOpts := gcpClientOptions(env); len(clientOpts) > 0 {
		opts = append(opts, secrets.WithClientOptions(clientOpts...))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the credentials the process refuses to start without. Deployed
// environments must carry the PSP keys; local runs only need the portal signing secret.
func requiredSecretNames(env map[string]string) []string {
	required := []string{"Portal.TokenSecret"}
	switch strings.ToLower(strings.TrimSpace(env["API_ENVIRONMENT"])) {
	case "", "local", "test":
		return required
	}
	return append(required, "Stripe.APIKey", "Stripe.WebhookSecret", "Maps.APIKey")
}

// gcpClientOptions authenticates Google Cloud clients with the service account file used for
// Firebase, when one is configured. Otherwise application default credentials apply.
func gcpClientOptions(env map[string]string) []option.ClientOption {
	if credentialsFile := strings.TrimSpace(env["API_FIREBASE_CREDENTIALS_FILE"]); credentialsFile != "" {
		return []option.ClientOption{option.WithCredentialsFile(credentialsFile)}
	}
	return nil
}

// secretManagerCheck probes Secret Manager with a sentinel reference. NotFound proves the
// API is reachable and authorised.
func secretManagerCheck(fetcher *secrets.Fetcher, env map[string]string) (repositories.DependencyCheck, bool) {
	ref := strings.TrimSpace(env["API_SECRET_HEALTH_REF"])
	if fetcher == nil || ref == "" {
		return repositories.DependencyCheck{}, false
	}
	return repositories.DependencyCheck{
		Name:     "secretManager",
		Features: []string{domain.FeatureSecrets},
		Timeout:  time.Second,
		Check: func(ctx context.Context) error {
			_, err := fetcher.Resolve(ctx, ref)
			if err == nil {
				return nil
			}
			if status.Code(errors.Unwrap(err)) == codes.NotFound {
				return nil
			}
			return err
		},
	}, true
}
