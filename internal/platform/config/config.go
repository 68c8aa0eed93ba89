package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile            = ".env"
	defaultPort               = "8080"
	defaultReadTimeout        = 15 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultIdleTimeout        = 120 * time.Second
	defaultLogLevel           = "info"
	defaultMapsTimeout        = 4 * time.Second
	defaultRedisAddr          = "localhost:6379"
	defaultRedisPrefix        = "bounce"
	defaultCartTTL            = 14 * 24 * time.Hour
	defaultDistanceTTL        = 30 * 24 * time.Hour
	defaultOrderEventsTopic   = "order-events"
	defaultPortalTokenTTL     = 30 * 24 * time.Hour
	defaultPortalIssuer       = "bounceparty-api"
	defaultStripeSessionTTL   = time.Hour
	defaultPollInitial        = 2 * time.Second
	defaultPollMax            = 15 * time.Second
	defaultPollMaxAttempts    = 40
	defaultIdempotencyHeader  = "Idempotency-Key"
	defaultIdempotencyTTL     = 24 * time.Hour
	defaultQuoteRateLimit     = 30
	defaultQuoteRateWindow    = time.Minute
	defaultBusinessTimezone   = "America/Detroit"
	defaultCheckoutSuccessURL = "http://localhost:5173/checkout/success"
	defaultCheckoutCancelURL  = "http://localhost:5173/checkout"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Log         LogConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	Redis       RedisConfig
	PubSub      PubSubConfig
	Stripe      StripeConfig
	Maps        MapsConfig
	Business    BusinessConfig
	Portal      PortalConfig
	Polling     PaymentPollingConfig
	Idempotency IdempotencyConfig
	Quotes      QuoteConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type LogConfig struct {
	Level string
}

// FirebaseConfig stores Firebase project settings used to verify staff ID tokens.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	DatabaseID   string
	EmulatorHost string
}

// RedisConfig backs session carts, the distance cache, and idempotency keys.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	TLS         bool
	KeyPrefix   string
	CartTTL     time.Duration
	DistanceTTL time.Duration
	Disabled    bool
}

type PubSubConfig struct {
	ProjectID        string
	OrderEventsTopic string
}

// StripeConfig collects hosted checkout credentials and defaults.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	SessionTTL    time.Duration
}

type MapsConfig struct {
	APIKey  string
	Timeout time.Duration
}

// BusinessConfig locates the warehouse every travel distance is measured from.
type BusinessConfig struct {
	BaseLat     float64
	BaseLng     float64
	BaseAddress string
	Timezone    string
}

// PortalConfig signs the links customers use to view and approve their orders.
type PortalConfig struct {
	TokenSecret string
	TokenTTL    time.Duration
	Issuer      string
}

// PaymentPollingConfig bounds how long checkout waits on the payment processor.
type PaymentPollingConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header string
	TTL    time.Duration
}

// QuoteConfig throttles storefront quote requests. A zero RateLimit disables throttling.
type QuoteConfig struct {
	RateLimit  int
	RateWindow time.Duration
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to empty values.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames hashes the field names so logs do not reveal which credential is absent.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

// Names returns the missing field names.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.names...)
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map that takes precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "Stripe.APIKey") that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// EnvironmentValues returns the merged environment (dotenv < process env < explicit map) so callers
// can build the secret fetcher before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = map[string]string{}
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if ok && strings.TrimSpace(key) != "" {
				values[key] = value
			}
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the application configuration from defaults, .env overrides, environment
// variables, and Secret Manager references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Log: LogConfig{
			Level: strings.ToLower(stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel)),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			DatabaseID:   stringWithDefault(lookup, "API_FIRESTORE_DATABASE_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		Redis: RedisConfig{
			Addr:        stringWithDefault(lookup, "API_REDIS_ADDR", defaultRedisAddr),
			Password:    stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:          intWithDefault(lookup, "API_REDIS_DB", 0),
			TLS:         boolWithDefault(lookup, "API_REDIS_TLS", false),
			KeyPrefix:   stringWithDefault(lookup, "API_REDIS_KEY_PREFIX", defaultRedisPrefix),
			CartTTL:     durationWithDefault(lookup, "API_REDIS_CART_TTL", defaultCartTTL),
			DistanceTTL: durationWithDefault(lookup, "API_REDIS_DISTANCE_TTL", defaultDistanceTTL),
			Disabled:    boolWithDefault(lookup, "API_REDIS_DISABLED", false),
		},
		PubSub: PubSubConfig{
			ProjectID:        stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			OrderEventsTopic: stringWithDefault(lookup, "API_PUBSUB_ORDER_EVENTS_TOPIC", defaultOrderEventsTopic),
		},
		Stripe: StripeConfig{
			APIKey:        stringWithDefault(lookup, "API_STRIPE_API_KEY", ""),
			WebhookSecret: stringWithDefault(lookup, "API_STRIPE_WEBHOOK_SECRET", ""),
			SuccessURL:    stringWithDefault(lookup, "API_STRIPE_SUCCESS_URL", defaultCheckoutSuccessURL),
			CancelURL:     stringWithDefault(lookup, "API_STRIPE_CANCEL_URL", defaultCheckoutCancelURL),
			SessionTTL:    durationWithDefault(lookup, "API_STRIPE_SESSION_TTL", defaultStripeSessionTTL),
		},
		Maps: MapsConfig{
			APIKey:  stringWithDefault(lookup, "API_MAPS_API_KEY", ""),
			Timeout: durationWithDefault(lookup, "API_MAPS_TIMEOUT", defaultMapsTimeout),
		},
		Business: BusinessConfig{
			BaseLat:     floatWithDefault(lookup, "API_BUSINESS_BASE_LAT", 0),
			BaseLng:     floatWithDefault(lookup, "API_BUSINESS_BASE_LNG", 0),
			BaseAddress: stringWithDefault(lookup, "API_BUSINESS_BASE_ADDRESS", ""),
			Timezone:    stringWithDefault(lookup, "API_BUSINESS_TIMEZONE", defaultBusinessTimezone),
		},
		Portal: PortalConfig{
			TokenSecret: stringWithDefault(lookup, "API_PORTAL_TOKEN_SECRET", ""),
			TokenTTL:    durationWithDefault(lookup, "API_PORTAL_TOKEN_TTL", defaultPortalTokenTTL),
			Issuer:      stringWithDefault(lookup, "API_PORTAL_TOKEN_ISSUER", defaultPortalIssuer),
		},
		Polling: PaymentPollingConfig{
			InitialInterval: durationWithDefault(lookup, "API_PAYMENT_POLL_INITIAL", defaultPollInitial),
			MaxInterval:     durationWithDefault(lookup, "API_PAYMENT_POLL_MAX", defaultPollMax),
			MaxAttempts:     intWithDefault(lookup, "API_PAYMENT_POLL_MAX_ATTEMPTS", defaultPollMaxAttempts),
		},
		Idempotency: IdempotencyConfig{
			Header: stringWithDefault(lookup, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:    durationWithDefault(lookup, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
		},
		Quotes: QuoteConfig{
			RateLimit:  intWithDefault(lookup, "API_QUOTE_RATE_LIMIT", defaultQuoteRateLimit),
			RateWindow: durationWithDefault(lookup, "API_QUOTE_RATE_WINDOW", defaultQuoteRateWindow),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Stripe.APIKey", &cfg.Stripe.APIKey},
		{"Stripe.WebhookSecret", &cfg.Stripe.WebhookSecret},
		{"Maps.APIKey", &cfg.Maps.APIKey},
		{"Portal.TokenSecret", &cfg.Portal.TokenSecret},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	var missing []string
	seen := make(map[string]struct{})
	for _, name := range options.requiredSecrets {
		name = strings.TrimSpace(name)
		if _, dup := seen[name]; name == "" || dup {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return Config{}, &MissingSecretsError{names: missing}
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "secret://") && !strings.HasPrefix(trimmed, "sm://") {
		return value, nil
	}
	ref := trimmed
	if strings.HasPrefix(ref, "sm://") {
		ref = "secret://" + strings.TrimPrefix(ref, "sm://")
	}
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		invalid = append(invalid, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		invalid = append(invalid, "Firestore.ProjectID")
	}
	// A base address alone is enough; the origin is geocoded at startup.
	requireCoords := strings.TrimSpace(cfg.Business.BaseAddress) == ""
	if (requireCoords && cfg.Business.BaseLat == 0) || math.Abs(cfg.Business.BaseLat) > 90 {
		invalid = append(invalid, "Business.BaseLat")
	}
	if (requireCoords && cfg.Business.BaseLng == 0) || math.Abs(cfg.Business.BaseLng) > 180 {
		invalid = append(invalid, "Business.BaseLng")
	}
	if _, err := time.LoadLocation(cfg.Business.Timezone); err != nil {
		invalid = append(invalid, "Business.Timezone")
	}
	if cfg.Polling.InitialInterval <= 0 || cfg.Polling.MaxInterval < cfg.Polling.InitialInterval {
		invalid = append(invalid, "Polling.MaxInterval")
	}
	if cfg.Polling.MaxAttempts <= 0 {
		invalid = append(invalid, "Polling.MaxAttempts")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}
	if cfg.Quotes.RateLimit < 0 || (cfg.Quotes.RateLimit > 0 && cfg.Quotes.RateWindow <= 0) {
		invalid = append(invalid, "Quotes.RateWindow")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

// loadDotEnv reads KEY=VALUE pairs from path. A missing file is not an error.
func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func floatWithDefault(lookup func(string) (string, bool), key string, fallback float64) float64 {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
