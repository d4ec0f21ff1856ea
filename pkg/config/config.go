package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
	Outbox       OutboxConfig
	Cron         CronConfig
	Checkout     CheckoutConfig
	PayOS        PayOSConfig
	MoMo         MoMoConfig
	Square       SquareConfig
	Stripe       StripeConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	cfg.Eventing.Broker = strings.ToLower(strings.TrimSpace(cfg.Eventing.Broker))
	if err := cfg.Eventing.validate(); err != nil {
		return nil, err
	}
	if cfg.App.IsProd() {
		if err := cfg.validateProduction(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// validateProduction rejects settings that only make sense locally.
func (c *Config) validateProduction() error {
	switch {
	case c.DB.UsesSQLite():
		return fmt.Errorf("sqlite is not supported in %s", c.App.Env)
	case c.Stripe.Enabled() && c.Stripe.Environment() != "live":
		return fmt.Errorf("%s requires FURNIQUE_STRIPE_ENV=live", c.App.Env)
	case c.Square.Enabled() && !strings.EqualFold(c.Square.Env, "production"):
		return fmt.Errorf("%s requires FURNIQUE_SQUARE_ENV=production", c.App.Env)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"FURNIQUE_APP_ENV" required:"true"`
	Port         string `envconfig:"FURNIQUE_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FURNIQUE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FURNIQUE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

type ServiceConfig struct {
	Kind string `envconfig:"FURNIQUE_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FURNIQUE_DB_DSN"`
	Driver string `envconfig:"FURNIQUE_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FURNIQUE_DB_HOST"`
	LegacyPort     int    `envconfig:"FURNIQUE_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FURNIQUE_DB_USER"`
	LegacyPassword string `envconfig:"FURNIQUE_DB_PASSWORD"`
	LegacyName     string `envconfig:"FURNIQUE_DB_NAME"`
	LegacySSLMode  string `envconfig:"FURNIQUE_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FURNIQUE_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FURNIQUE_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FURNIQUE_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FURNIQUE_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	// SlowQuery logs statements slower than this; zero disables query logging.
	SlowQuery time.Duration `envconfig:"FURNIQUE_DB_SLOW_QUERY" default:"500ms"`
}

// UsesSQLite reports whether the configured driver is the embedded sqlite one.
func (db DBConfig) UsesSQLite() bool {
	return strings.EqualFold(strings.TrimSpace(db.Driver), DBDriverSQLite)
}

type RedisConfig struct {
	URL          string        `envconfig:"FURNIQUE_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FURNIQUE_REDIS_ADDR"`
	Password     string        `envconfig:"FURNIQUE_REDIS_PASSWORD"`
	DB           int           `envconfig:"FURNIQUE_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FURNIQUE_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FURNIQUE_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FURNIQUE_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FURNIQUE_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FURNIQUE_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"FURNIQUE_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"FURNIQUE_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"FURNIQUE_JWT_EXPIRATION_MINUTES" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"FURNIQUE_AUTO_MIGRATE" default:"false"`
	// CheckoutRateLimit caps checkout attempts per customer per minute. Zero disables it.
	CheckoutRateLimit int `envconfig:"FURNIQUE_CHECKOUT_RATE_LIMIT" default:"10"`
}

type EventingConfig struct {
	Broker              string        `envconfig:"FURNIQUE_EVENTING_BROKER" default:"pubsub"`
	WebhookDeliveryTTL  time.Duration `envconfig:"FURNIQUE_EVENTING_WEBHOOK_DELIVERY_TTL" default:"72h"`
	ConsumerIdempotency time.Duration `envconfig:"FURNIQUE_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

func (e EventingConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(e.Broker)) {
	case BrokerPubSub, BrokerKafka:
		return nil
	default:
		return fmt.Errorf("%s must be one of %q or %q", EnvEventingBroker, BrokerPubSub, BrokerKafka)
	}
}

// UsesKafka reports whether outbox events are published to Kafka instead of Pub/Sub.
func (e EventingConfig) UsesKafka() bool {
	return strings.EqualFold(strings.TrimSpace(e.Broker), BrokerKafka)
}

type GCPConfig struct {
	ProjectID       string `envconfig:"FURNIQUE_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"FURNIQUE_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"FURNIQUE_PUBSUB_ORDERS_TOPIC" default:"furnique-order-events"`
	PaymentsTopic            string `envconfig:"FURNIQUE_PUBSUB_PAYMENTS_TOPIC" default:"furnique-payment-events"`
	NotificationTopic        string `envconfig:"FURNIQUE_PUBSUB_NOTIFICATION_TOPIC" default:"furnique-notifications"`
	NotificationSubscription string `envconfig:"FURNIQUE_PUBSUB_NOTIFICATION_SUBSCRIPTION" default:"furnique-notifications-worker"`
}

type KafkaConfig struct {
	Brokers      []string      `envconfig:"FURNIQUE_KAFKA_BROKERS" default:"localhost:9092"`
	WriteTimeout time.Duration `envconfig:"FURNIQUE_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

type OutboxConfig struct {
	BatchSize      int           `envconfig:"FURNIQUE_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int           `envconfig:"FURNIQUE_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int           `envconfig:"FURNIQUE_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Retention      time.Duration `envconfig:"FURNIQUE_OUTBOX_RETENTION" default:"720h"`
	RetentionBatch int           `envconfig:"FURNIQUE_OUTBOX_RETENTION_BATCH" default:"1000"`
}

type CronConfig struct {
	Interval       time.Duration `envconfig:"FURNIQUE_CRON_INTERVAL" default:"5m"`
	LockTTL        time.Duration `envconfig:"FURNIQUE_CRON_LOCK_TTL" default:"10m"`
	DraftBatchSize int           `envconfig:"FURNIQUE_CRON_DRAFT_BATCH_SIZE" default:"100"`
}

type CheckoutConfig struct {
	WebURL           string        `envconfig:"FURNIQUE_WEB_URL" required:"true"`
	ServerURL        string        `envconfig:"FURNIQUE_SERVER_URL" required:"true"`
	Currency         string        `envconfig:"FURNIQUE_CHECKOUT_CURRENCY" default:"VND"`
	DraftTTL         time.Duration `envconfig:"FURNIQUE_CHECKOUT_DRAFT_TTL" default:"30m"`
	OrderCodeRetries int           `envconfig:"FURNIQUE_CHECKOUT_ORDER_CODE_ATTEMPTS" default:"3"`
	GatewayTimeout   time.Duration `envconfig:"FURNIQUE_GATEWAY_TIMEOUT" default:"10s"`
}

// CartURL is where customers land after abandoning a hosted checkout.
func (c CheckoutConfig) CartURL() string {
	return joinURL(c.WebURL, "cart")
}

// OrdersURL is where customers land after paying for an order.
func (c CheckoutConfig) OrdersURL() string {
	return joinURL(c.WebURL, "customer/orders")
}

// CreditsURL is where customers land after buying credits.
func (c CheckoutConfig) CreditsURL() string {
	return joinURL(c.WebURL, "ai")
}

// WebhookURL returns the public callback address for a gateway.
func (c CheckoutConfig) WebhookURL(gateway string) string {
	return joinURL(c.ServerURL, "api/v1/webhooks/"+strings.ToLower(gateway))
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

type PayOSConfig struct {
	ClientID    string `envconfig:"FURNIQUE_PAYOS_CLIENT_ID"`
	APIKey      string `envconfig:"FURNIQUE_PAYOS_API_KEY"`
	ChecksumKey string `envconfig:"FURNIQUE_PAYOS_CHECKSUM_KEY"`
	BaseURL     string `envconfig:"FURNIQUE_PAYOS_BASE_URL" default:"https://api-merchant.payos.vn"`
}

// Enabled reports whether PayOS credentials are present.
func (p PayOSConfig) Enabled() bool {
	return p.ClientID != "" && p.APIKey != "" && p.ChecksumKey != ""
}

type MoMoConfig struct {
	PartnerCode string `envconfig:"FURNIQUE_MOMO_PARTNER_CODE"`
	AccessKey   string `envconfig:"FURNIQUE_MOMO_ACCESS_KEY"`
	SecretKey   string `envconfig:"FURNIQUE_MOMO_SECRET_KEY"`
	Endpoint    string `envconfig:"FURNIQUE_MOMO_ENDPOINT" default:"https://test-payment.momo.vn"`
	RequestType string `envconfig:"FURNIQUE_MOMO_REQUEST_TYPE" default:"captureWallet"`
	Lang        string `envconfig:"FURNIQUE_MOMO_LANG" default:"vi"`
}

func (m MoMoConfig) Enabled() bool {
	return m.PartnerCode != "" && m.AccessKey != "" && m.SecretKey != ""
}

type SquareConfig struct {
	AccessToken     string `envconfig:"FURNIQUE_SQUARE_ACCESS_TOKEN"`
	WebhookSecret   string `envconfig:"FURNIQUE_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	LocationID      string `envconfig:"FURNIQUE_SQUARE_LOCATION_ID"`
	Env             string `envconfig:"FURNIQUE_SQUARE_ENV" default:"sandbox"`
	NotificationURL string `envconfig:"FURNIQUE_SQUARE_NOTIFICATION_URL"`
}

func (s SquareConfig) Enabled() bool {
	return s.AccessToken != "" && s.WebhookSecret != ""
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "sandbox"
	}
	return env
}

type StripeConfig struct {
	APIKey string `envconfig:"FURNIQUE_STRIPE_API_KEY"`
	Secret string `envconfig:"FURNIQUE_STRIPE_SECRET"`
	Env    string `envconfig:"FURNIQUE_STRIPE_ENV" default:"test"`
}

func (s StripeConfig) Enabled() bool {
	return s.APIKey != "" && s.Secret != ""
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}
	if db.UsesSQLite() {
		db.DSN = DefaultSQLiteDSN
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
