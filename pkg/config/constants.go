package config

const EnvPrefix = "FURNIQUE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	DBDriverPostgres = "postgres"
	DBDriverSQLite   = "sqlite"
	DefaultSQLiteDSN = "file:furnique.db?_busy_timeout=5000"

	BrokerPubSub = "pubsub"
	BrokerKafka  = "kafka"
)

const (
	EnvAppEnv      = "FURNIQUE_APP_ENV"
	EnvPort        = "FURNIQUE_APP_PORT"
	EnvDBDSN       = "FURNIQUE_DB_DSN"
	EnvDBDriver    = "FURNIQUE_DB_DRIVER"
	EnvDBHost      = "FURNIQUE_DB_HOST"
	EnvDBUser      = "FURNIQUE_DB_USER"
	EnvDBPassword  = "FURNIQUE_DB_PASSWORD"
	EnvDBName      = "FURNIQUE_DB_NAME"
	EnvRedisURL    = "FURNIQUE_REDIS_URL"
	EnvJWTSecret   = "FURNIQUE_JWT_SECRET"
	EnvJWTIssuer   = "FURNIQUE_JWT_ISSUER"
	EnvJWTExpMins  = "FURNIQUE_JWT_EXPIRATION_MINUTES"
	EnvWebURL      = "FURNIQUE_WEB_URL"
	EnvServerURL   = "FURNIQUE_SERVER_URL"
	EnvDraftTTL    = "FURNIQUE_CHECKOUT_DRAFT_TTL"
	EnvKafkaBroker = "FURNIQUE_KAFKA_BROKERS"

	EnvEventingBroker = "FURNIQUE_EVENTING_BROKER"
	EnvPubSubOrders   = "FURNIQUE_PUBSUB_ORDERS_TOPIC"
	EnvPayOSClientID  = "FURNIQUE_PAYOS_CLIENT_ID"
	EnvPayOSAPIKey    = "FURNIQUE_PAYOS_API_KEY"
	EnvPayOSChecksum  = "FURNIQUE_PAYOS_CHECKSUM_KEY"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
