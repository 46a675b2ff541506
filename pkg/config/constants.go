package config

// EnvPrefix is handed to envconfig; every field carries its full variable name.
const EnvPrefix = "MARKETPLACE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv             = "MARKETPLACE_APP_ENV"
	EnvPort               = "MARKETPLACE_APP_PORT"
	EnvDBDSN              = "MARKETPLACE_DB_DSN"
	EnvDBHost             = "MARKETPLACE_DB_HOST"
	EnvDBUser             = "MARKETPLACE_DB_USER"
	EnvDBName             = "MARKETPLACE_DB_NAME"
	EnvDBPassword         = "MARKETPLACE_DB_PASSWORD"
	EnvRedisURL           = "MARKETPLACE_REDIS_URL"
	EnvJWTSecret          = "MARKETPLACE_JWT_SECRET"
	EnvJWTIssuer          = "MARKETPLACE_JWT_ISSUER"
	EnvJWTExpMins         = "MARKETPLACE_JWT_EXPIRATION_MINUTES"
	EnvCheckoutSuccessURL = "MARKETPLACE_CHECKOUT_SUCCESS_URL"
	EnvCheckoutCancelURL  = "MARKETPLACE_CHECKOUT_CANCEL_URL"
	EnvCheckoutCurrency   = "MARKETPLACE_CHECKOUT_CURRENCY"
	EnvStripeAPIKey       = "MARKETPLACE_STRIPE_API_KEY"
	EnvStripeSecret       = "MARKETPLACE_STRIPE_SECRET"
	EnvPubSubOrdersTopic  = "MARKETPLACE_PUBSUB_ORDERS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
