package config

// EnvPrefix is handed to envconfig; every field carries an explicit name so the
// prefix only matters for untagged fields.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	PaymentModeFunction = "function"
	PaymentModeStripe   = "stripe"
)

const (
	EnvAppEnv            = "STOREFRONT_APP_ENV"
	EnvPort              = "STOREFRONT_APP_PORT"
	EnvDBDSN             = "STOREFRONT_DB_DSN"
	EnvDBHost            = "STOREFRONT_DB_HOST"
	EnvDBUser            = "STOREFRONT_DB_USER"
	EnvDBName            = "STOREFRONT_DB_NAME"
	EnvRedisURL          = "STOREFRONT_REDIS_URL"
	EnvJWTSecret         = "STOREFRONT_JWT_SECRET"
	EnvSupabaseURL       = "STOREFRONT_SUPABASE_URL"
	EnvSupabaseAnonKey   = "STOREFRONT_SUPABASE_ANON_KEY"
	EnvCatalogURL        = "STOREFRONT_CATALOG_URL"
	EnvPublicBaseURL     = "STOREFRONT_PUBLIC_BASE_URL"
	EnvPaymentMode       = "STOREFRONT_PAYMENT_MODE"
	EnvDefaultTaxPercent = "STOREFRONT_CHECKOUT_DEFAULT_TAX_PERCENT"
	EnvFallbackShipping  = "STOREFRONT_CHECKOUT_FALLBACK_SHIPPING"
	EnvKafkaBrokers      = "STOREFRONT_KAFKA_BROKERS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
