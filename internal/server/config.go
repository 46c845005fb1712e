package server

import (
	"github.com/kelseyhightower/envconfig"
)

// Config is the sync server's environment-driven configuration.
type Config struct {
	// HTTP
	Addr          string `envconfig:"TROLLEY_ADDR" default:":8080"`
	PublicBaseURL string `envconfig:"TROLLEY_PUBLIC_BASE_URL"`

	// Database. A postgres:// DSN selects Postgres; anything else is
	// treated as a sqlite file path.
	DatabaseURL string `envconfig:"TROLLEY_DATABASE_URL" default:"data/trolley.db"`

	// Auth
	JWTSecret     string `envconfig:"TROLLEY_JWT_SECRET"`
	TokenTTLHours int    `envconfig:"TROLLEY_TOKEN_TTL_HOURS" default:"720"`

	// SignupAutoConfirm skips the email confirmation step. There is no
	// mail delivery in this deployment mode, so it defaults on.
	SignupAutoConfirm bool `envconfig:"TROLLEY_SIGNUP_AUTOCONFIRM" default:"true"`

	// Object storage root for list media.
	StorageDir string `envconfig:"TROLLEY_STORAGE_DIR" default:"data/storage"`

	// MaxUploadMB caps a single media upload. Zero or negative lifts
	// the cap.
	MaxUploadMB int `envconfig:"TROLLEY_MAX_UPLOAD_MB" default:"32"`

	// AMQPURL, when set, bridges change events across server instances
	// through a topic exchange.
	AMQPURL string `envconfig:"TROLLEY_AMQP_URL"`

	// OTLPEndpoint, when set, exports traces over OTLP/gRPC.
	OTLPEndpoint string `envconfig:"TROLLEY_OTLP_ENDPOINT"`
	Env          string `envconfig:"TROLLEY_ENV" default:"dev"`
}

// LoadConfig reads the configuration from the environment.
func LoadConfig() (Config, error) {
	var c Config
	err := envconfig.Process("", &c)
	return c, err
}
