package settings

import (
	"fmt"
	"strings"
	"time"

	"github.com/Alecxender1402/QuickCourt/libs/config"
)

type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"booking-service"`
	Port        string `envconfig:"PORT" default:"8083"`
	GRPCPort    string `envconfig:"GRPC_PORT" default:"9093"`

	StorageDriver string `envconfig:"STORAGE_DRIVER" default:"postgres"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	// DevCourts seeds the court catalog when STORAGE_DRIVER=memory.
	DevCourts string `envconfig:"DEV_COURTS"`

	VenueTimezone string   `envconfig:"VENUE_TIMEZONE" default:"UTC"`
	ElevatedRoles []string `envconfig:"ELEVATED_ROLES" default:"owner,admin"`

	RedisURL      string        `envconfig:"REDIS_URL"`
	HoursCacheTTL time.Duration `envconfig:"HOURS_CACHE_TTL" default:"5m"`

	NotifyTransport string `envconfig:"NOTIFY_TRANSPORT" default:"log"`
	KafkaBrokers    string `envconfig:"KAFKA_BROKERS"`
	AMQPURL         string `envconfig:"AMQP_URL"`
	AMQPExchange    string `envconfig:"AMQP_EXCHANGE" default:"booking.events"`

	StripeSecretKey string `envconfig:"STRIPE_SECRET_KEY"`
	PaymentCurrency string `envconfig:"PAYMENT_CURRENCY" default:"inr"`

	CompletionSweepInterval time.Duration `envconfig:"COMPLETION_SWEEP_INTERVAL" default:"1m"`
	SideEffectTimeout       time.Duration `envconfig:"SIDE_EFFECT_TIMEOUT" default:"10s"`

	RateLimitPerMinute int      `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
	MaxBodyBytes       int64    `envconfig:"MAX_BODY_BYTES" default:"65536"`
}

// Load reads the environment and checks the combinations envconfig cannot express.
func Load() (Config, error) {
	var cfg Config
	if err := config.Process("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	cfg.NotifyTransport = strings.ToLower(strings.TrimSpace(cfg.NotifyTransport))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StorageDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=postgres")
		}
	case "memory":
	default:
		return fmt.Errorf("STORAGE_DRIVER must be postgres or memory (got %q)", c.StorageDriver)
	}

	switch c.NotifyTransport {
	case "kafka":
		if strings.TrimSpace(c.KafkaBrokers) == "" {
			return fmt.Errorf("KAFKA_BROKERS is required when NOTIFY_TRANSPORT=kafka")
		}
	case "amqp":
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP_URL is required when NOTIFY_TRANSPORT=amqp")
		}
	case "log":
	default:
		return fmt.Errorf("NOTIFY_TRANSPORT must be kafka, amqp or log (got %q)", c.NotifyTransport)
	}

	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location is the venue time zone used to derive today's date and the current minute.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.VenueTimezone)
	if err != nil {
		return nil, fmt.Errorf("VENUE_TIMEZONE %q: %w", c.VenueTimezone, err)
	}
	return loc, nil
}

func (c Config) Roles() []string {
	out := make([]string, 0, len(c.ElevatedRoles))
	for _, r := range c.ElevatedRoles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			out = append(out, r)
		}
	}
	return out
}
