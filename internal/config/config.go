package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	Server   ServerConfig   `env:",prefix=SERVER_"`
	Postgres PostgresConfig `env:",prefix=POSTGRES_"`
	Redis    RedisConfig    `env:",prefix=REDIS_"`
	Kafka    KafkaConfig    `env:",prefix=KAFKA_"`
	Google   GoogleConfig   `env:",prefix=GOOGLE_"`
	Sync     SyncConfig     `env:",prefix=SYNC_"`
	JWT      JWTConfig      `env:",prefix=JWT_"`
	CORS     CORSConfig     `env:",prefix=CORS_"`
	Env      string         `env:"ENV,default=development"`
}

type ServerConfig struct {
	Port         string   `env:"PORT,default=8080"`
	Host         string   `env:"HOST,default=0.0.0.0"`
	ReadTimeout  Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout Duration `env:"WRITE_TIMEOUT,default=15s"`
}

type PostgresConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=5432"`
	User     string `env:"USER,default=calendar_sync"`
	Password string `env:"PASSWORD,default=calendar_sync_password"`
	DBName   string `env:"DB,default=calendar_sync_db"`
	SSLMode  string `env:"SSLMODE,default=disable"`

	MigrationsURL string `env:"MIGRATIONS_URL,default=file://migrations"`
}

type RedisConfig struct {
	Host     string `env:"HOST,default=localhost"`
	Port     string `env:"PORT,default=6379"`
	Password string `env:"PASSWORD,default="`
	DB       int    `env:"DB,default=0"`
}

type KafkaConfig struct {
	Brokers []string `env:"BROKERS,default=localhost:9092"`
	Topic   string   `env:"TOPIC,default=planning.notifications"`
}

type GoogleConfig struct {
	ClientID     string `env:"CLIENT_ID,required"`
	ClientSecret string `env:"CLIENT_SECRET,required"`
	RedirectURL  string `env:"REDIRECT_URL,default=http://localhost:3000/calendar/callback"`
}

type SyncConfig struct {
	// TokenKey is the hex-encoded AES-256 key used to encrypt OAuth tokens at rest
	TokenKey string `env:"TOKEN_KEY,required"`

	ReconcileInterval Duration `env:"RECONCILE_INTERVAL,default=1h"`
	StaleThreshold    Duration `env:"STALE_THRESHOLD,default=24h"`
	BackoffBase       Duration `env:"BACKOFF_BASE,default=30s"`
	SyncMaxAttempts   int      `env:"MAX_ATTEMPTS,default=5"`
	DeleteMaxAttempts int      `env:"DELETE_MAX_ATTEMPTS,default=3"`
	BatchSize         int      `env:"BATCH_SIZE,default=50"`
	BatchDelay        Duration `env:"BATCH_DELAY,default=30s"`
	LockTTL           Duration `env:"LOCK_TTL,default=2m"`
	WorkerConcurrency int      `env:"WORKER_CONCURRENCY,default=10"`
	UserRateLimit     int      `env:"USER_RATE_LIMIT,default=30"`
	UserRateWindow    Duration `env:"USER_RATE_WINDOW,default=1m"`

	// Outbound calendar API budget per user, enforced before each provider call
	CallBudget       int      `env:"CALL_BUDGET,default=120"`
	CallBudgetWindow Duration `env:"CALL_BUDGET_WINDOW,default=1m"`
}

type JWTConfig struct {
	Secret string `env:"SECRET,required"`
}

type CORSConfig struct {
	AllowedOrigins []string `env:"ALLOWED_ORIGINS,default=http://localhost:3000"`
	AllowedMethods []string `env:"ALLOWED_METHODS,default=GET,POST,DELETE,OPTIONS"`
	AllowedHeaders []string `env:"ALLOWED_HEADERS,default=Content-Type,Authorization"`
}

// DSN returns PostgreSQL connection string
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DBName, p.SSLMode)
}

// Address returns Redis connection address
func (r RedisConfig) Address() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// Load loads configuration from environment variables
func Load(ctx context.Context) (*Config, error) {
	var config Config

	if err := envconfig.Process(ctx, &config); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Validate JWT secret length
	if len(config.JWT.Secret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}

	// AES-256 key is 32 bytes, hex-encoded
	if len(config.Sync.TokenKey) != 64 {
		return nil, fmt.Errorf("SYNC_TOKEN_KEY must be a hex-encoded 32-byte key (64 characters)")
	}

	return &config, nil
}

// LoadWithDefaults loads configuration with default context
func LoadWithDefaults() (*Config, error) {
	return Load(context.Background())
}
