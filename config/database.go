package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"enhancer"`
	Password string `env:"PASSWORD"                envDefault:"enhancer"`
	Name     string `env:"NAME"                    envDefault:"enhancer"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains the Redis connection used by the dedup store.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`

	// DedupTTL is the retention window for webhook delivery ids. Deliveries
	// re-sent within this window replay the stored admission response.
	DedupTTL time.Duration `env:"DEDUP_TTL" envDefault:"24h"`
}
