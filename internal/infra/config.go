package infra

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration parsed from environment variables.
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`
	PGHost      string `env:"PGHOST" envDefault:"localhost"`
	PGPort      int    `env:"PGPORT" envDefault:"5432"`
	PGUser      string `env:"PGUSER" envDefault:"squadmarket"`
	PGPassword  string `env:"PGPASSWORD" envDefault:"squadmarket"`
	PGDatabase  string `env:"PGDATABASE" envDefault:"squadmarket"`

	// JWT
	JWTSecret string `env:"JWT_SECRET" envDefault:"change-me-in-production"`
	JWTExpiry string `env:"JWT_EXPIRY" envDefault:"24h"`

	// Server
	APIPort int `env:"API_PORT" envDefault:"3000"`

	// Kafka
	KafkaBrokers    string `env:"KAFKA_BROKERS" envDefault:"localhost:9092"`
	KafkaEnabled    bool   `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaEventTopic string `env:"KAFKA_EVENT_TOPIC" envDefault:"squadmarket.events"`

	// Marketplace tunables
	MaxTeamsPerUser int   `env:"MAX_TEAMS_PER_USER" envDefault:"5"`
	StartingBudget  int64 `env:"STARTING_BUDGET" envDefault:"5000000"`
	BasePlayerValue int64 `env:"BASE_PLAYER_VALUE" envDefault:"1000000"`
	MarkupMinPct    int   `env:"MARKUP_MIN_PCT" envDefault:"10"`
	MarkupMaxPct    int   `env:"MARKUP_MAX_PCT" envDefault:"100"`

	// Squad composition for auto-drafted teams
	SquadGoalkeepers int `env:"SQUAD_GOALKEEPERS" envDefault:"3"`
	SquadDefenders   int `env:"SQUAD_DEFENDERS" envDefault:"6"`
	SquadMidfielders int `env:"SQUAD_MIDFIELDERS" envDefault:"6"`
	SquadAttackers   int `env:"SQUAD_ATTACKERS" envDefault:"5"`

	// Dev
	AllowInsecureDefaults bool `env:"ALLOW_INSECURE_DEFAULTS" envDefault:"false"`
}

// LoadConfig parses environment variables into a Config struct.
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks for insecure or inconsistent configuration that must not
// run in production. Set ALLOW_INSECURE_DEFAULTS=true to bypass the secret
// checks (local dev only).
func (c *Config) Validate() error {
	if c.MarkupMinPct < 0 || c.MarkupMaxPct < c.MarkupMinPct {
		return fmt.Errorf("invalid markup range [%d, %d]", c.MarkupMinPct, c.MarkupMaxPct)
	}
	if c.StartingBudget < 0 || c.BasePlayerValue <= 0 {
		return fmt.Errorf("invalid budget defaults")
	}
	if c.AllowInsecureDefaults {
		return nil
	}
	if c.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET is set to the insecure default; set a strong secret or set ALLOW_INSECURE_DEFAULTS=true for local dev")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is too short (%d chars); minimum 32 characters required", len(c.JWTSecret))
	}
	return nil
}

// DSN returns the PostgreSQL connection string, preferring DATABASE_URL if set.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.PGUser, c.PGPassword, c.PGHost, c.PGPort, c.PGDatabase)
}
