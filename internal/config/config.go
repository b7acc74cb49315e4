package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// Config holds the application configuration.
type Config struct {
	Environment string
	DatabaseURL string
	DBDriver    string
	AuditSink   string

	APIAddr  string
	GRPCAddr string

	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string

	Currency         string
	CurrencyExponent int32
	WithdrawalMin    int64

	SettlementClearingAccount string
	AdjustmentClearingAccount string

	IntegritySchedule string
	RecoverySchedule  string
	RecoveryAge       time.Duration

	IPAllowlist         []string
	RateLimitCapacity   int
	RateLimitRefill     float64
	MaxBodyBytes        int64
	JWTIssuer           string
	JWTPublicKeyFile    string
	ShutdownGracePeriod time.Duration

	TLSCertFile          string
	TLSKeyFile           string
	TLSCAFile            string
	TLSRequireClientCert bool
}

// Load reads an optional .env file and then the environment. Variables
// already set in the environment win over the file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from environment variables only.
func FromEnv() (*Config, error) {
	p := parser{}
	cfg := &Config{
		Environment: os.Getenv("APP_ENV"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBDriver:    p.str("LEDGER_DB_DRIVER", DriverPostgres),
		AuditSink:   os.Getenv("AUDIT_SINK"),

		APIAddr:  p.str("API_ADDR", ":8080"),
		GRPCAddr: p.str("GRPC_ADDR", ":50051"),

		RedisAddr:    os.Getenv("REDIS_ADDR"),
		KafkaBrokers: p.list("KAFKA_BROKERS"),
		KafkaTopic:   p.str("KAFKA_TOPIC", "ledger.events"),

		Currency:         p.str("LEDGER_CURRENCY", "USD"),
		CurrencyExponent: int32(p.integer("LEDGER_CURRENCY_EXPONENT", 2)),
		WithdrawalMin:    int64(p.integer("WITHDRAWAL_MINIMUM", 100)),

		SettlementClearingAccount: p.str("SETTLEMENT_CLEARING_ACCOUNT", "SETTLEMENT_CLEARING"),
		AdjustmentClearingAccount: p.str("ADJUSTMENT_CLEARING_ACCOUNT", "ADJUSTMENTS_CLEARING"),

		IntegritySchedule: p.str("INTEGRITY_SCHEDULE", "@every 5m"),
		RecoverySchedule:  p.str("RESERVATION_RECOVERY_SCHEDULE", "@every 1m"),
		RecoveryAge:       p.duration("RESERVATION_RECOVERY_AGE", 2*time.Minute),

		IPAllowlist:         p.list("API_IP_ALLOWLIST"),
		RateLimitCapacity:   p.integer("API_RATE_LIMIT_CAPACITY", 100),
		RateLimitRefill:     p.number("API_RATE_LIMIT_REFILL_PER_SEC", 10),
		MaxBodyBytes:        int64(p.integer("API_MAX_BODY_BYTES", 1<<20)),
		JWTIssuer:           p.str("JWT_ISSUER", "gateway-ledger"),
		JWTPublicKeyFile:    os.Getenv("JWT_PUBLIC_KEY_FILE"),
		ShutdownGracePeriod: p.duration("SHUTDOWN_GRACE_PERIOD", 15*time.Second),

		TLSCertFile:          os.Getenv("TLS_CERT_FILE"),
		TLSKeyFile:           os.Getenv("TLS_KEY_FILE"),
		TLSCAFile:            os.Getenv("TLS_CA_FILE"),
		TLSRequireClientCert: p.boolean("TLS_REQUIRE_CLIENT_CERT", false),
	}
	if len(p.errs) > 0 {
		return nil, errors.Join(p.errs...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Production reports whether the environment needs the full stack.
func (c *Config) Production() bool {
	return c.Environment == "production" || c.Environment == "staging"
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var missing []string

	if c.Environment == "" {
		missing = append(missing, "APP_ENV")
	}
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return errors.New("missing required environment variables: " + strings.Join(missing, ", "))
	}

	if c.DBDriver != DriverPostgres && c.DBDriver != DriverSQLite {
		return fmt.Errorf("LEDGER_DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DBDriver)
	}
	if c.WithdrawalMin <= 0 {
		return errors.New("WITHDRAWAL_MINIMUM must be positive")
	}
	if c.CurrencyExponent < 0 || c.CurrencyExponent > 18 {
		return errors.New("LEDGER_CURRENCY_EXPONENT must be between 0 and 18")
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		return errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together")
	}
	if c.RateLimitCapacity <= 0 || c.RateLimitRefill <= 0 {
		return errors.New("API_RATE_LIMIT_CAPACITY and API_RATE_LIMIT_REFILL_PER_SEC must be positive")
	}

	// Development may run on sqlite with no Redis or Kafka; production needs
	// the shared services.
	if c.Production() {
		if c.RedisAddr == "" {
			missing = append(missing, "REDIS_ADDR")
		}
		if len(c.KafkaBrokers) == 0 {
			missing = append(missing, "KAFKA_BROKERS")
		}
		if c.AuditSink == "" {
			missing = append(missing, "AUDIT_SINK")
		}
		if c.JWTPublicKeyFile == "" {
			missing = append(missing, "JWT_PUBLIC_KEY_FILE")
		}

		if len(missing) > 0 {
			return errors.New("missing required environment variables for " + c.Environment + ": " + strings.Join(missing, ", "))
		}

		if c.DBDriver == DriverSQLite {
			return errors.New("LEDGER_DB_DRIVER=sqlite3 is not allowed in " + c.Environment)
		}
	}

	return nil
}

type parser struct {
	errs []error
}

func (p *parser) str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *parser) list(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (p *parser) integer(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (p *parser) number(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a number", key, v))
		return def
	}
	return f
}

func (p *parser) boolean(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a duration", key, v))
		return def
	}
	return d
}
