package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// BootstrapAdmin is granted the admin role at start-up when set.
	BootstrapAdmin string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Email     EmailConfig
	Archive   ArchiveConfig
	Slack     SlackConfig
	Dispatch  DispatchConfig
	Jobs      JobsConfig

	OTLPEndpoint string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	Enabled       bool
	DispatchRate  float64
	DispatchBurst int
}

type EmailConfig struct {
	Provider     string
	From         string
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	AWSRegion    string
}

type ArchiveConfig struct {
	Bucket    string
	Prefix    string
	AWSRegion string
}

type SlackConfig struct {
	Token        string
	AlertChannel string
}

type DispatchConfig struct {
	SendTimeout       time.Duration
	RenderConcurrency int
	DefaultRecipients []string
	Subject           string
	PracticeName      string
}

type JobsConfig struct {
	RunInterval       time.Duration
	RecoveryThreshold time.Duration
	AutoDispatch      bool
	EnabledJobs       []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "carebill"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		BootstrapAdmin: strings.TrimSpace(getenv("BOOTSTRAP_ADMIN_USER", "")),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "carebill"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getenvBool("RATE_LIMIT_ENABLED", false),
			DispatchRate:  getenvFloat("RATE_LIMIT_DISPATCH_RATE", 0.2),
			DispatchBurst: getenvInt("RATE_LIMIT_DISPATCH_BURST", 3),
		},
		Email: EmailConfig{
			Provider:     strings.ToLower(strings.TrimSpace(getenv("EMAIL_PROVIDER", "noop"))),
			From:         getenv("EMAIL_FROM", "billing@localhost"),
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			AWSRegion:    getenv("SES_REGION", getenv("AWS_REGION", "us-east-1")),
		},
		Archive: ArchiveConfig{
			Bucket:    strings.TrimSpace(getenv("ARCHIVE_BUCKET", "")),
			Prefix:    strings.Trim(getenv("ARCHIVE_PREFIX", "deliveries"), "/"),
			AWSRegion: getenv("ARCHIVE_REGION", getenv("AWS_REGION", "us-east-1")),
		},
		Slack: SlackConfig{
			Token:        strings.TrimSpace(getenv("SLACK_TOKEN", "")),
			AlertChannel: getenv("SLACK_ALERT_CHANNEL", ""),
		},
		Dispatch: DispatchConfig{
			SendTimeout:       getenvDuration("DISPATCH_SEND_TIMEOUT", 30*time.Second),
			RenderConcurrency: getenvInt("DISPATCH_RENDER_CONCURRENCY", 4),
			DefaultRecipients: getenvList("DISPATCH_DEFAULT_RECIPIENTS"),
			Subject:           getenv("DISPATCH_SUBJECT", "Billing documents"),
			PracticeName:      getenv("PRACTICE_NAME", "Therapy Services"),
		},
		Jobs: JobsConfig{
			RunInterval:       getenvDuration("SCHEDULER_RUN_INTERVAL", time.Minute),
			RecoveryThreshold: getenvDuration("SCHEDULER_RECOVERY_THRESHOLD", 15*time.Minute),
			AutoDispatch:      getenvBool("SCHEDULER_AUTO_DISPATCH", false),
			EnabledJobs:       getenvList("SCHEDULER_ENABLED_JOBS"),
		},

		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	parts := strings.Split(os.Getenv(key), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
