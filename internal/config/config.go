package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort string
	AppEnv  string

	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	ReconciliationBucket string

	IdentityAPIKey   string
	IdentityEndpoint string // optional, points at the auth emulator in dev
	TokenEndpoint    string // secure token exchange URL

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers     []string
	KafkaEventsTopic string

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SNSRegion    string
	SNSSenderID  string

	CoupleCodeTTL           time.Duration
	CoupleCodeSweepInterval time.Duration
	SessionTTL              time.Duration
	RememberedSessionTTL    time.Duration
	LinkAttemptLimit        int
	LinkAttemptWindow       time.Duration
	ConnectionPollInterval  time.Duration

	SweeperMetricsPort string

	AllowedOrigins []string // CORS allowed origins
	TrustedProxies []string // peers whose X-Forwarded-For is honoured, IPs or CIDRs
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users       string
	CoupleCodes string
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort: getEnv("APP_PORT", getEnv("PORT", "3000")),
		AppEnv:  getEnv("APP_ENV", "development"),

		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:       getEnv("DYNAMO_TABLE_USERS", "users"),
			CoupleCodes: getEnv("DYNAMO_TABLE_COUPLE_CODES", "couple_codes"),
		},

		ReconciliationBucket: getEnv("S3_BUCKET_RECONCILIATION", "youme-reconciliation"),

		IdentityAPIKey:   getEnv("IDENTITY_API_KEY", ""),
		IdentityEndpoint: getEnv("IDENTITY_ENDPOINT", ""),
		TokenEndpoint:    getEnv("TOKEN_ENDPOINT", "https://securetoken.googleapis.com/v1/token"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		KafkaBrokers:     splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaEventsTopic: getEnv("KAFKA_TOPIC_EVENTS", "youme.events"),

		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         getEnvDuration("JWT_EXPIRY", 720*time.Hour),

		SMTPHost:     getEnv("SMTP_HOST", "localhost"),
		SMTPPort:     getEnv("SMTP_PORT", "1025"),
		SMTPFrom:     getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername: getEnv("SMTP_USER", getEnv("SMTP_USERNAME", "")),
		SMTPPassword: getEnv("SMTP_PASS", getEnv("SMTP_PASSWORD", "")),
		SNSRegion:    getEnv("SNS_REGION", getEnv("AWS_REGION", "us-east-1")),
		SNSSenderID:  getEnv("SNS_SENDER_ID", ""),

		CoupleCodeTTL:           getEnvDuration("COUPLE_CODE_TTL", 10*time.Minute),
		CoupleCodeSweepInterval: getEnvDuration("COUPLE_CODE_SWEEP_INTERVAL", time.Minute),
		SessionTTL:              getEnvDuration("SESSION_TTL", 24*time.Hour),
		RememberedSessionTTL:    getEnvDuration("REMEMBERED_SESSION_TTL", 720*time.Hour),
		LinkAttemptLimit:        getEnvInt("LINK_ATTEMPT_LIMIT", 5),
		LinkAttemptWindow:       getEnvDuration("LINK_ATTEMPT_WINDOW", time.Minute),
		ConnectionPollInterval:  getEnvDuration("CONNECTION_POLL_INTERVAL", 5*time.Second),

		SweeperMetricsPort: getEnv("SWEEPER_METRICS_PORT", "9091"),

		AllowedOrigins: strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		TrustedProxies: splitList(getEnv("TRUSTED_PROXIES", "")),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
