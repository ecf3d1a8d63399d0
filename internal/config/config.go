package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string

	CodeStore              string // "dynamo" | "memory"
	VerificationCodesTable string
	CodeExpiry             time.Duration
	CodeMaxRetries         int

	DeliveryArchive      string // "none" | "dynamo"
	DeliveryResultsTable string
	DeliveryRetention    time.Duration

	TemplateSource   string // "file" | "s3"
	TemplateDir      string
	BlacklistSource  string // "file" | "s3"
	BlacklistPath    string
	S3BucketName     string
	S3TemplatePrefix string
	S3BlacklistKey   string

	MailTransport string // "smtp" | "sns" | "mock"
	SMTPHost      string
	SMTPPort      int
	SMTPFrom      string
	SMTPUsername  string
	SMTPPassword  string
	SMTPTLSMode   string // "auto" | "starttls" | "ssl" | "none"
	SNSRegion     string
	SNSTopicARN   string

	NotifyMaxRetries     int
	NotifyRetryBaseDelay time.Duration
	NotifyRetryMaxDelay  time.Duration
	WorkerInterval       time.Duration

	JWTPublicKeyPath string
	AllowedOrigins   []string // CORS allowed origins
	RateLimitRPS     float64
	RateLimitBurst   int
	TrustedProxies   []string // CIDRs or addresses whose forwarding headers are honored
}

// Load reads all configuration from environment variables.
func Load() *Config {
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),

		CodeStore:              getEnv("CODE_STORE", "dynamo"),
		VerificationCodesTable: getEnv("DYNAMO_TABLE_VERIFICATION_CODES", "verification_codes"),
		CodeExpiry:             time.Duration(getEnvInt("CODE_EXPIRY_MINUTES", 15)) * time.Minute,
		CodeMaxRetries:         getEnvInt("CODE_MAX_RETRIES", 3),

		DeliveryArchive:      getEnv("DELIVERY_ARCHIVE", "none"),
		DeliveryResultsTable: getEnv("DYNAMO_TABLE_DELIVERY_RESULTS", "delivery_results"),
		DeliveryRetention:    getEnvDuration("DELIVERY_RETENTION", 30*24*time.Hour),

		TemplateSource:   getEnv("TEMPLATE_SOURCE", "file"),
		TemplateDir:      getEnv("TEMPLATE_DIR", "./templates"),
		BlacklistSource:  getEnv("BLACKLIST_SOURCE", "file"),
		BlacklistPath:    getEnv("BLACKLIST_PATH", "./blacklist.txt"),
		S3BucketName:     getEnv("S3_BUCKET_NAME", "techservice-notifier"),
		S3TemplatePrefix: getEnv("S3_TEMPLATE_PREFIX", "templates/"),
		S3BlacklistKey:   getEnv("S3_BLACKLIST_KEY", "blacklist.txt"),

		MailTransport: getEnv("MAIL_TRANSPORT", "smtp"),
		SMTPHost:      getEnv("SMTP_HOST", ""),
		SMTPPort:      getEnvInt("SMTP_PORT", 587),
		SMTPFrom:      getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:  getEnv("SMTP_USERNAME", ""),
		SMTPPassword:  getEnv("SMTP_PASSWORD", ""),
		SMTPTLSMode:   getEnv("SMTP_TLS_MODE", "auto"),
		SNSRegion:     getEnv("SNS_REGION", "us-east-1"),
		SNSTopicARN:   getEnv("SNS_TOPIC_ARN", ""),

		NotifyMaxRetries:     getEnvInt("NOTIFY_MAX_RETRIES", 3),
		NotifyRetryBaseDelay: getEnvDuration("NOTIFY_RETRY_BASE_DELAY", 30*time.Second),
		NotifyRetryMaxDelay:  getEnvDuration("NOTIFY_RETRY_MAX_DELAY", 10*time.Minute),
		WorkerInterval:       getEnvPositiveDuration("WORKER_INTERVAL", 10*time.Second),

		JWTPublicKeyPath: getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		AllowedOrigins:   strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		RateLimitRPS:     getEnvFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 10),
		TrustedProxies:   getEnvList("TRUSTED_PROXIES"),
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvList splits a comma-separated value; unset means nil.
func getEnvList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("30s", "5m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// getEnvPositiveDuration is getEnvDuration for values that must be > 0.
func getEnvPositiveDuration(key string, fallback time.Duration) time.Duration {
	if d := getEnvDuration(key, fallback); d > 0 {
		return d
	}
	return fallback
}
