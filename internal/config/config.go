package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime settings. It is built once in main and passed
// into each component constructor; business logic never reads the
// environment directly.
type Config struct {
	AppName string
	Port    string

	// Database
	DBHost         string
	DBPort         string
	DBUser         string
	DBPassword     string
	DBName         string
	UseMemoryStore bool

	// Tokens
	JWTSecret        string
	AccessTokenTTL   time.Duration
	VerifiedTokenTTL time.Duration

	// OTP challenges
	OTPLength           int
	OTPExpiry           time.Duration
	OTPMaxAttempts      int
	OTPResendCooldown   time.Duration
	OTPRateLimitPerHour int

	// Per-rider pickup codes
	PickupCodeLength int

	// Institutional email domain suffix, e.g. "christuniversity.in"
	CollegeEmailDomain string

	// SMS delivery: "console" | "twilio"
	SMSProvider      string
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// Email delivery: "console" | "smtp"
	EmailProvider string
	SMTPHost      string
	SMTPPort      int
	SMTPUser      string
	SMTPPassword  string
	EmailFrom     string
}

// Load reads configuration from the environment, trying .env files first
// for local development.
func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		if err := godotenv.Load("environments/.env.development"); err != nil {
			log.Println("no .env file found - using environment variables")
		}
	}

	return &Config{
		AppName: getEnv("APP_NAME", "Carpool Backend"),
		Port:    getEnv("PORT", "8080"),

		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     os.Getenv("DB_PASS"),
		DBName:         getEnv("DB_NAME", "carpool"),
		UseMemoryStore: os.Getenv("USE_MEMORY_STORE") == "true",

		JWTSecret:        getEnv("JWT_SECRET_KEY", "change-me-in-production"),
		AccessTokenTTL:   getEnvMinutes("ACCESS_TOKEN_EXPIRE_MINUTES", 30),
		VerifiedTokenTTL: getEnvMinutes("VERIFIED_TOKEN_EXPIRE_MINUTES", 30),

		OTPLength:           getEnvInt("OTP_LENGTH", 6),
		OTPExpiry:           getEnvMinutes("OTP_EXPIRE_MINUTES", 5),
		OTPMaxAttempts:      getEnvInt("OTP_MAX_ATTEMPTS", 3),
		OTPResendCooldown:   time.Duration(getEnvInt("OTP_RESEND_COOLDOWN_SECONDS", 60)) * time.Second,
		OTPRateLimitPerHour: getEnvInt("OTP_RATE_LIMIT_PER_HOUR", 5),

		PickupCodeLength: getEnvInt("PICKUP_CODE_LENGTH", 4),

		CollegeEmailDomain: getEnv("COLLEGE_EMAIL_DOMAIN", "christuniversity.in"),

		SMSProvider:      getEnv("SMS_PROVIDER", "console"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFromNumber: os.Getenv("TWILIO_PHONE_NUMBER"),

		EmailProvider: getEnv("EMAIL_PROVIDER", "console"),
		SMTPHost:      getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:      getEnvInt("SMTP_PORT", 587),
		SMTPUser:      os.Getenv("SMTP_USER"),
		SMTPPassword:  os.Getenv("SMTP_PASSWORD"),
		EmailFrom:     getEnv("EMAIL_FROM", "noreply@christuniversity.in"),
	}
}

// IsCollegeEmail reports whether the address belongs to the allow-listed
// institutional domain. The match is on the domain suffix,
// case-insensitive, so "student@mail.christuniversity.in" passes too.
func (c *Config) IsCollegeEmail(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 1 || at == len(email)-1 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	suffix := strings.ToLower(c.CollegeEmailDomain)
	return domain == suffix || strings.HasSuffix(domain, "."+suffix)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("invalid value for %s: %q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

func getEnvMinutes(key string, fallback int) time.Duration {
	return time.Duration(getEnvInt(key, fallback)) * time.Minute
}
