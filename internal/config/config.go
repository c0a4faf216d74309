package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"settlementsam/internal/authz"
	"settlementsam/internal/logger"
	"settlementsam/internal/throttle"
)

const DefaultPath = "config/config.yaml"

type ServerConfig struct {
	Port            int           `yaml:"port"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// RateLimit is requests per second per IP on the login and OTP routes.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
}

type DatabaseConfig struct {
	// Driver is postgres, sqlite or firestore.
	Driver string `yaml:"driver"`
	DSN    string `yaml:"url"`
}

type FirestoreConfig struct {
	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"`
}

type RedisConfig struct {
	URL string `yaml:"url"`
}

type AdminUser struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

type AuthConfig struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	Issuer     string        `yaml:"issuer"`
	AdminTTL   time.Duration `yaml:"admin_ttl"`
	SessionTTL time.Duration `yaml:"session_ttl"`
	Admins     []AdminUser   `yaml:"admins"`
}

type EmailConfig struct {
	SMTPHost     string `yaml:"smtp_host"`
	SMTPPort     int    `yaml:"smtp_port"`
	SMTPUser     string `yaml:"smtp_user"`
	SMTPPassword string `yaml:"smtp_password"`
	FromEmail    string `yaml:"from_email"`
}

type SMSConfig struct {
	Brand  string `yaml:"brand"`
	DryRun bool   `yaml:"dry_run"`
}

type OTPConfig struct {
	CodeLength  int           `yaml:"code_length"`
	TTL         time.Duration `yaml:"ttl"`
	MaxSends    int           `yaml:"max_sends"`
	SendWindow  time.Duration `yaml:"send_window"`
	MaxAttempts int           `yaml:"max_attempts"`
}

type DeliveryConfig struct {
	TimeZone        string `yaml:"time_zone"`
	ExclusivityDays int    `yaml:"exclusivity_days"`
	SkipWeekends    bool   `yaml:"skip_weekends"`
	DedupeDays      int    `yaml:"dedupe_days"`
	MaxPackage      int    `yaml:"max_package"`
}

type SheetsConfig struct {
	CredentialsFile string `yaml:"credentials_file"`
	Range           string `yaml:"range"`
}

type StripeConfig struct {
	WebhookSecret string `yaml:"webhook_secret"`
}

type PDFConfig struct {
	// FontPath is a UTF-8 TTF; Helvetica is used when empty.
	FontPath string `yaml:"font_path"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Firestore FirestoreConfig `yaml:"firestore"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	Email     EmailConfig     `yaml:"email"`
	SMS       SMSConfig       `yaml:"sms"`
	OTP       OTPConfig       `yaml:"otp"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Sheets    SheetsConfig    `yaml:"sheets"`
	Stripe    StripeConfig    `yaml:"stripe"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	PDF       PDFConfig       `yaml:"pdf"`
	Log       logger.Config   `yaml:"log"`
}

// Load reads the YAML file at path, applies environment overrides for
// secrets, fills defaults and validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	for key, dst := range map[string]*string{
		"SSAM_JWT_SECRET":            &c.Auth.JWTSecret,
		"SSAM_DATABASE_URL":          &c.Database.DSN,
		"SSAM_SMTP_PASSWORD":         &c.Email.SMTPPassword,
		"SSAM_STRIPE_WEBHOOK_SECRET": &c.Stripe.WebhookSecret,
		"SSAM_TELEGRAM_TOKEN":        &c.Telegram.Token,
		"SSAM_REDIS_URL":             &c.Redis.URL,
	} {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 1
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 5
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.DSN == "" && c.Database.Driver == "sqlite" {
		c.Database.DSN = "settlementsam.db"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "settlementsam"
	}
	if c.Auth.AdminTTL == 0 {
		c.Auth.AdminTTL = 12 * time.Hour
	}
	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = 30 * time.Minute
	}
	if c.SMS.Brand == "" {
		c.SMS.Brand = "Settlement Sam"
	}
	if c.OTP.CodeLength == 0 {
		c.OTP.CodeLength = 6
	}
	if c.OTP.TTL == 0 {
		c.OTP.TTL = 10 * time.Minute
	}
	if c.OTP.MaxSends == 0 {
		c.OTP.MaxSends = 3
	}
	if c.OTP.SendWindow == 0 {
		c.OTP.SendWindow = time.Hour
	}
	if c.OTP.MaxAttempts == 0 {
		c.OTP.MaxAttempts = 5
	}
	if c.Delivery.TimeZone == "" {
		c.Delivery.TimeZone = "America/New_York"
	}
	if c.Delivery.ExclusivityDays == 0 {
		c.Delivery.ExclusivityDays = 90
	}
	if c.Delivery.DedupeDays == 0 {
		c.Delivery.DedupeDays = 30
	}
	if c.Delivery.MaxPackage == 0 {
		c.Delivery.MaxPackage = 1000
	}
	if c.Sheets.Range == "" {
		c.Sheets.Range = "Leads!A1"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) Validate() error {
	var result *multierror.Error
	if len(c.Auth.JWTSecret) < 16 {
		result = multierror.Append(result, errors.New("auth.jwt_secret must be at least 16 characters"))
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
		if c.Database.DSN == "" {
			result = multierror.Append(result, errors.New("database.url is required"))
		}
	case "firestore":
		if c.Firestore.ProjectID == "" {
			result = multierror.Append(result, errors.New("firestore.project_id is required for the firestore driver"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("database.driver %q is not postgres, sqlite or firestore", c.Database.Driver))
	}
	if c.OTP.CodeLength < 4 || c.OTP.CodeLength > 6 {
		result = multierror.Append(result, errors.New("otp.code_length must be between 4 and 6"))
	}
	for i, a := range c.Auth.Admins {
		if a.Username == "" || a.PasswordHash == "" {
			result = multierror.Append(result, fmt.Errorf("auth.admins[%d] needs username and password_hash", i))
		}
		if !authz.ValidRole(a.Role) {
			result = multierror.Append(result, fmt.Errorf("auth.admins[%d].role %q is not admin or viewer", i, a.Role))
		}
	}
	if c.Delivery.MaxPackage < 1 || c.Delivery.MaxPackage > throttle.MaxQuantity {
		result = multierror.Append(result, fmt.Errorf("delivery.max_package must be between 1 and %d", throttle.MaxQuantity))
	}
	if _, err := time.LoadLocation(c.Delivery.TimeZone); err != nil {
		result = multierror.Append(result, fmt.Errorf("delivery.time_zone: %w", err))
	}
	return result.ErrorOrNil()
}

// Location returns the delivery time zone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Delivery.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
