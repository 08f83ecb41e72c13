package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v9"
)

type Config struct {
	HTTPAddr           string        `env:"HTTP_ADDR" envDefault:":8080"`
	HTTPRequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"30s"`
	AdminAPIToken      string        `env:"ADMIN_API_TOKEN"`
	LogLevel           string        `env:"LOG_LEVEL" envDefault:"info"`
	AutoMigrate        bool          `env:"AUTO_MIGRATE" envDefault:"true"`

	Database Database `envPrefix:"DB_"`
	Redis    Redis    `envPrefix:"REDIS_"`
	Booking  Booking  `envPrefix:"BOOKING_"`
	SMTP     SMTP     `envPrefix:"SMTP_"`
	Admin    Admin    `envPrefix:"TELEGRAM_"`
	Offers   Offers   `envPrefix:"OFFERS_"`
	Session  Session  `envPrefix:"SESSION_"`
}

type Database struct {
	Host            string        `env:"HOST,required"`
	Port            int           `env:"PORT,required"`
	User            string        `env:"USER,required"`
	Password        string        `env:"PASSWORD,required"`
	Name            string        `env:"NAME,required"`
	SSLMode         string        `env:"SSLMODE" envDefault:"disable"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"2m"`
}

type Redis struct {
	Addr     string        `env:"ADDR,required"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"5m"`
}

// Booking configures the external booking platform client.
type Booking struct {
	BaseURL      string        `env:"BASE_URL,required"`
	PartnerToken string        `env:"PARTNER_TOKEN,required"`
	UserToken    string        `env:"USER_TOKEN"`
	CompanyID    string        `env:"COMPANY_ID,required"`
	Timeout      time.Duration `env:"TIMEOUT" envDefault:"15s"`
	// Freeze policy attached to every subscription type we create.
	FreezeLimitDays int    `env:"FREEZE_LIMIT_DAYS" envDefault:"30"`
	ValidityMonths  int    `env:"VALIDITY_MONTHS" envDefault:"12"`
	WebhookSecret   string `env:"WEBHOOK_SECRET"`
}

type SMTP struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	User     string `env:"USER"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
}

func (s SMTP) Enabled() bool {
	return s.Host != "" && s.From != ""
}

// Admin holds Telegram notification targets for confirmed sales.
type Admin struct {
	Token     string  `env:"TOKEN"`
	ChannelID int64   `env:"CHANNEL_ID"`
	ChatID    int64   `env:"CHAT_ID"`
	IDs       []int64 `env:"ADMIN_IDS" envSeparator:","`
}

func (a Admin) Enabled() bool {
	return a.Token != ""
}

type Offers struct {
	Dir      string        `env:"DIR" envDefault:"offers"`
	FontPath string        `env:"FONT_PATH"`
	TTL      time.Duration `env:"TTL" envDefault:"168h"`
	Company  string        `env:"COMPANY" envDefault:"Студия лазерной эпиляции"`
}

type Session struct {
	TTL        time.Duration `env:"TTL" envDefault:"12h"`
	DragDelay  time.Duration `env:"DRAG_DELAY" envDefault:"100ms"`
	IdleDelay  time.Duration `env:"IDLE_DELAY" envDefault:"0s"`
	ComputeCap time.Duration `env:"COMPUTE_TIMEOUT" envDefault:"2s"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Session.DragDelay < 0 || c.Session.IdleDelay < 0 {
		return errors.New("session delays must not be negative")
	}
	if c.Session.IdleDelay > c.Session.DragDelay {
		return errors.New("idle recalculation delay must not exceed the drag delay")
	}
	if c.Admin.Enabled() && c.Admin.ChannelID == 0 && c.Admin.ChatID == 0 && len(c.Admin.IDs) == 0 {
		return errors.New("telegram token set but no channel, chat or admin ids configured")
	}
	if c.Booking.FreezeLimitDays < 0 || c.Booking.ValidityMonths <= 0 {
		return errors.New("booking freeze limit must be >= 0 and validity > 0")
	}
	return nil
}
