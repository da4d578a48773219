// Package config provides application configuration loaded from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Business BusinessConfig
	Render   RenderConfig
	Storage  StorageConfig
	Twilio   TwilioConfig
	Google   GoogleConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int // seconds
	WriteTimeout int // seconds
	IdleTimeout  int // seconds
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	Debug    bool

	// URLOverride is a complete DSN (DATABASE_DSN) that wins over the fields above.
	URLOverride string
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Dev           bool
	Migrations    bool
	SessionSecret string
	Timezone      string
	BaseURL       string
}

// BusinessConfig is the letterhead printed on every document.
type BusinessConfig struct {
	Name    string
	Address string
	Phone   string
	Email   string
}

// ContactLines returns the non-empty letterhead lines below the business name.
func (b BusinessConfig) ContactLines() []string {
	var lines []string
	for _, part := range strings.Split(b.Address, "|") {
		if p := strings.TrimSpace(part); p != "" {
			lines = append(lines, p)
		}
	}
	if b.Phone != "" {
		lines = append(lines, "Tel: "+b.Phone)
	}
	if b.Email != "" {
		lines = append(lines, b.Email)
	}
	return lines
}

// RenderConfig holds PDF renderer settings.
type RenderConfig struct {
	LogoPath     string
	FontPath     string
	BoldFontPath string
	Timeout      time.Duration
}

// StorageConfig holds the local artifact store location.
type StorageConfig struct {
	MediaDir string
}

// TwilioConfig holds WhatsApp messaging credentials.
type TwilioConfig struct {
	AccountSID        string
	AuthToken         string
	WhatsAppFrom      string
	ContentSID        string
	ContentVariables  string
	StatusCallbackURL string
}

// GoogleConfig holds OAuth client settings for Drive and Gmail.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Enabled reports whether the OAuth client is configured.
func (g GoogleConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != "" && g.RedirectURL != ""
}

// DSN returns the PostgreSQL connection string in key=value format.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// URL returns the PostgreSQL connection string in URL format.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Location resolves the business time zone, falling back to UTC.
func (a AppConfig) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Load reads configuration from environment variables.
// It uses sensible defaults for local development.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout: getEnvInt("SERVER_WRITE_TIMEOUT", 60),
			IdleTimeout:  getEnvInt("SERVER_IDLE_TIMEOUT", 60),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "invoicegen"),
			Password: getEnv("DB_PASSWORD", "invoicegen"),
			DBName:   getEnv("DB_NAME", "invoicegen"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			Debug:    getEnvBool("DB_DEBUG", false),

			URLOverride: getEnv("DATABASE_DSN", ""),
		},
		App: AppConfig{
			Dev:           getEnvBool("DEV", true),
			Migrations:    getEnvBool("MIGRATIONS", false),
			SessionSecret: getEnv("SESSION_SECRET", "devsessionsecret"),
			Timezone:      getEnv("TIME_ZONE", "America/Jamaica"),
			BaseURL:       strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		},
		Business: BusinessConfig{
			Name:    getEnv("BUSINESS_NAME", "Motorworks Auto Service"),
			Address: getEnv("BUSINESS_ADDRESS", ""),
			Phone:   getEnv("BUSINESS_PHONE", ""),
			Email:   getEnv("BUSINESS_EMAIL", ""),
		},
		Render: RenderConfig{
			LogoPath:     getEnv("INVOICE_LOGO_PATH", "resources/logo.jpeg"),
			FontPath:     getEnv("INVOICE_FONT_PATH", "resources/fonts/DejaVuSans.ttf"),
			BoldFontPath: getEnv("INVOICE_BOLD_FONT_PATH", "resources/fonts/DejaVuSans-Bold.ttf"),
			Timeout:      time.Duration(getEnvInt("RENDER_TIMEOUT", 20)) * time.Second,
		},
		Storage: StorageConfig{
			MediaDir: getEnv("MEDIA_DIR", "media"),
		},
		Twilio: TwilioConfig{
			AccountSID:        getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:         getEnv("TWILIO_AUTH_TOKEN", ""),
			WhatsAppFrom:      getEnv("TWILIO_WHATSAPP_FROM", ""),
			ContentSID:        getEnv("TWILIO_CONTENT_SID", ""),
			ContentVariables:  getEnv("TWILIO_CONTENT_VARIABLES", ""),
			StatusCallbackURL: getEnv("TWILIO_STATUS_CALLBACK_URL", ""),
		},
		Google: GoogleConfig{
			ClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("GOOGLE_REDIRECT_URI", ""),
		},
	}
}

// getEnv returns the value of an environment variable or a default.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the integer value of an environment variable or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvBool returns the boolean value of an environment variable or a default.
// Accepts "1", "true", "yes" as true; everything else is false.
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "1" || value == "true" || value == "yes"
}
