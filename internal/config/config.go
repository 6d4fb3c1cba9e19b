package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	Environment          string
	HTTPPort             string
	DatabaseURL          string
	DBAutoMigrate        bool
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	ServiceName          string
	SnowflakeNode        int64
	RateLimitRPM         int
	TelemetryEndpoint    string
	TelemetryInsecure    bool
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool

	ProviderHTTPTimeout time.Duration
	TokenRefreshSkew    time.Duration
	RefreshLockTTL      time.Duration
	RefreshLockWait     time.Duration
	OAuthStateTTL       time.Duration

	Google   ProviderConfig
	Outlook  ProviderConfig
	Calendly ProviderConfig
	HubSpot  ProviderConfig
}

// ProviderConfig holds the OAuth client and endpoint settings of one provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	APIBaseURL   string
	Scopes       []string
	// TenantID is only meaningful for Outlook.
	TenantID string
	// WebhookSecret is only meaningful for Calendly.
	WebhookSecret string
}

// Configured reports whether client credentials are present.
func (p ProviderConfig) Configured() bool {
	return strings.TrimSpace(p.ClientID) != "" && strings.TrimSpace(p.ClientSecret) != ""
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:          getEnv("APP_ENV", "development"),
		HTTPPort:             getEnv("HTTP_PORT", getEnv("PORT", "5000")),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		DBAutoMigrate:        getBool("DB_AUTO_MIGRATE", false),
		RedisAddr:            getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0),
		ServiceName:          getEnv("SERVICE_NAME", "calendar-gateway"),
		SnowflakeNode:        int64(getInt("SNOWFLAKE_NODE", 1)),
		RateLimitRPM:         getInt("RATE_LIMIT_RPM", 600),
		TelemetryEndpoint:    os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure:    getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:8080"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type", "X-Request-ID"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", true),
		ProviderHTTPTimeout:  getDuration("PROVIDER_HTTP_TIMEOUT", 15*time.Second),
		TokenRefreshSkew:     getDuration("TOKEN_REFRESH_SKEW", 30*time.Second),
		RefreshLockTTL:       getDuration("REFRESH_LOCK_TTL", 15*time.Second),
		RefreshLockWait:      getDuration("REFRESH_LOCK_WAIT", 5*time.Second),
		OAuthStateTTL:        getDuration("OAUTH_STATE_TTL", 10*time.Minute),
		Google:               loadGoogle(),
		Outlook:              loadOutlook(),
		Calendly:             loadCalendly(),
		HubSpot:              loadHubSpot(),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.TokenRefreshSkew < 0 {
		cfg.TokenRefreshSkew = 0
	}

	return cfg, nil
}

func loadGoogle() ProviderConfig {
	return ProviderConfig{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURI:  os.Getenv("GOOGLE_REDIRECT_URI"),
		AuthURL:      getEnv("GOOGLE_AUTH_URL", "https://accounts.google.com/o/oauth2/auth"),
		TokenURL:     getEnv("GOOGLE_TOKEN_URL", "https://oauth2.googleapis.com/token"),
		RevokeURL:    getEnv("GOOGLE_REVOKE_URL", "https://oauth2.googleapis.com/revoke"),
		APIBaseURL:   os.Getenv("GOOGLE_API_BASE_URL"),
		Scopes: getList("GOOGLE_SCOPES", []string{
			"https://www.googleapis.com/auth/calendar",
			"https://www.googleapis.com/auth/calendar.events",
		}),
	}
}

func loadOutlook() ProviderConfig {
	tenant := getEnv("OUTLOOK_TENANT_ID", "common")
	base := "https://login.microsoftonline.com/" + tenant + "/oauth2/v2.0"
	return ProviderConfig{
		ClientID:     os.Getenv("OUTLOOK_CLIENT_ID"),
		ClientSecret: os.Getenv("OUTLOOK_CLIENT_SECRET"),
		RedirectURI:  os.Getenv("OUTLOOK_REDIRECT_URI"),
		TenantID:     tenant,
		AuthURL:      getEnv("OUTLOOK_AUTH_URL", base+"/authorize"),
		TokenURL:     getEnv("OUTLOOK_TOKEN_URL", base+"/token"),
		APIBaseURL:   getEnv("OUTLOOK_API_BASE_URL", "https://graph.microsoft.com/v1.0"),
		Scopes:       getFields("OUTLOOK_SCOPE", []string{"Calendars.ReadWrite", "offline_access", "User.Read"}),
	}
}

func loadCalendly() ProviderConfig {
	auth := strings.TrimRight(getEnv("CALENDLY_AUTH_URL", "https://auth.calendly.com/oauth"), "/")
	return ProviderConfig{
		ClientID:      os.Getenv("CALENDLY_CLIENT_ID"),
		ClientSecret:  os.Getenv("CALENDLY_CLIENT_SECRET"),
		RedirectURI:   os.Getenv("CALENDLY_REDIRECT_URI"),
		AuthURL:       auth + "/authorize",
		TokenURL:      auth + "/token",
		RevokeURL:     auth + "/revoke",
		APIBaseURL:    getEnv("CALENDLY_API_BASE_URL", "https://api.calendly.com"),
		WebhookSecret: os.Getenv("CALENDLY_WEBHOOK_SECRET"),
	}
}

func loadHubSpot() ProviderConfig {
	api := strings.TrimRight(getEnv("HUBSPOT_API_BASE_URL", "https://api.hubapi.com"), "/")
	return ProviderConfig{
		ClientID:     os.Getenv("HUBSPOT_CLIENT_ID"),
		ClientSecret: os.Getenv("HUBSPOT_CLIENT_SECRET"),
		RedirectURI:  os.Getenv("HUBSPOT_REDIRECT_URI"),
		AuthURL:      getEnv("HUBSPOT_AUTH_URL", "https://app.hubspot.com/oauth/authorize"),
		TokenURL:     getEnv("HUBSPOT_TOKEN_URL", api+"/oauth/v1/token"),
		RevokeURL:    api + "/oauth/v1/refresh-tokens",
		APIBaseURL:   api,
		Scopes:       getFields("HUBSPOT_SCOPES", []string{"oauth", "crm.objects.contacts.read", "crm.objects.contacts.write"}),
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}

// getFields reads space separated values, the format OAuth scopes use.
func getFields(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		if fields := strings.Fields(strings.ReplaceAll(v, ",", " ")); len(fields) > 0 {
			return fields
		}
	}
	return def
}
