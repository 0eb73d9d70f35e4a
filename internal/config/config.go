package config

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultClientOrigin is the single-page client the service redirects back to.
const DefaultClientOrigin = "https://competent-mcnulty-4322db.netlify.app"

// Config holds application configuration
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	Session   SessionConfig
	Client    ClientConfig
	Providers ProvidersConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	TrustProxy   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type SessionConfig struct {
	Secret       string
	TTL          time.Duration
	Rolling      bool
	CookieName   string
	CookieSecure bool
	SameSite     http.SameSite
}

type ClientConfig struct {
	Origin          string
	FailureRedirect string
}

// Credentials is a client id/secret pair issued by a provider.
type Credentials struct {
	ClientID     string
	ClientSecret string
}

// Configured reports whether both halves of the pair are present.
func (c Credentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

type ProvidersConfig struct {
	CallbackBaseURL string
	Google          Credentials
	Twitter         Credentials
	GitHub          Credentials
}

// ErrMissingSessionSecret is returned when neither SESSION_SECRET nor SESSION_SECRET_FILE is set.
var ErrMissingSessionSecret = errors.New("SESSION_SECRET or SESSION_SECRET_FILE is required")

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("PORT", "4000")
	viper.SetDefault("HOST", "0.0.0.0")
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("TRUST_PROXY", true)
	viper.SetDefault("MONGODB_DATABASE", "oauth")
	viper.SetDefault("MONGODB_TIMEOUT", 10)
	viper.SetDefault("REDIS_PORT", "6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("SESSION_TTL_HOURS", 7*24)
	viper.SetDefault("SESSION_ROLLING", true)
	viper.SetDefault("SESSION_COOKIE_NAME", "sid")
	viper.SetDefault("SESSION_COOKIE_SECURE", true)
	viper.SetDefault("SESSION_COOKIE_SAMESITE", "none")
	viper.SetDefault("CLIENT_ORIGIN", DefaultClientOrigin)
	viper.SetDefault("FAILURE_REDIRECT", "/login")

	secret, err := sessionSecret()
	if err != nil {
		return nil, err
	}
	sameSite, err := parseSameSite(viper.GetString("SESSION_COOKIE_SAMESITE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("PORT"),
			Host:         viper.GetString("HOST"),
			Environment:  viper.GetString("ENVIRONMENT"),
			TrustProxy:   viper.GetBool("TRUST_PROXY"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		MongoDB: MongoDBConfig{
			URI:      mongoURI(),
			Database: viper.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(viper.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Session: SessionConfig{
			Secret:       secret,
			TTL:          time.Duration(viper.GetInt("SESSION_TTL_HOURS")) * time.Hour,
			Rolling:      viper.GetBool("SESSION_ROLLING"),
			CookieName:   viper.GetString("SESSION_COOKIE_NAME"),
			CookieSecure: viper.GetBool("SESSION_COOKIE_SECURE"),
			SameSite:     sameSite,
		},
		Client: ClientConfig{
			Origin:          strings.TrimRight(viper.GetString("CLIENT_ORIGIN"), "/"),
			FailureRedirect: viper.GetString("FAILURE_REDIRECT"),
		},
		Providers: ProvidersConfig{
			CallbackBaseURL: strings.TrimRight(viper.GetString("CALLBACK_BASE_URL"), "/"),
			Google: Credentials{
				ClientID:     viper.GetString("GOOGLE_CLIENT_ID"),
				ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			},
			Twitter: Credentials{
				ClientID:     viper.GetString("TWITTER_CLIENT_ID"),
				ClientSecret: os.Getenv("TWITTER_CLIENT_SECRET"),
			},
			GitHub: Credentials{
				ClientID:     viper.GetString("GITHUB_CLIENT_ID"),
				ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
			},
		},
	}

	if cfg.MongoDB.URI == "" {
		return nil, errors.New("MONGODB_URI or START_MONGODB/END_MONGODB is required")
	}
	if o := cfg.Client.Origin; !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
		return nil, fmt.Errorf("CLIENT_ORIGIN must be an http(s) origin, got %q", o)
	}
	if cfg.Session.SameSite == http.SameSiteNoneMode && !cfg.Session.CookieSecure {
		return nil, errors.New("SESSION_COOKIE_SAMESITE=none requires SESSION_COOKIE_SECURE=true")
	}
	return cfg, nil
}

// mongoURI prefers MONGODB_URI and otherwise assembles the connection string
// from its fragments: START_MONGODB + user:password + END_MONGODB.
func mongoURI() string {
	if uri := viper.GetString("MONGODB_URI"); uri != "" {
		return uri
	}
	start := viper.GetString("START_MONGODB")
	end := viper.GetString("END_MONGODB")
	if start == "" && end == "" {
		return ""
	}
	user := escapeCredential(viper.GetString("MONGODB_USERNAME"))
	pass := escapeCredential(os.Getenv("MONGODB_PASSWORD"))
	return start + user + ":" + pass + end
}

// escapeCredential percent-encodes s for the userinfo part of a connection
// string. The driver path-unescapes userinfo, where "+" stays a literal plus.
func escapeCredential(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// sessionSecret reads the cookie signing secret from the environment or from
// a mounted secret file (Docker/Kubernetes secrets).
func sessionSecret() (string, error) {
	if s := os.Getenv("SESSION_SECRET"); s != "" {
		return s, nil
	}
	if path := os.Getenv("SESSION_SECRET_FILE"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read session secret file: %w", err)
		}
		if s := strings.TrimSpace(string(b)); s != "" {
			return s, nil
		}
	}
	return "", ErrMissingSessionSecret
}

func parseSameSite(v string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "none":
		return http.SameSiteNoneMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	}
	return 0, fmt.Errorf("invalid SESSION_COOKIE_SAMESITE %q", v)
}
