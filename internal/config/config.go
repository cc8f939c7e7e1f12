package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth
	GitHubClientID     string
	GitHubClientSecret string
	GitHubRedirectURL  string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionSecret string
	SessionMaxAge int

	// Billing（従量課金・エンタイトルメントSaaS）
	BillingSecretKey string
	BillingAPIURL    string

	// Email（トランザクションメール配信SaaS）
	EmailAPIKey string
	EmailFrom   string

	// Object Storage
	StorageDir       string
	StoragePublicURL string

	// Entitlement cache
	RedisAddr      string
	EntitlementTTL time.Duration

	// Web import
	WebImportTimeout time.Duration
	WebImportMaxSize int64

	// Rate Limit
	RateLimitGeneral int
	RateLimitAuth    int

	// Cleanup
	TokenRetentionDays int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// カレントディレクトリに.envがあれば先に読み込む（未存在は無視）。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	cfg.BillingSecretKey = os.Getenv("BILLING_SECRET_KEY")
	if cfg.BillingSecretKey == "" {
		missing = append(missing, "BILLING_SECRET_KEY")
	}

	cfg.EmailAPIKey = os.Getenv("EMAIL_API_KEY")
	if cfg.EmailAPIKey == "" {
		missing = append(missing, "EMAIL_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// OAuth（プロバイダー単位で任意。未設定のプロバイダーはルーティングから除外される）
	cfg.GitHubClientID = os.Getenv("GITHUB_CLIENT_ID")
	cfg.GitHubClientSecret = os.Getenv("GITHUB_CLIENT_SECRET")
	cfg.GitHubRedirectURL = getEnvString("GITHUB_REDIRECT_URL", cfg.BaseURL+"/api/auth/github/callback")
	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	cfg.GoogleRedirectURL = getEnvString("GOOGLE_REDIRECT_URL", cfg.BaseURL+"/api/auth/google/callback")

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 604800)
	cfg.BillingAPIURL = getEnvString("BILLING_API_URL", "")
	cfg.EmailFrom = getEnvString("EMAIL_FROM", "SmrtStudy <noreply@email.smrtstudy.com>")
	cfg.StorageDir = getEnvString("STORAGE_DIR", "./data/objects")
	cfg.StoragePublicURL = getEnvString("STORAGE_PUBLIC_URL", cfg.BaseURL+"/objects")
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.EntitlementTTL = getEnvDuration("ENTITLEMENT_CACHE_TTL", 60*time.Second)
	cfg.WebImportTimeout = getEnvDuration("WEB_IMPORT_TIMEOUT", 10*time.Second)
	cfg.WebImportMaxSize = getEnvInt64("WEB_IMPORT_MAX_SIZE", 5242880)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAuth = getEnvInt("RATE_LIMIT_AUTH", 10)
	cfg.TokenRetentionDays = getEnvInt("TOKEN_RETENTION_DAYS", 7)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
