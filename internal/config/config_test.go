package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Cart.DebounceWindow)
	assert.Equal(t, 10*time.Second, cfg.Cart.RequestTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Cart.GuestTTL)
	assert.Equal(t, "NL", cfg.VAT.SellerCountry)
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("CART_DEBOUNCE_WINDOW", "250ms")
	t.Setenv("CART_MAX_QUANTITY", "24")
	t.Setenv("VAT_SELLER_COUNTRY", "FR")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://shop.example,https://admin.example")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Cart.DebounceWindow)
	assert.Equal(t, 24, cfg.Cart.MaxQuantity)
	assert.Equal(t, "FR", cfg.VAT.SellerCountry)
	assert.Equal(t, []string{"https://shop.example", "https://admin.example"}, cfg.Security.CORSAllowedOrigins)
	assert.True(t, cfg.IsProduction())
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("CART_REQUEST_TIMEOUT", "soon")
	t.Setenv("REDIS_DB", "one")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Cart.RequestTimeout)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestValidate(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "a-secret-that-is-definitely-long-enough")
	t.Setenv("VAT_SELLER_COUNTRY", "NLD")
	_, err = Load()
	assert.ErrorContains(t, err, "VAT_SELLER_COUNTRY")

	t.Setenv("VAT_SELLER_COUNTRY", "NL")
	t.Setenv("CART_DEBOUNCE_WINDOW", "-1s")
	_, err = Load()
	assert.ErrorContains(t, err, "CART_DEBOUNCE_WINDOW")
}

func TestGetters(t *testing.T) {
	cfg := &Config{
		Database: DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "n", SSLMode: "disable"},
		Redis:    RedisConfig{Host: "cache", Port: "6379"},
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=n sslmode=disable", cfg.GetDatabaseDSN())
	assert.Equal(t, "cache:6379", cfg.GetRedisAddr())
}

func TestLoadClient_SkipsServerSettings(t *testing.T) {
	t.Setenv("JWT_SECRET", "short")
	t.Setenv("DB_HOST", "")
	t.Setenv("CART_API_URL", "https://shop.example")
	t.Setenv("CART_SESSION_ID", "5f0c2f7e-4a51-4a58-9a2b-1f1f3b0f6a10")

	_, err := Load()
	require.Error(t, err)

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example", cfg.Client.BaseURL)
	assert.Equal(t, "5f0c2f7e-4a51-4a58-9a2b-1f1f3b0f6a10", cfg.Client.SessionID)
	assert.Equal(t, 5, cfg.Client.BreakerMaxFailures)
}

func TestLoadClient_ValidatesCartSettings(t *testing.T) {
	t.Setenv("CART_DEBOUNCE_WINDOW", "0s")
	_, err := LoadClient()
	assert.ErrorContains(t, err, "CART_DEBOUNCE_WINDOW")

	t.Setenv("CART_DEBOUNCE_WINDOW", "1s")
	t.Setenv("CART_BREAKER_MAX_FAILURES", "-1")
	_, err = LoadClient()
	assert.ErrorContains(t, err, "circuit breaker")
}
