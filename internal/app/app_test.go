package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xenking/market-orders/internal/domain/auth"
	"github.com/xenking/market-orders/internal/domain/product"
	"github.com/xenking/market-orders/internal/domain/user"
	"github.com/xenking/market-orders/internal/notify"
	"github.com/xenking/market-orders/pkg/health"
)

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }

func (noopTelemetry) MeterProvider() metric.MeterProvider { return metricnoop.NewMeterProvider() }

type recordingSender struct {
	sent []notify.Message
}

func (s *recordingSender) Send(_ context.Context, m notify.Message) error {
	s.sent = append(s.sent, m)
	return nil
}

func testLoader(files ...string) aconfig.Config {
	return aconfig.Config{
		EnvPrefix: "MARKET",
		SkipFlags: true,
		SkipFiles: len(files) == 0,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://market@localhost/market")
	t.Setenv("PORT", "")
	t.Setenv("MARKET_AUTH_TOKEN_PEPPER", "pepper")

	cfg, err := loadConfig(testLoader())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://market@localhost/market", cfg.Storage.DatabaseURL)
	assert.True(t, cfg.Orders.AllowEmpty)
	assert.Equal(t, 5*time.Second, cfg.Orders.NotifyTimeout)
	assert.Equal(t, "orders.confirmed", cfg.Notify.Topic)
	assert.Empty(t, cfg.Notify.Brokers)
	assert.Equal(t, 100, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
}

func TestLoadConfig_PlatformPort(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://market@localhost/market")
	t.Setenv("PORT", "9090")
	t.Setenv("MARKET_AUTH_TOKEN_PEPPER", "pepper")

	cfg, err := loadConfig(testLoader())
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)
}

func TestLoadConfig_YAML(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join([]string{
		"addr: 127.0.0.1:9999",
		"storage:",
		"  driver: sqlite",
		"auth:",
		"  token_pepper: yaml-pepper",
		"",
	}, "\n")), 0o600))

	cfg, err := loadConfig(testLoader(path))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9999", cfg.Addr)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, "market.db", cfg.Storage.SQLitePath)
	assert.Equal(t, "yaml-pepper", cfg.Auth.TokenPepper)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			Storage:   StorageConfig{Driver: DriverSQLite, SQLitePath: ":memory:"},
			Auth:      AuthConfig{TokenPepper: "pepper"},
			Orders:    OrdersConfig{NotifyTimeout: time.Second},
			RateLimit: RateLimitConfig{Max: 10, Window: time.Minute},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"postgres without url", func(c *Config) { c.Storage.Driver = DriverPostgres }, "database URL is required"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, `unknown storage driver "mysql"`},
		{"no pepper", func(c *Config) { c.Auth.TokenPepper = "" }, "token pepper is required"},
		{"zero window", func(c *Config) { c.RateLimit.Window = 0 }, "rate limit window"},
		{"rate limit disabled", func(c *Config) { c.RateLimit = RateLimitConfig{} }, ""},
		{"zero notify timeout", func(c *Config) { c.Orders.NotifyTimeout = 0 }, "notify timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOpenStorage_UnknownDriver(t *testing.T) {
	_, err := OpenStorage(context.Background(), zap.NewNop(), StorageConfig{Driver: "mysql"})
	require.Error(t, err)
}

func TestHandler_EndToEnd(t *testing.T) {
	ctx := context.Background()
	cfg := &Config{
		Storage:   StorageConfig{Driver: DriverSQLite, SQLitePath: ":memory:"},
		Auth:      AuthConfig{TokenPepper: "pepper"},
		Orders:    OrdersConfig{AllowEmpty: true, NotifyTimeout: time.Second},
		RateLimit: RateLimitConfig{Max: 1000, Window: time.Minute},
	}

	store, err := OpenStorage(ctx, zap.NewNop(), cfg.Storage)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	buyer := &user.User{Email: "buyer@example.com", TokenHash: auth.HashToken([]byte("pepper"), "secret")}
	require.NoError(t, store.Users.Create(ctx, buyer))
	p := &product.Product{UserID: buyer.ID, Title: "Lamp", Price: decimal.RequireFromString("12.50")}
	require.NoError(t, store.Products.Create(ctx, p))

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("sqlite", time.Second, store.Ping)
	healthSvc.SetReady(true)

	sender := &recordingSender{}
	h, err := newHandler(ctx, zaptest.NewLogger(t), noopTelemetry{}, cfg, store, sender, healthSvc)
	require.NoError(t, err)

	do := func(method, path, token, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if token != "" {
			req.Header.Set("Authorization", token)
		}
		req.RemoteAddr = "192.0.2.1:1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	rec := do(http.MethodPost, "/orders", "Bearer secret", `{"order":{"product_ids":[`+itoa(p.ID)+`,`+itoa(p.ID)+`],"total":"1.00"}}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"total":"25.00"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "1000", rec.Header().Get("X-RateLimit-Limit"))

	require.Len(t, sender.sent, 1)
	assert.Equal(t, "buyer@example.com", sender.sent[0].To)
	assert.Equal(t, 2, sender.sent[0].ProductCount)

	rec = do(http.MethodGet, "/orders", "", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	for _, path := range []string{"/livez", "/readyz"} {
		rec = do(http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	healthSvc.SetReady(false)
	rec = do(http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewSender(t *testing.T) {
	s, closeFn := newSender(zap.NewNop(), NotifyConfig{})
	assert.IsType(t, notify.LogSender{}, s)
	closeFn()

	s, closeFn = newSender(zap.NewNop(), NotifyConfig{Brokers: []string{"localhost:9092"}, Topic: "orders"})
	assert.IsType(t, &notify.KafkaSender{}, s)
	closeFn()
}

func itoa(v int64) string { return strconv.FormatInt(v, 10) }
