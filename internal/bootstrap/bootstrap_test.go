package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"AlertDesk/pkg/config"
	"AlertDesk/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	cfg := config.FromEnv()
	cfg.DBDriver = util.DriverSQLite
	cfg.DSN = filepath.Join(t.TempDir(), "app.db")
	cfg.JWTSecret = "test-secret"
	cfg.Mode = "test"
	cfg.SearchEnabled = true
	cfg.AuditEnabled = true
	return cfg
}

func TestNewWiresTheHTTPSurface(t *testing.T) {
	app, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		util.Sig().Disconnect()
		app.Close()
	})

	for _, path := range []string{"/api/system/health", "/metrics", "/ws/health"} {
		w := httptest.NewRecorder()
		app.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}

	w := httptest.NewRecorder()
	app.Engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sse/alerts/organizations/1", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	assert.Contains(t, app.Cron.Names(), "alert-gauge")
}

func TestSMSLimiterFollowsConfig(t *testing.T) {
	post := func(app *App) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/sms/inbound", strings.NewReader("From=1100000000&Body=hola"))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		app.Engine.ServeHTTP(w, req)
		return w.Code
	}

	cfg := testConfig(t)
	cfg.SMSRate = "1-M"
	cfg.SMSAllowCIDRs = []string{"192.0.2.0/24"} // httptest 的来源地址
	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() {
		util.Sig().Disconnect()
		app.Close()
	})
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusBadRequest, post(app))
	}

	cfg = testConfig(t)
	cfg.RateDenyCIDRs = []string{"192.0.2.0/24"}
	denied, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { denied.Close() })
	assert.Equal(t, http.StatusTooManyRequests, post(denied))
}

func TestMigrate(t *testing.T) {
	require.NoError(t, Migrate(testConfig(t)))
}

func TestRunStopsWithContext(t *testing.T) {
	cfg := testConfig(t)
	cfg.Addr = "127.0.0.1:0"
	app, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { util.Sig().Disconnect() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, app.Run(ctx))
}
