package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"AlertDesk/internal/listeners"
	"AlertDesk/internal/models"
	"AlertDesk/pkg/cache"
	"AlertDesk/pkg/config"
	"AlertDesk/pkg/metrics"
	"AlertDesk/pkg/middleware"
	"AlertDesk/pkg/pubsub"
	"AlertDesk/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type env struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
	bus    *pubsub.MemoryBus
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := util.InitDatabase(io.Discard, util.DriverSQLite, filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db, &middleware.OperationLog{}))

	store, err := cache.NewLocalCache(cache.DefaultLocalConfig())
	require.NoError(t, err)
	bus := pubsub.NewMemoryBus(16)
	listeners.InitAlertListeners(bus)
	t.Cleanup(func() {
		util.Sig().Disconnect()
		_ = bus.Close()
		_ = store.Close()
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	cfg := &config.Config{APIPrefix: "/api", WSTicketTTL: time.Minute, MetricsPath: "/metrics"}
	tokens := models.NewTokenIssuer("test-secret", time.Minute, time.Hour)
	h := NewHandlers(db, cfg, Deps{
		Auth:        models.NewAuthenticator(db, tokens, store),
		Tokens:      tokens,
		Metrics:     metrics.NewMetrics(),
		Idempotency: store,
		Audit:       &middleware.OperationLogConfig{Actor: AuditActor},
	})
	r := gin.New()
	h.Register(r)
	return &env{t: t, db: db, router: r, bus: bus}
}

type reply struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

func (e *env) do(method, target, token string, body any) (*httptest.ResponseRecorder, reply) {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = strings.NewReader(string(b))
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var r reply
	_ = json.Unmarshal(w.Body.Bytes(), &r)
	return w, r
}

func (e *env) form(target string, values url.Values) (*httptest.ResponseRecorder, reply) {
	e.t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	var r reply
	_ = json.Unmarshal(w.Body.Bytes(), &r)
	return w, r
}

// registerAdmin creates an organization and returns its admin access token.
func (e *env) registerAdmin(email string) string {
	e.t.Helper()
	w, _ := e.do(http.MethodPost, "/api/users/admin", "", gin.H{
		"email": email, "password": "s3cret-pass", "password2": "s3cret-pass",
		"name": "John", "surname": "Smith", "organization_name": "CEIoT",
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	return e.login(email)
}

func (e *env) login(email string) string {
	e.t.Helper()
	w, r := e.do(http.MethodPost, "/api/token", "", gin.H{"email": email, "password": "s3cret-pass"})
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	var pair models.TokenPair
	require.NoError(e.t, json.Unmarshal(r.Data, &pair))
	return pair.Access
}

func (e *env) createBeneficiary(token, phone string) uint {
	e.t.Helper()
	w, r := e.do(http.MethodPost, "/api/beneficiaries", token, gin.H{
		"name": "Juana", "surname": "Pérez", "telephone": phone, "company": "CLA",
	})
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	var b models.Beneficiary
	require.NoError(e.t, json.Unmarshal(r.Data, &b))
	return b.ID
}

func alertOf(t *testing.T, r reply) models.AlertPayload {
	t.Helper()
	var p models.AlertPayload
	require.NoError(t, json.Unmarshal(r.Data, &p))
	return p
}

func TestAlertLifecycleOverAPI(t *testing.T) {
	e := newEnv(t)
	token := e.registerAdmin("root@ceiot.test")
	e.createBeneficiary(token, "1154047987")

	w, r := e.do(http.MethodPost, "/api/alerts", token, gin.H{
		"telephone": "1154047987", "latitude": "-34.75", "longitude": -58.29,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := alertOf(t, r)
	assert.Equal(t, models.StateNew, created.State)
	assert.Equal(t, "-34.75000000", created.Latitude)

	path := fmt.Sprintf("/api/alerts/%d", created.ID)
	w, r = e.do(http.MethodPatch, path, token, gin.H{"state": "A", "observations": "en camino"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	attended := alertOf(t, r)
	assert.Equal(t, models.StateAttended, attended.State)
	require.NotNil(t, attended.DatetimeAttended)
	require.NotNil(t, attended.OperatorID)

	w, r = e.do(http.MethodPatch, path, token, gin.H{"state": "A"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidTransition", r.Kind)

	w, r = e.do(http.MethodPatch, path, token, gin.H{"state": "C"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	closed := alertOf(t, r)
	assert.Equal(t, models.StateClosed, closed.State)
	require.NotNil(t, closed.DatetimeClosed)
	assert.False(t, closed.DatetimeClosed.Before(*closed.DatetimeAttended))
	assert.False(t, closed.DatetimeAttended.Before(closed.Datetime))

	w, r = e.do(http.MethodGet, "/api/alerts?state=closed", token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.AlertPayload
	require.NoError(t, json.Unmarshal(r.Data, &list))
	assert.Len(t, list, 1)
}

func TestCreateAlertRejections(t *testing.T) {
	e := newEnv(t)
	token := e.registerAdmin("root@ceiot.test")
	id := e.createBeneficiary(token, "1154047987")

	w, _ := e.do(http.MethodPost, "/api/alerts", "", gin.H{"telephone": "1154047987", "latitude": 1, "longitude": 1})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, r := e.do(http.MethodPost, "/api/alerts", token, gin.H{"telephone": "1154047987", "latitude": "north", "longitude": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(http.MethodDelete, fmt.Sprintf("/api/beneficiaries/%d", id), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, r = e.do(http.MethodPost, "/api/alerts", token, gin.H{"telephone": "1154047987", "latitude": 1, "longitude": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UnknownOrBeneficiaryDisabled", r.Kind)

	var n int64
	require.NoError(t, e.db.Model(&models.Alert{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestSMSInbound(t *testing.T) {
	e := newEnv(t)
	token := e.registerAdmin("root@ceiot.test")
	e.createBeneficiary(token, "1154047987")

	sub, err := e.bus.Subscribe("1")
	require.NoError(t, err)

	msg := url.Values{
		"From":       {"+1154047987"},
		"Body":       {"SOS https://maps.google.com/?q=-34.75,-58.29 enviado"},
		"MessageSid": {"SM0001"},
	}
	w, r := e.form("/api/sms/inbound", msg)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	first := alertOf(t, r)
	assert.Equal(t, "SM0001", first.MessageSID)

	select {
	case payload := <-sub.Messages():
		var p models.AlertPayload
		require.NoError(t, json.Unmarshal(payload, &p))
		assert.Equal(t, first.ID, p.ID)
	case <-time.After(time.Second):
		t.Fatal("alert not broadcast")
	}

	w, r = e.form("/api/sms/inbound", msg)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first.ID, alertOf(t, r).ID)

	w, r = e.do(http.MethodPost, "/api/sms/inbound", "", gin.H{"telephone": "1154047987", "body": "help me"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "MalformedLocation", r.Kind)

	w, r = e.form("/api/sms/inbound", url.Values{"From": {"1199999999"}, "Body": {"https://maps.google.com/?q=1,2"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UnknownOrBeneficiaryDisabled", r.Kind)
}

func TestOrganizationsAreIsolated(t *testing.T) {
	e := newEnv(t)
	first := e.registerAdmin("one@ceiot.test")
	second := e.registerAdmin("two@ceiot.test")
	id := e.createBeneficiary(first, "1154047987")

	w, _ := e.do(http.MethodGet, fmt.Sprintf("/api/beneficiaries/%d", id), second, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, r := e.do(http.MethodGet, "/api/beneficiaries?q=Juana", second, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", string(r.Data))

	w, r = e.do(http.MethodGet, "/api/beneficiaries?q=Juana", first, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list []models.Beneficiary
	require.NoError(t, json.Unmarshal(r.Data, &list))
	assert.Len(t, list, 1)

	w, _ = e.do(http.MethodGet, "/api/beneficiaries/abc", first, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateAlertStaysInCallerOrganization(t *testing.T) {
	e := newEnv(t)
	first := e.registerAdmin("one@ceiot.test")
	second := e.registerAdmin("two@ceiot.test")
	e.createBeneficiary(first, "1154047987")
	e.createBeneficiary(second, "1154040000")

	w, _ := e.do(http.MethodPost, "/api/alerts", first, gin.H{
		"telephone": "1154047987", "latitude": 1, "longitude": 2, "message_sid": "SMshared",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w, r := e.do(http.MethodPost, "/api/alerts", second, gin.H{
		"telephone": "1154047987", "latitude": 1, "longitude": 2,
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "UnknownOrBeneficiaryDisabled", r.Kind)

	w, r = e.do(http.MethodPost, "/api/alerts", second, gin.H{
		"telephone": "1154040000", "latitude": 1, "longitude": 2, "message_sid": "SMshared",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation", r.Kind)
	assert.NotContains(t, w.Body.String(), "1154047987")

	var n int64
	require.NoError(t, e.db.Model(&models.Alert{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestOperatorsCannotManageTypes(t *testing.T) {
	e := newEnv(t)
	admin := e.registerAdmin("root@ceiot.test")

	w, _ := e.do(http.MethodPost, "/api/users/operator", admin, gin.H{
		"email": "ops@ceiot.test", "password": "s3cret-pass", "password2": "s3cret-pass",
		"name": "Jane", "surname": "Doe",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ops := e.login("ops@ceiot.test")

	w, _ = e.do(http.MethodPost, "/api/alert-types", ops, gin.H{"code": "VIO", "description": "Violencia"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = e.do(http.MethodPost, "/api/alert-types", admin, gin.H{"code": "VIO", "description": "Violencia"})
	require.Equal(t, http.StatusCreated, w.Code)
	w, r := e.do(http.MethodPost, "/api/alert-types", admin, gin.H{"code": "VIO", "description": "Otra"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "DuplicateCode", r.Kind)

	w, r = e.do(http.MethodGet, "/api/alert-types", ops, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var types []models.AlertType
	require.NoError(t, json.Unmarshal(r.Data, &types))
	assert.Len(t, types, 1)

	w, r = e.do(http.MethodGet, "/api/users", ops, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []models.User
	require.NoError(t, json.Unmarshal(r.Data, &users))
	assert.Len(t, users, 2)

	w, _ = e.do(http.MethodGet, "/api/system/operation-logs", ops, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, r = e.do(http.MethodGet, "/api/system/operation-logs", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs []middleware.OperationLog
	require.NoError(t, json.Unmarshal(r.Data, &logs))
	assert.NotEmpty(t, logs)
}

func TestTokensAndTickets(t *testing.T) {
	e := newEnv(t)
	e.registerAdmin("root@ceiot.test")

	w, r := e.do(http.MethodPost, "/api/token", "", gin.H{"email": "root@ceiot.test", "password": "s3cret-pass"})
	require.Equal(t, http.StatusOK, w.Code)
	var pair models.TokenPair
	require.NoError(t, json.Unmarshal(r.Data, &pair))

	w, _ = e.do(http.MethodPost, "/api/token", "", gin.H{"email": "root@ceiot.test", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, r = e.do(http.MethodPost, "/api/token/refresh", "", gin.H{"refresh": pair.Refresh})
	require.Equal(t, http.StatusOK, w.Code)
	var refreshed struct{ Access string }
	require.NoError(t, json.Unmarshal(r.Data, &refreshed))
	assert.NotEmpty(t, refreshed.Access)

	w, r = e.do(http.MethodPost, "/api/ws/auth", pair.Access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var ticket struct{ UUID string }
	require.NoError(t, json.Unmarshal(r.Data, &ticket))
	require.NotEmpty(t, ticket.UUID)

	w, _ = e.do(http.MethodGet, "/api/users/details?uuid="+ticket.UUID, "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = e.do(http.MethodGet, "/api/users/details?uuid="+ticket.UUID, "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newEnv(t)
	w, _ := e.do(http.MethodGet, "/api/system/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	w, _ = e.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
