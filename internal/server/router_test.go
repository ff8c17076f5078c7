package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/aryan0dhankhar/portal/internal/bootstrap"
	"github.com/aryan0dhankhar/portal/internal/featureflags"
	"github.com/aryan0dhankhar/portal/internal/handler"
	"github.com/aryan0dhankhar/portal/internal/repository"
	"github.com/aryan0dhankhar/portal/internal/security/auth"
	"github.com/aryan0dhankhar/portal/internal/security/ratelimit"
	"github.com/aryan0dhankhar/portal/internal/service"
	"github.com/aryan0dhankhar/portal/internal/testutil"
	"github.com/aryan0dhankhar/portal/pkg/cache"
	"github.com/aryan0dhankhar/portal/pkg/config"
	"github.com/aryan0dhankhar/portal/pkg/database"
)

type fakeStartup struct{ done bool }

func (f fakeStartup) Finished() bool { return f.done }

type testEnv struct {
	handler http.Handler
	pool    *database.ConnectionPool
	hasher  *auth.PasswordHasher
}

func newEnv(t *testing.T, flags featureflags.Flags, startup handler.StartupState) *testEnv {
	t.Helper()

	pool := testutil.NewPool(t)
	require.NoError(t, pool.EnsureSchema(context.Background()))
	db := pool.DB()

	hasher := auth.NewPasswordHasher(bcrypt.MinCost)
	tokens, err := auth.NewTokenManager("test-secret", "HS256", "portal", time.Hour)
	require.NoError(t, err)

	authService := service.NewAuthService(
		repository.NewUserRepository(db, nil),
		repository.NewPartnerRepository(db, nil),
		hasher, tokens, 1, nil, nil,
	)
	dashboard := service.NewDashboardService(repository.NewDashboardRepository(db, nil), cache.New(), time.Minute, nil, nil)

	limiter := ratelimit.NewLimiter(100, time.Minute)
	t.Cleanup(limiter.Stop)

	cfg := &config.Config{
		AppName:            "portal-test",
		CORSAllowedOrigins: []string{"*"},
		StreamInterval:     time.Second,
		Flags:              flags,
	}

	h := NewRouter(Deps{
		Config:    cfg,
		Auth:      authService,
		Dashboard: dashboard,
		Limiter:   limiter,
		Startup:   startup,
		Checks:    map[string]handler.CheckFunc{"database": pool.Health},
	})
	return &testEnv{handler: h, pool: pool, hasher: hasher}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(t *testing.T, email, name, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "full_name": name, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req)
}

func (e *testEnv) login(t *testing.T, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"username": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(t, req)
}

func (e *testEnv) get(t *testing.T, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.do(t, req)
}

func accessToken(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "bearer", body.TokenType)
	require.NotEmpty(t, body.AccessToken)
	return body.AccessToken
}

func TestRegisterLoginMeOnEmptyStore(t *testing.T) {
	env := newEnv(t, featureflags.Defaults(), fakeStartup{done: true})

	rec := env.register(t, "alice@example.com", "Alice", "pw123456")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":1,"email":"alice@example.com","full_name":"Alice"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")

	rec = env.register(t, "alice@example.com", "Alice again", "pw123456")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"Email already registered"}`, rec.Body.String())

	rec = env.login(t, "alice@example.com", "wrong-password")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"Incorrect email or password"}`, rec.Body.String())

	rec = env.login(t, "nobody@example.com", "pw123456")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"Incorrect email or password"}`, rec.Body.String())

	token := accessToken(t, env.login(t, "alice@example.com", "pw123456"))

	rec = env.get(t, "/auth/me", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"id":1,"email":"alice@example.com","full_name":"Alice","partner":null,"outlet":null}`, rec.Body.String())

	rec = env.get(t, "/dashboard/kpis", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"revenue_today":0,"revenue_plan_percent":0,"labor_cost_percent":0,"food_cost_percent":0,"profit_forecast":0,"lfl_percent":0}`, rec.Body.String())

	for _, path := range []string{"/dashboard/ai-tickets", "/charts/weekly"} {
		rec = env.get(t, path, token)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.JSONEq(t, `[]`, rec.Body.String(), path)
	}

	rec = env.get(t, "/franchise/summary", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"royalty_due":0,"marketing_due":0,"supplies_due":0,"qsc_index":0}`, rec.Body.String())
}

func TestRegisterValidation(t *testing.T) {
	env := newEnv(t, featureflags.Defaults(), nil)

	rec := env.register(t, "not-an-email", "", "pw")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Detail map[string]string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "email", body.Detail["email"])
	assert.Equal(t, "required", body.Detail["full_name"])

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec = env.do(t, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader("email=a"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = env.do(t, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestRegistrationFlagOff(t *testing.T) {
	flags := featureflags.Defaults()
	flags[featureflags.Registration] = false
	env := newEnv(t, flags, nil)

	rec := env.register(t, "bob@example.com", "Bob", "pw123456")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnauthenticatedAnswersAreUniform(t *testing.T) {
	env := newEnv(t, featureflags.Defaults(), nil)
	require.Equal(t, http.StatusCreated, env.register(t, "carol@example.com", "Carol", "pw123456").Code)

	other, err := auth.NewTokenManager("another-secret", "HS256", "portal", time.Hour)
	require.NoError(t, err)
	foreign, _, err := other.Issue("carol@example.com", time.Now())
	require.NoError(t, err)

	ghostIssuer, err := auth.NewTokenManager("test-secret", "HS256", "portal", time.Hour)
	require.NoError(t, err)
	ghost, _, err := ghostIssuer.Issue("ghost@example.com", time.Now())
	require.NoError(t, err)

	paths := []string{"/auth/me", "/dashboard/kpis", "/dashboard/ai-tickets", "/franchise/summary", "/charts/weekly"}
	for _, token := range []string{"", "garbage", foreign, ghost} {
		for _, path := range paths {
			rec := env.get(t, path, token)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
			assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
			assert.JSONEq(t, `{"detail":"Could not validate credentials"}`, rec.Body.String())
		}
	}
}

func TestSeededTenantDashboard(t *testing.T) {
	env := newEnv(t, featureflags.Defaults(), nil)

	seed := config.SeedConfig{
		UserEmail:    "demo@portal.test",
		UserPassword: "demo1234",
		UserFullName: "Demo Partner",
		PartnerName:  "Portal Franchise",
		OutletName:   "Outlet #1",
	}
	seeder := bootstrap.NewSeeder(env.pool, env.pool.DB(), env.hasher, seed, nil, nil)
	res, err := seeder.Seed(context.Background())
	require.NoError(t, err)
	require.Equal(t, bootstrap.ResultSeeded, res)

	token := accessToken(t, env.login(t, "demo@portal.test", "demo1234"))

	rec := env.get(t, "/auth/me", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var me struct {
		Partner *struct {
			Name string `json:"name"`
		} `json:"partner"`
		Outlet *struct {
			Name       string `json:"name"`
			ExternalID string `json:"external_id"`
		} `json:"outlet"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.NotNil(t, me.Partner)
	require.NotNil(t, me.Outlet)
	assert.Equal(t, "Portal Franchise", me.Partner.Name)
	assert.Equal(t, "OUT-001", me.Outlet.ExternalID)

	rec = env.get(t, "/dashboard/kpis", token)
	require.Equal(t, http.StatusOK, rec.Code)
	var kpis service.KpiSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &kpis))
	assert.Equal(t, float64(90000), kpis.RevenueToday)

	rec = env.get(t, "/charts/weekly", token)
	var weekly []service.WeeklyPoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &weekly))
	require.Len(t, weekly, 7)
	assert.Less(t, weekly[0].Day, weekly[6].Day)

	rec = env.get(t, "/dashboard/ai-tickets", token)
	var tickets []service.Ticket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tickets))
	require.Len(t, tickets, 2)
	assert.Greater(t, tickets[0].ID, tickets[1].ID)

	rec = env.get(t, "/franchise/summary", token)
	assert.JSONEq(t, `{"royalty_due":80000,"marketing_due":60000,"supplies_due":120000,"qsc_index":82.5}`, rec.Body.String())

	// users registered afterwards join the seeded partner
	require.Equal(t, http.StatusCreated, env.register(t, "dave@example.com", "Dave", "pw123456").Code)
	daveToken := accessToken(t, env.login(t, "dave@example.com", "pw123456"))
	rec = env.get(t, "/auth/me", daveToken)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	require.NotNil(t, me.Partner)
	assert.Equal(t, "Portal Franchise", me.Partner.Name)
}

func TestChangePassword(t *testing.T) {
	env := newEnv(t, featureflags.Defaults(), nil)
	require.Equal(t, http.StatusCreated, env.register(t, "erin@example.com", "Erin", "pw123456").Code)
	token := accessToken(t, env.login(t, "erin@example.com", "pw123456"))

	change := func(oldPw, newPw string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(map[string]string{"old_password": oldPw, "new_password": newPw})
		req := httptest.NewRequest(http.MethodPost, "/auth/change-password", strings.NewReader(string(body)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		return env.do(t, req)
	}

	assert.Equal(t, http.StatusBadRequest, change("nope", "newpass123").Code)
	assert.Equal(t, http.StatusNoContent, change("pw123456", "newpass123").Code)

	assert.Equal(t, http.StatusBadRequest, env.login(t, "erin@example.com", "pw123456").Code)
	accessToken(t, env.login(t, "erin@example.com", "newpass123"))
}

func TestHealthAndReadiness(t *testing.T) {
	env := newEnv(t, featureflags.Defaults(), fakeStartup{done: false})

	rec := env.get(t, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = env.get(t, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"not_ready","checks":{"bootstrap":"pending","database":"ok"}}`, rec.Body.String())

	t.Run("finished", func(t *testing.T) {
		ready := newEnv(t, featureflags.Defaults(), fakeStartup{done: true})
		rec := ready.get(t, "/ready", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ready","checks":{"bootstrap":"ok","database":"ok"}}`, rec.Body.String())
	})

	rec = env.get(t, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "portal_http_requests_total")
}

func TestStoreOutageIsInternalError(t *testing.T) {
	env := newEnv(t, featureflags.Defaults(), nil)
	require.Equal(t, http.StatusCreated, env.register(t, "frank@example.com", "Frank", "pw123456").Code)
	token := accessToken(t, env.login(t, "frank@example.com", "pw123456"))

	require.NoError(t, env.pool.Close())

	rec := env.get(t, "/auth/me", token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"Internal server error"}`, rec.Body.String())

	rec = env.get(t, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDashboardStream(t *testing.T) {
	env := newEnv(t, featureflags.Defaults(), nil)
	require.Equal(t, http.StatusCreated, env.register(t, "gina@example.com", "Gina", "pw123456").Code)
	token := accessToken(t, env.login(t, "gina@example.com", "pw123456"))

	srv := httptest.NewServer(env.handler)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/dashboard"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+url.QueryEscape(token), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var snap service.Snapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.Equal(t, int64(0), snap.OpenTickets)
	assert.Zero(t, snap.Kpis.RevenueToday)
	assert.False(t, snap.SentAt.IsZero())
}

func TestLoginAcceptsMultipartForm(t *testing.T) {
	env := newEnv(t, featureflags.Defaults(), nil)
	require.Equal(t, http.StatusCreated, env.register(t, "alice@example.com", "Alice", "pw123456").Code)

	multipartLogin := func(password string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		mw := multipart.NewWriter(&body)
		require.NoError(t, mw.WriteField("username", "alice@example.com"))
		require.NoError(t, mw.WriteField("password", password))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/auth/login", &body)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return env.do(t, req)
	}

	token := accessToken(t, multipartLogin("pw123456"))
	assert.Equal(t, http.StatusOK, env.get(t, "/auth/me", token).Code)

	rec := multipartLogin("wrong-password")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"detail":"Incorrect email or password"}`, rec.Body.String())
}
