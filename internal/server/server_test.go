package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/logger"

	"github.com/thebtf/lishe/internal/catalog"
	"github.com/thebtf/lishe/internal/config"
	gormdb "github.com/thebtf/lishe/internal/db/gorm"
	"github.com/thebtf/lishe/internal/recommend"
	"github.com/thebtf/lishe/internal/reminder"
	"github.com/thebtf/lishe/internal/scoring"
	"github.com/thebtf/lishe/internal/server/sse"
	"github.com/thebtf/lishe/pkg/models"
)

const (
	testToken = "s3cret"
	testCSV   = "code,Chakula,CA,P,MG,PROCNT,FIB,VITC,FAPU,ENERGY_KC\n" +
		"5,Mahindi,10,5,1,9.4,7.3,0,0.5,365\n" +
		"20,Mtama,40,10,5,11,6,0,1.2,339\n" +
		"60,Ulezi,20,0,0,7.3,3.6,0,0,320\n" +
		"210,Kuku,0,30,0,27,0,0,0.8,239\n" +
		"320,Samaki,50,40,0,22,0,0,1.5,206\n"
)

type sentMail struct{ to, subject, body string }

type fakeNotifier struct {
	sent []sentMail
	mu   sync.Mutex
}

func (f *fakeNotifier) Send(_ context.Context, to, subject, body string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMail{to, subject, body})
	return true
}

type fakeSweeper struct {
	err   error
	calls int
}

func (f *fakeSweeper) RunSweep(context.Context) (reminder.SweepResult, error) {
	f.calls++
	return reminder.SweepResult{Candidates: 3, Sent: 2, Failed: 1}, f.err
}

type testEnv struct {
	server   *Server
	notifier *fakeNotifier
	sweeper  *fakeSweeper
	records  *gormdb.RecordStore
}

func serverConfig() config.ServerConfig {
	cfg := config.Default().Server
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	return cfg
}

func newTestEnv(t *testing.T, cfg config.ServerConfig, token string) *testEnv {
	t.Helper()

	store, err := gormdb.NewStore(gormdb.Config{
		Driver:   gormdb.DriverSQLite,
		DSN:      filepath.Join(t.TempDir(), "server.db"),
		LogLevel: logger.Silent,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c, err := catalog.Parse(strings.NewReader(testCSV), "")
	require.NoError(t, err)
	holder := catalog.NewStaticHolder(c)

	env := &testEnv{
		notifier: &fakeNotifier{},
		sweeper:  &fakeSweeper{},
		records:  gormdb.NewRecordStore(store),
	}
	events := sse.NewBroadcaster()
	svc := recommend.NewService(
		scoring.NewEngine(nil), holder, env.records, env.notifier, events,
		recommend.Config{DefaultTopN: 5, MaxTopN: 10}, zerolog.Nop(),
	)
	env.server = New(cfg, token, "test", Deps{
		Recommend: svc,
		Users:     gormdb.NewUserStore(store),
		Records:   env.records,
		Catalog:   holder,
		Reminders: env.sweeper,
		DB:        store,
		Events:    events,
	}, zerolog.Nop())
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func recommendationBody(email string) map[string]interface{} {
	return map[string]interface{}{
		"email":  email,
		"name":   "Asha",
		"goal":   "Afya ya Mifupa",
		"groups": []string{"A1", "D1"},
		"top_n":  2,
		"profile": map[string]interface{}{
			"sex":            "F",
			"activity_level": "Moderate",
			"height_m":       1.65,
			"weight_kg":      60,
			"age":            25,
		},
	}
}

func TestHealthAndVersion(t *testing.T) {
	env := newTestEnv(t, serverConfig(), testToken)

	rr := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	health := decode[map[string]interface{}](t, rr)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "test", health["version"])
	assert.EqualValues(t, 5, health["catalog_rows"])
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))

	rr = env.do(t, http.MethodGet, "/api/version", nil)
	assert.Equal(t, "test", decode[map[string]string](t, rr)["version"])

	rr = env.do(t, http.MethodGet, "/api/ready", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, gormdb.HealthHealthy, decode[readyResponse](t, rr).Status)
}

type fakeHealth struct{ info gormdb.HealthInfo }

func (f *fakeHealth) HealthCheck(context.Context) *gormdb.HealthInfo {
	info := f.info
	return &info
}

type fakeMailerStatus struct{}

func (fakeMailerStatus) Backend() string { return "smtp" }
func (fakeMailerStatus) State() string   { return "open" }

func TestReadyReflectsDatabaseHealth(t *testing.T) {
	env := newTestEnv(t, serverConfig(), testToken)
	health := &fakeHealth{}
	env.server.deps.DB = health

	health.info = gormdb.HealthInfo{
		Status:     gormdb.HealthDegraded,
		Driver:     "postgres",
		Warning:    "connection pool contention",
		P95Latency: 80 * time.Millisecond,
	}
	rr := env.do(t, http.MethodGet, "/api/ready", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	ready := decode[readyResponse](t, rr)
	assert.Equal(t, gormdb.HealthDegraded, ready.Status)
	assert.Equal(t, "connection pool contention", ready.Warning)
	assert.Equal(t, int64(80*time.Millisecond), ready.P95Latency)

	health.info = gormdb.HealthInfo{Status: gormdb.HealthUnhealthy, Error: "dial tcp: refused"}
	rr = env.do(t, http.MethodGet, "/api/ready", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, gormdb.HealthUnhealthy, decode[readyResponse](t, rr).Status)
	assert.NotContains(t, rr.Body.String(), "refused")
}

func TestHealthReportsNotifier(t *testing.T) {
	env := newTestEnv(t, serverConfig(), testToken)
	env.server.deps.Notifier = fakeMailerStatus{}

	health := decode[map[string]interface{}](t, env.do(t, http.MethodGet, "/health", nil))
	assert.Equal(t, map[string]interface{}{"backend": "smtp", "breaker": "open"}, health["notifier"])
}

func TestRequestIDIsEchoed(t *testing.T) {
	env := newTestEnv(t, serverConfig(), testToken)
	rr := env.do(t, http.MethodGet, "/health", nil, "X-Request-ID", "abc-123")
	assert.Equal(t, "abc-123", rr.Header().Get("X-Request-ID"))
}

func TestReferenceTables(t *testing.T) {
	env := newTestEnv(t, serverConfig(), testToken)

	goals := decode[[]models.HealthGoal](t, env.do(t, http.MethodGet, "/api/goals", nil))
	assert.NotEmpty(t, goals)

	groups := decode[[]models.FoodGroup](t, env.do(t, http.MethodGet, "/api/groups", nil))
	require.NotEmpty(t, groups)
	assert.Equal(t, "A1", groups[0].Code)

	levels := decode[[]activityLevel](t, env.do(t, http.MethodGet, "/api/activity-levels", nil))
	require.Len(t, levels, 5)
	assert.EqualValues(t, "Sedentary", levels[0].Level)
	assert.Equal(t, "hamna kazi", levels[0].Label)
	assert.InDelta(t, 1.2, levels[0].Factor, 1e-9)
}

func TestBodyMetrics(t *testing.T) {
	env := newTestEnv(t, serverConfig(), testToken)

	rr := env.do(t, http.MethodPost, "/api/body-metrics", map[string]interface{}{
		"sex": "F", "activity_level": "Moderate", "height_m": 1.65, "weight_kg": 60, "age": 25,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	m := decode[map[string]interface{}](t, rr)
	assert.InDelta(t, 22.04, m["bmi"], 1e-9)
	assert.InDelta(t, 1345.25, m["bmr"], 1e-9)
	assert.InDelta(t, 165, m["height_cm"], 1e-9)

	rr = env.do(t, http.MethodPost, "/api/body-metrics", map[string]interface{}{"sex": "X"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
	body := decode[errorBody](t, rr)
	assert.Equal(t, "validation_failed", body.Code)
	assert.NotEmpty(t, body.Fields)
}

func TestUsers(t *testing.T) {
	env := newTestEnv(t, serverConfig(), testToken)
	reg := map[string]string{"email": "Juma@Example.com", "name": "Juma", "password": "correct-horse"}

	rr := env.do(t, http.MethodPost, "/api/users/register", reg)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.NotContains(t, rr.Body.String(), "password")
	user := decode[models.User](t, rr)
	assert.Equal(t, "juma@example.com", user.Email)

	rr = env.do(t, http.MethodPost, "/api/users/register", reg)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "user_exists", decode[errorBody](t, rr).Code)

	rr = env.do(t, http.MethodPost, "/api/users/login", map[string]string{"email": "juma@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/users/login", map[string]string{"email": " JUMA@example.com", "password": "correct-horse"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Juma", decode[models.User](t, rr).Name)

	rr = env.do(t, http.MethodPost, "/api/users/register", map[string]string{"email": "x@example.com", "name": "X", "password": "short"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRecommendationLifecycle(t *testing.T) {
	env := newTestEnv(t, serverConfig(), testToken)

	rr := env.do(t, http.MethodPost, "/api/recommendations", recommendationBody("asha@example.com"))
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	created := decode[recommend.Response](t, rr)
	require.NotNil(t, created.Record)
	id := created.Record.ID
	path := "/api/recommendations/" + strconv.FormatInt(id, 10)
	assert.Equal(t, "Mtama", created.Groups[0].Foods[0].Name)

	history := decode[[]*models.RecommendationRecord](t, env.do(t, http.MethodGet, "/api/recommendations?email=ASHA@example.com", nil))
	require.Len(t, history, 1)
	assert.Equal(t, []string{"Mtama", "Ulezi", "Samaki", "Kuku"}, history[0].RecommendedFoods())

	eligible := decode[[]*models.RecommendationRecord](t, env.do(t, http.MethodGet, "/api/recommendations/eligible?email=asha@example.com", nil))
	assert.Len(t, eligible, 1)

	rr = env.do(t, http.MethodPost, path+"/feedback", map[string]interface{}{
		"email": "asha@example.com", "eaten_foods": []string{"Pizza"}, "rating": 3,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "unknown_food", decode[errorBody](t, rr).Code)

	rr = env.do(t, http.MethodPost, path+"/feedback", map[string]interface{}{
		"email": "asha@example.com", "eaten_foods": []string{" "}, "rating": 3,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	assert.Equal(t, "no_eaten_foods", decode[errorBody](t, rr).Code)

	rr = env.do(t, http.MethodPost, path+"/feedback", map[string]interface{}{
		"email": "other@example.com", "eaten_foods": []string{"Mtama"}, "rating": 3,
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodPost, path+"/feedback", map[string]interface{}{
		"email": "asha@example.com", "eaten_foods": []string{"Mtama", "Samaki"}, "rating": 3, "note": "nzuri",
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	done := decode[models.RecommendationRecord](t, rr)
	assert.Equal(t, models.StateCompleted, done.State)
	require.NotNil(t, done.Rating)
	assert.Equal(t, 3, *done.Rating)

	rr = env.do(t, http.MethodPost, path+"/feedback", map[string]interface{}{
		"email": "asha@example.com", "eaten_foods": []string{"Mtama"}, "rating": 1,
	})
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "feedback_closed", decode[errorBody](t, rr).Code)

	eligible = decode[[]*models.RecommendationRecord](t, env.do(t, http.MethodGet, "/api/recommendations/eligible?email=asha@example.com", nil))
	assert.Empty(t, eligible)

	rr = env.do(t, http.MethodPost, path+"/email", map[string]string{"email": "asha@example.com"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, decode[map[string]bool](t, rr)["sent"])
	require.Len(t, env.notifier.sent, 1)
	assert.Equal(t, "Mtama\nUlezi\nSamaki\nKuku", env.notifier.sent[0].body)
}

func TestRecommendationErrors(t *testing.T) {
	env := newTestEnv(t, serverConfig(), testToken)

	rr := env.do(t, http.MethodGet, "/api/recommendations", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body := recommendationBody("asha@example.com")
	body["groups"] = []string{}
	rr = env.do(t, http.MethodPost, "/api/recommendations", body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body = recommendationBody("asha@example.com")
	body["top_n"] = 99
	rr = env.do(t, http.MethodPost, "/api/recommendations", body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "invalid_request", decode[errorBody](t, rr).Code)

	rr = env.do(t, http.MethodPost, "/api/recommendations/abc/feedback", map[string]string{"email": "a@example.com"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/recommendations/42/email", map[string]string{"email": "a@example.com"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/recommendations", strings.NewReader("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/recommendations", strings.NewReader("email=x"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestNoFoodsIsNotStored(t *testing.T) {
	env := newTestEnv(t, serverConfig(), testToken)
	body := recommendationBody("asha@example.com")
	body["groups"] = []string{"Z9"}

	rr := env.do(t, http.MethodPost, "/api/recommendations", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Nil(t, decode[recommend.Response](t, rr).Record)

	all, err := env.records.ListAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestAdminEndpoints(t *testing.T) {
	env := newTestEnv(t, serverConfig(), testToken)

	rr := env.do(t, http.MethodPost, "/api/admin/reminders/sweep", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/admin/reminders/sweep", nil, AdminTokenHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/admin/reminders/sweep", nil, AdminTokenHeader, testToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, reminder.SweepResult{Candidates: 3, Sent: 2, Failed: 1}, decode[reminder.SweepResult](t, rr))
	assert.Equal(t, 1, env.sweeper.calls)

	rr = env.do(t, http.MethodPost, "/api/admin/reminders/sweep", nil, "Authorization", "Bearer "+testToken)
	assert.Equal(t, http.StatusOK, rr.Code)

	env.sweeper.err = errors.New("db down")
	rr = env.do(t, http.MethodPost, "/api/admin/reminders/sweep", nil, AdminTokenHeader, testToken)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "db down")

	rr = env.do(t, http.MethodPost, "/api/admin/catalog/reload", nil, AdminTokenHeader, testToken)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestAdminExport(t *testing.T) {
	env := newTestEnv(t, serverConfig(), testToken)

	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/users/register",
		map[string]string{"email": "juma@example.com", "name": "Juma", "password": "correct-horse"}).Code)
	require.Equal(t, http.StatusCreated, env.do(t, http.MethodPost, "/api/recommendations",
		recommendationBody("juma@example.com")).Code)

	rr := env.do(t, http.MethodGet, "/api/admin/export/users", nil, AdminTokenHeader, testToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,email,name,is_admin,created_at", lines[0])
	assert.Contains(t, lines[1], "juma@example.com")
	assert.NotContains(t, rr.Body.String(), "$2a$")

	rr = env.do(t, http.MethodGet, "/api/admin/export/history", nil, AdminTokenHeader, testToken)
	require.Equal(t, http.StatusOK, rr.Code)
	lines = strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "id,email,user_name"))
	assert.Contains(t, lines[1], "A1:Mtama|Ulezi;D1:Samaki|Kuku")
	assert.Contains(t, lines[1], ",pending,")

	rr = env.do(t, http.MethodGet, "/api/admin/export/catalog", nil, AdminTokenHeader, testToken)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Body.String(), "code,Chakula,"))

	rr = env.do(t, http.MethodGet, "/api/admin/export/secrets", nil, AdminTokenHeader, testToken)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAdminDisabledWithoutToken(t *testing.T) {
	env := newTestEnv(t, serverConfig(), "")
	rr := env.do(t, http.MethodPost, "/api/admin/reminders/sweep", nil, AdminTokenHeader, "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRateLimit(t *testing.T) {
	cfg := serverConfig()
	cfg.RateLimitReqs = 2
	cfg.RateLimitWindow = time.Minute
	env := newTestEnv(t, cfg, testToken)

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/goals", nil).Code)
	}
	assert.Equal(t, http.StatusTooManyRequests, env.do(t, http.MethodGet, "/api/goals", nil).Code)

	// health checks are not limited
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/health", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, serverConfig(), testToken)
	env.do(t, http.MethodGet, "/api/goals", nil)

	rr := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `lishe_http_requests_total{method="GET",route="/api/goals",status="200"}`)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	env := newTestEnv(t, serverConfig(), testToken)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- env.server.serveListener(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/health"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
