package routes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigmarket/gigmarket-backend/api/controllers"
	"github.com/gigmarket/gigmarket-backend/internal/ledger"
	pkgAuth "github.com/gigmarket/gigmarket-backend/pkg/auth"
	"github.com/gigmarket/gigmarket-backend/pkg/config"
	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	"github.com/gigmarket/gigmarket-backend/pkg/metrics"
	"github.com/gigmarket/gigmarket-backend/pkg/pagination"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubSessions struct{}

func (stubSessions) HasSession(context.Context, string) (bool, error) { return true, nil }

type memoryRedis struct {
	mu     sync.Mutex
	data   map[string]string
	counts map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{data: map[string]string{}, counts: map[string]int64{}}
}

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", goredis.Nil
	}
	return v, nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; ok {
		return false, nil
	}
	m.data[key] = fmt.Sprint(value)
	return true, nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "idem:" + scope + ":" + id
}

func (m *memoryRedis) RateLimitKey(scope string) string {
	return "gm:rate_limit:" + scope
}

func (m *memoryRedis) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[key]++
	return m.counts[key], nil
}

type countingLedger struct {
	deposits int
}

func (c *countingLedger) Wallet(ctx context.Context, userID uuid.UUID) (*ledger.Wallet, error) {
	return &ledger.Wallet{}, nil
}

func (c *countingLedger) Deposit(ctx context.Context, userID uuid.UUID, req ledger.AmountRequest) (*ledger.MutationResult, error) {
	c.deposits++
	return &ledger.MutationResult{Transaction: &models.Transaction{Amount: req.Amount}, Balance: req.Amount.Mul(decimal.NewFromInt(int64(c.deposits)))}, nil
}

func (c *countingLedger) Withdraw(ctx context.Context, userID uuid.UUID, req ledger.AmountRequest) (*ledger.MutationResult, error) {
	return nil, nil
}

func (c *countingLedger) Transactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ledger.TransactionList, error) {
	return &ledger.TransactionList{}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{Secret: "router-secret", Issuer: "gigmarket-test", ExpirationMinutes: 15},
		Storage: config.StorageConfig{
			MaxUploadMB:       1,
			MaxFilesPerUpload: 2,
		},
	}
}

func newTestRouter(t *testing.T, led ledger.Service) (http.Handler, *config.Config) {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	metrics.NewSettlementMetrics(reg).ObserveAttempt("timer", "settled")
	handler := NewRouter(RouterParams{
		Config:    cfg,
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Readiness: map[string]controllers.Pinger{"db": stubPinger{}, "redis": stubPinger{}},
		Redis:     newMemoryRedis(),
		Sessions:  stubSessions{},
		Gatherer:  reg,
		Ledger:    led,
	})
	return handler, cfg
}

func bearer(t *testing.T, cfg *config.Config) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: uuid.New(),
		Role:   enums.AccountRoleUser,
	})
	require.NoError(t, err)
	return "Bearer " + token
}

func TestHealthAndMetricsArePublic(t *testing.T) {
	handler, _ := newTestRouter(t, &countingLedger{})

	for _, path := range []string{"/health/live", "/health/ready", "/api/public/ping"} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, resp.Code, path)
	}

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "gigmarket_settlement_attempts_total")
}

func TestPrivateRoutesRequireToken(t *testing.T) {
	handler, cfg := newTestRouter(t, &countingLedger{})

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil))
	assert.Equal(t, http.StatusUnauthorized, resp.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/wallet", nil)
	req.Header.Set("Authorization", bearer(t, cfg))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestDepositRequiresAndReplaysIdempotencyKey(t *testing.T) {
	led := &countingLedger{}
	handler, cfg := newTestRouter(t, led)
	auth := bearer(t, cfg)

	deposit := func(key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/wallet/deposit", strings.NewReader(`{"amount":"25.00"}`))
		req.Header.Set("Authorization", auth)
		req.Header.Set("Content-Type", "application/json")
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, req)
		return resp
	}

	assert.Equal(t, http.StatusBadRequest, deposit("").Code)

	first := deposit("dep-1")
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())
	second := deposit("dep-1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, led.deposits)
}

func TestOrderRoutesAreMounted(t *testing.T) {
	handler, cfg := newTestRouter(t, &countingLedger{})

	// A nil orders service still resolves the route and reports itself unavailable.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+uuid.NewString()+"/pay", nil)
	req.Header.Set("Authorization", bearer(t, cfg))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusInternalServerError, resp.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+uuid.NewString()+"/unknown", nil)
	req.Header.Set("Authorization", bearer(t, cfg))
	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
