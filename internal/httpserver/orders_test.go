package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paycrypt/internal/repo"
)

const testAdminSecret = "admin-secret"

func adminToken(t *testing.T, method jwt.SigningMethod, secret string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(method, jwt.MapClaims{
		"sub": "ops@paycrypt",
		"exp": expires.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestGetOrder(t *testing.T) {
	env := newTestEnv(t, Options{})
	seeded := seedOrder(t, env.store, "req-1", "0x1", "0xuser", repo.ServiceAirtime)

	rec, body := env.do(t, http.MethodGet, "/api/orders/req-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	order := body["order"].(map[string]any)
	assert.Equal(t, seeded.ID, order["id"])
	assert.Equal(t, "pending", order["vtpassStatus"])

	rec, body = env.do(t, http.MethodGet, "/api/orders/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "missing", body["requestId"])
}

func TestUserOrdersPaging(t *testing.T) {
	env := newTestEnv(t, Options{})
	for i := range 3 {
		seedOrder(t, env.store, fmt.Sprintf("req-%d", i), fmt.Sprintf("0x%d", i), "0xUSER", repo.ServiceAirtime)
	}
	seedOrder(t, env.store, "req-other", "0xother", "0xother", repo.ServiceAirtime)

	rec, body := env.do(t, http.MethodGet, "/api/orders/user/0xuser?page=2&limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Len(t, body["orders"], 1)
	pagination := body["pagination"].(map[string]any)
	assert.EqualValues(t, 2, pagination["page"])
	assert.EqualValues(t, 3, pagination["total"])
	assert.EqualValues(t, 2, pagination["pages"])

	rec, body = env.do(t, http.MethodGet, "/api/orders/user/0xnobody", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body["orders"])

	rec, _ = env.do(t, http.MethodGet, "/api/orders/user/0xuser?limit=ten", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/orders/user/0xuser?chainId=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListOrdersRequiresAdminToken(t *testing.T) {
	env := newTestEnv(t, Options{AdminJWTSecret: testAdminSecret})
	seedOrder(t, env.store, "req-1", "0x1", "0xuser", repo.ServiceAirtime)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + adminToken(t, jwt.SigningMethodHS256, "other", time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"wrong algorithm", "Bearer " + adminToken(t, jwt.SigningMethodHS512, testAdminSecret, time.Now().Add(time.Hour)), http.StatusUnauthorized},
		{"expired", "Bearer " + adminToken(t, jwt.SigningMethodHS256, testAdminSecret, time.Now().Add(-time.Hour)), http.StatusUnauthorized},
		{"valid", "Bearer " + adminToken(t, jwt.SigningMethodHS256, testAdminSecret, time.Now().Add(time.Hour)), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var headers []string
			if tt.header != "" {
				headers = []string{"Authorization", tt.header}
			}
			rec, _ := env.do(t, http.MethodGet, "/api/orders", "", headers...)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestListOrdersFilters(t *testing.T) {
	env := newTestEnv(t, Options{})
	seedOrder(t, env.store, "req-air", "0x1", "0xalice", repo.ServiceAirtime)
	seedOrder(t, env.store, "req-net", "0x2", "0xalice", repo.ServiceInternet)
	seedOrder(t, env.store, "req-bob", "0x3", "0xbob", repo.ServiceInternet)
	_, err := env.store.UpdateOrder(context.Background(), "req-bob", repo.OrderPatch{VTpassStatus: repo.VTpassFailed})
	require.NoError(t, err)

	tests := []struct {
		name  string
		query string
		total int
	}{
		{"all", "", 3},
		{"data alias", "?serviceType=data", 2},
		{"user", "?user=0xALICE", 2},
		{"status", "?vtpassStatus=failed", 1},
		{"recent range", "?range=24h", 3},
		{"past year", "?range=2001", 0},
		{"combined", "?serviceType=internet&user=0xalice&chainId=8453", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, http.MethodGet, "/api/orders"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			pagination := body["pagination"].(map[string]any)
			assert.EqualValues(t, tt.total, pagination["total"])
		})
	}
}

func TestListOrdersRejectsBadFilters(t *testing.T) {
	env := newTestEnv(t, Options{})
	for _, query := range []string{"?range=2025-13", "?range=9999999d", "?serviceType=gas", "?vtpassStatus=done", "?page=-1"} {
		rec, body := env.do(t, http.MethodGet, "/api/orders"+query, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
		assert.Equal(t, "error", body["status"], query)
	}
}

func TestRecentOrders(t *testing.T) {
	env := newTestEnv(t, Options{AdminJWTSecret: testAdminSecret})
	for i := range 3 {
		seedOrder(t, env.store, fmt.Sprintf("req-%d", i), fmt.Sprintf("0x%d", i), "0xuser", repo.ServiceAirtime)
	}

	tests := []struct {
		name      string
		query     string
		count     int
		requested int
	}{
		{"default count", "", 3, 10},
		{"explicit count", "?count=2", 2, 2},
		{"below minimum", "?count=0", 1, 1},
		{"above cap", "?count=500", 3, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, http.MethodGet, "/api/orders/recent"+tt.query, "")
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			assert.Len(t, body["orders"], tt.count)
			assert.EqualValues(t, tt.count, body["count"])
			assert.EqualValues(t, tt.requested, body["requested"])
		})
	}

	rec, body := env.do(t, http.MethodGet, "/api/orders/recent?count=ten", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "count must be an integer", body["error"])
}
