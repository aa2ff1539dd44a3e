package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/stay-reconciler/internal/auth"
	"github.com/josh-kwaku/stay-reconciler/internal/handler"
	"github.com/josh-kwaku/stay-reconciler/internal/repository"
)

const testSecret = "middleware-secret"

func bearer(t *testing.T, scopes ...auth.Scope) string {
	t.Helper()
	token, err := auth.GenerateToken(uuid.New(), scopes, testSecret, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	if resp.Error == nil {
		return ""
	}
	return resp.Error.Code
}

func TestAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, found := auth.ClaimsFromContext(r.Context())
		require.True(t, found)
		handler.RespondSuccess(w, http.StatusOK, claims.OperatorID)
	})
	h := Auth(testSecret, auth.ScopeAdmin)(ok)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"no header", "", http.StatusUnauthorized, "MISSING_TOKEN"},
		{"not bearer", "Basic abc", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"garbage token", "Bearer abc", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"wrong scope", bearer(t, auth.ScopePayments), http.StatusForbidden, "INSUFFICIENT_SCOPE"},
		{"admin", bearer(t, auth.ScopeAdmin), http.StatusOK, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/bookings/x/history", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, tc.wantCode, errorCode(t, rr))
		})
	}
}

type memoryIdempotencyRepo struct {
	mu      sync.Mutex
	entries map[string]*repository.IdempotencyCacheEntry
}

func (m *memoryIdempotencyRepo) Get(_ context.Context, key string, operatorID uuid.UUID) (*repository.IdempotencyCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.entries[key+operatorID.String()], nil
}

func (m *memoryIdempotencyRepo) Set(_ context.Context, e *repository.IdempotencyCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.Key+e.OperatorID.String()] = e
	return nil
}

func TestIdempotency(t *testing.T) {
	repo := &memoryIdempotencyRepo{entries: map[string]*repository.IdempotencyCacheEntry{}}
	calls := 0
	status := http.StatusCreated
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		handler.RespondSuccess(w, status, map[string]int{"call": calls})
	})
	h := Auth(testSecret, auth.ScopePayments)(Idempotency(repo, time.Hour)(inner))
	token := bearer(t, auth.ScopePayments)

	send := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payments", strings.NewReader(body))
		req.Header.Set("Authorization", token)
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	t.Run("missing key", func(t *testing.T) {
		rr := send("", `{}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "MISSING_IDEMPOTENCY_KEY", errorCode(t, rr))
	})

	t.Run("replays same request", func(t *testing.T) {
		first := send("k1", `{"amount":"10.00"}`)
		second := send("k1", `{"amount":"10.00"}`)

		assert.Equal(t, http.StatusCreated, second.Code)
		assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replayed"))
		assert.JSONEq(t, first.Body.String(), second.Body.String())
		assert.Equal(t, 1, calls)
	})

	t.Run("conflicting body", func(t *testing.T) {
		rr := send("k1", `{"amount":"99.00"}`)
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "IDEMPOTENCY_CONFLICT", errorCode(t, rr))
	})

	t.Run("server errors are not cached", func(t *testing.T) {
		status = http.StatusInternalServerError
		send("k2", `{}`)
		status = http.StatusCreated
		rr := send("k2", `{}`)
		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Empty(t, rr.Header().Get("X-Idempotent-Replayed"))
	})
}

func TestTracing_RequestID(t *testing.T) {
	var seen string
	h := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	_, err := uuid.Parse(seen)
	assert.NoError(t, err)
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rr))
}
