package common

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestIdemRejectsInFlightDuplicate(t *testing.T) {
	mr, client := newRedis(t)
	idem := Idem{R: client, TTL: time.Minute}

	var nested *httptest.ResponseRecorder
	var seenKey string
	handler := idem.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenKey = IdempotencyKey(r.Context())
		if nested == nil {
			// a duplicate arrives while the first request is still running
			nested = httptest.NewRecorder()
			dup := httptest.NewRequest(http.MethodPost, "/api/create-payment-intent", nil)
			dup.Header.Set(IdempotencyHeader, "abc")
			idem.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Error("duplicate should not reach the handler")
			})).ServeHTTP(nested, dup)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/create-payment-intent", nil)
	req.Header.Set(IdempotencyHeader, "abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "abc", seenKey)
	require.Equal(t, http.StatusConflict, nested.Code)
	require.Empty(t, mr.Keys(), "lock released after completion")
}

func TestIdemPassesThroughWithoutHeader(t *testing.T) {
	_, client := newRedis(t)
	called := false
	handler := Idem{R: client}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		require.Empty(t, IdempotencyKey(r.Context()))
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil))
	require.True(t, called)
}

func TestIdemWithoutRedisStillExposesKey(t *testing.T) {
	var seen string
	handler := Idem{}.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdempotencyKey(r.Context())
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(IdempotencyHeader, "key-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.Equal(t, "key-1", seen)
}

func TestIdemRejectsOversizedKey(t *testing.T) {
	handler := Idem{}.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("handler should not run")
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(IdempotencyHeader, strings.Repeat("k", 300))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWriteError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteError(rr, NewAppError("INVALID_REQUEST", "bad amount", http.StatusBadRequest, context.Canceled))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.JSONEq(t, `{"message":"bad amount","code":"INVALID_REQUEST"}`, rr.Body.String())

	rr = httptest.NewRecorder()
	WriteError(rr, context.DeadlineExceeded)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.JSONEq(t, `{"message":"internal server error","code":"INTERNAL"}`, rr.Body.String())
}
