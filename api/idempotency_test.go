package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
	"go.uber.org/zap"
)

const stubBody = `{"id":"a1"}`

func idempotentStub(calls *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(stubBody))
	})
}

func postWithKey(h http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/applications", nil)
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	req = req.WithContext(withActor(req.Context(), leave.NewActor("dev-ann", leave.RoleEmployee, "eng-lead", nil)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotency_FirstRequestIsStored(t *testing.T) {
	// GIVEN: nothing cached for the key
	rdb, mock := redismock.NewClientMock()
	cacheKey, lockKey := idempotencyKeys("/api/applications", "dev-ann", "k1")
	stored, _ := json.Marshal(cachedResponse{Status: http.StatusCreated, Body: stubBody})

	mock.ExpectGet(cacheKey).RedisNil()
	mock.ExpectSetNX(lockKey, "locked", idempotencyLockTTL).SetVal(true)
	mock.ExpectSet(cacheKey, string(stored), idempotencyCacheTTL).SetVal("OK")
	mock.ExpectDel(lockKey).SetVal(1)

	calls := 0
	h := Idempotency(rdb, zap.NewNop())(idempotentStub(&calls))

	// WHEN
	rec := postWithKey(h, "k1")

	// THEN: the handler ran once and its response was cached
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, stubBody, rec.Body.String())
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_ReplaysCachedResponse(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cacheKey, _ := idempotencyKeys("/api/applications", "dev-ann", "k1")
	stored, _ := json.Marshal(cachedResponse{Status: http.StatusCreated, Body: stubBody})
	mock.ExpectGet(cacheKey).SetVal(string(stored))

	calls := 0
	h := Idempotency(rdb, zap.NewNop())(idempotentStub(&calls))

	rec := postWithKey(h, "k1")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, stubBody, rec.Body.String())
	assert.Equal(t, "true", rec.Header().Get(idempotencyReplayed))
	assert.Zero(t, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotency_InFlightIsConflict(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cacheKey, lockKey := idempotencyKeys("/api/applications", "dev-ann", "k1")
	mock.ExpectGet(cacheKey).RedisNil()
	mock.ExpectSetNX(lockKey, "locked", idempotencyLockTTL).SetVal(false)

	calls := 0
	h := Idempotency(rdb, zap.NewNop())(idempotentStub(&calls))

	rec := postWithKey(h, "k1")

	require.Equal(t, http.StatusConflict, rec.Code)
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, CodeProcessing, body.Error)
	assert.Zero(t, calls)
}

func TestIdempotency_RedisDownFailsOpen(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cacheKey, _ := idempotencyKeys("/api/applications", "dev-ann", "k1")
	mock.ExpectGet(cacheKey).SetErr(errors.New("connection refused"))

	calls := 0
	h := Idempotency(rdb, zap.NewNop())(idempotentStub(&calls))

	rec := postWithKey(h, "k1")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	calls := 0
	h := Idempotency(rdb, zap.NewNop())(idempotentStub(&calls))

	rec := postWithKey(h, "")

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}
