package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readiness(t *testing.T, hc *HealthChecker) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	hc.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestReadiness_DatabaseDown(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	code, body := readiness(t, NewHealthChecker(db, nil, nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, false, body["ready"])
	assert.Equal(t, "unhealthy", body["status"])
}

func TestReadiness_QueueBacklogDegrades(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	depth := func(context.Context) (int64, error) { return highQueueDepth + 1, nil }
	code, body := readiness(t, NewHealthChecker(nil, rdb, depth))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "degraded", body["status"])

	checks := body["checks"].(map[string]interface{})
	assert.Equal(t, stateUp, checks["redis"].(map[string]interface{})["status"])
	assert.Equal(t, stateDegraded, checks["queue"].(map[string]interface{})["status"])
}

func TestHealth_AllUp(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	depth := func(context.Context) (int64, error) { return 3, nil }
	rec := httptest.NewRecorder()
	NewHealthChecker(db, nil, depth).HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, stateUp, status.Checks["database"].Status)
	assert.Equal(t, stateSkipped, status.Checks["redis"].Status)
	assert.Equal(t, "3 steps queued", status.Checks["queue"].Message)
}
