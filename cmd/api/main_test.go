package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/project-intake/internal/config"
	"github.com/wolfman30/project-intake/internal/notify"
	"github.com/wolfman30/project-intake/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		AWSRegion:            "us-east-1",
		AWSAccessKeyID:       "test",
		AWSSecretAccessKey:   "test",
		EmailProvider:        "stub",
		TeamEmail:            "team@example.com",
		UploadTickInterval:   time.Millisecond,
		UploadMaxStepPercent: 50,
		SessionIdleTTL:       time.Minute,
		FollowUpPollInterval: time.Minute,
	}
}

func TestBuildAppWithoutBackends(t *testing.T) {
	a, err := buildApp(context.Background(), testConfig(), logging.New("error"))
	require.NoError(t, err)
	defer a.close()

	require.NotNil(t, a.worker, "memory follow-up queue needs the in-process worker")

	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/intake/sessions", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusCreated, rr.Code)

	rr = httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}

func TestBuildAppWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()

	a, err := buildApp(context.Background(), cfg, logging.New("error"))
	require.NoError(t, err)
	defer a.close()

	assert.Nil(t, a.worker, "redis follow-ups are drained by the worker binary")

	rr := httptest.NewRecorder()
	a.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"redis":"ok"`)
}

func TestFollowUpStoreSelection(t *testing.T) {
	store, inProcess := followUpStore(nil, logging.New("error"))
	_, isMemory := store.(*notify.MemoryFollowUpQueue)
	assert.True(t, isMemory)
	assert.True(t, inProcess)
}
