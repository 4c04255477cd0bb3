package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cropsense/farmops/internal/api"
	"github.com/cropsense/farmops/internal/config"
)

// getFreePort returns a free TCP port on localhost.
func getFreePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func TestServeCmd_RunE_FailsOnValidation(t *testing.T) {
	// Config validation should fail fast with missing required fields.
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver: "postgres",
		},
	}

	serveCmd.SetContext(context.Background())
	defer serveCmd.SetContext(nil)

	err := serveCmd.RunE(serveCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config:")
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestServer_Lifecycle(t *testing.T) {
	// Full server start + request + graceful shutdown cycle against the
	// offline pipeline environment.
	cfg = &config.Config{
		Anthropic: config.AnthropicConfig{
			Model:     "claude-sonnet-4-5-20250929",
			MaxTokens: 2048,
		},
		Diagnosis: config.DiagnosisConfig{
			SearchConcurrency: 2,
			StageTimeoutSecs:  30,
		},
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "serve_test.db"),
		},
	}

	env, err := initOfflinePipeline(context.Background())
	require.NoError(t, err)
	defer env.Close()

	srv := api.NewServer(env.Pipeline, env.Store)

	port := getFreePort(t)
	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: srv.Routes(),
	}

	// Start server in background.
	errCh := make(chan error, 1)
	go func() {
		if serveErr := httpSrv.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
		close(errCh)
	}()

	// Wait for server to be ready.
	var ready bool
	for i := 0; i < 20; i++ {
		resp, getErr := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
		if getErr == nil {
			resp.Body.Close()
			ready = true
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.True(t, ready, "server did not become ready in time")

	// Make a real health request.
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/health", port))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])

	// Graceful shutdown.
	require.NoError(t, httpSrv.Shutdown(context.Background()))

	select {
	case shutdownErr := <-errCh:
		assert.NoError(t, shutdownErr)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
