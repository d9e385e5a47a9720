package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPServerLifecycle(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("pong"))
	})

	srv := NewHTTPServer("127.0.0.1:0", handler, testLogger())
	require.NoError(t, srv.Start())

	resp, err := http.Get("http://" + srv.Addr() + "/anything")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
	assert.Equal(t, "pong", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))

	client := &http.Client{Timeout: 500 * time.Millisecond}
	_, err = client.Get("http://" + srv.Addr() + "/anything")
	assert.Error(t, err)
}

func TestHTTPServerBindError(t *testing.T) {
	first := NewHTTPServer("127.0.0.1:0", http.NotFoundHandler(), testLogger())
	require.NoError(t, first.Start())
	defer first.Stop(context.Background())

	second := NewHTTPServer(first.Addr(), http.NotFoundHandler(), testLogger())
	assert.Error(t, second.Start())
}

func TestHTTPServerStopBeforeStart(t *testing.T) {
	srv := NewHTTPServer(":0", http.NotFoundHandler(), testLogger())
	assert.Equal(t, ":0", srv.Addr())
	assert.NoError(t, srv.Stop(context.Background()))
}
