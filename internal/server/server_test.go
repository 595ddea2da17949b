package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/bprzybysz/autobroker/internal/config"
	"github.com/bprzybysz/autobroker/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStart_ReturnsServerClosedAfterShutdown(t *testing.T) {
	// A graceful Shutdown makes Start return http.ErrServerClosed, which
	// the caller must treat as a clean drain rather than a startup failure
	srv := New(Config{
		Port:    0,
		Log:     logger.New(logger.Config{Level: "error"}),
		Config:  &config.Config{},
		DevMode: true,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, http.ErrServerClosed)
	case <-time.After(time.Second):
		t.Fatal("server did not stop after shutdown")
	}
}
