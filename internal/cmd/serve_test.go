package cmd

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeOverrides(t *testing.T) {
	resetFlags(rootCmd)
	defer resetFlags(rootCmd)

	assert.Empty(t, serveOverrides(serveCmd))

	require.NoError(t, serveCmd.Flags().Set("port", "9191"))
	require.NoError(t, serveCmd.Flags().Set("sweep-interval", "5m"))

	got := serveOverrides(serveCmd)
	assert.Equal(t, map[string]any{"port": 9191}, got["server"])
	assert.Equal(t, map[string]any{"sweep_interval": 5 * time.Minute}, got["jobs"])
}

func TestServeStopsOnContextCancel(t *testing.T) {
	env := setupCLI(t)
	resetFlags(rootCmd)
	defer resetFlags(rootCmd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rootCmd.SetArgs([]string{"serve", "--host", "127.0.0.1", "--port", "0"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetContext(ctx)
	defer rootCmd.SetArgs(nil)

	done := make(chan error, 1)
	go func() { done <- rootCmd.Execute() }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(env.resultsDir)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond, "serve should create the job directories")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop after context cancellation")
	}
}
