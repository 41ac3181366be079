package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vadiminshakov/coinbook/config"
	"github.com/vadiminshakov/coinbook/internal/errs"
	"github.com/vadiminshakov/coinbook/pkg/retrier"
)

func TestRunHealth(t *testing.T) {
	t.Setenv("COINBOOK_LOG_LEVEL", "error")
	var out bytes.Buffer

	require.NoError(t, run([]string{"health"}, &out))
	assert.Contains(t, out.String(), `"ok": true`)
	assert.Contains(t, out.String(), `"version"`)
}

func TestRunErrors(t *testing.T) {
	t.Setenv("COINBOOK_LOG_LEVEL", "error")

	tests := []struct {
		name string
		args []string
		kind errs.Kind
	}{
		{name: "no command", args: nil, kind: errs.KindUnknown},
		{name: "unknown command", args: []string{"trade"}, kind: errs.KindUnknown},
		{name: "missing config file", args: []string{"-config", "does-not-exist.yaml", "health"}, kind: errs.KindConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(tt.args, &bytes.Buffer{})
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
		})
	}
}

func TestNewLoggerRejectsUnknownLevel(t *testing.T) {
	_, err := newLogger("loud")
	require.Error(t, err)
	assert.Equal(t, errs.KindConfiguration, errs.KindOf(err))
}

func TestNewRetrierRetriesAbortedBatch(t *testing.T) {
	cfg := config.Config{Retry: config.Retry{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}}
	const key = "BTC/2025-09-25/main"

	tests := []struct {
		name      string
		cause     error
		wantCalls int
	}{
		{name: "transient write", cause: errs.Transient("notion create", errs.WithHTTP(503)), wantCalls: 3},
		{name: "authentication", cause: errs.Authentication("notion create", errs.WithHTTP(401)), wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			_, err := retrier.DoWithData(newRetrier(cfg, zap.NewNop()), context.Background(), func(context.Context) (int, error) {
				calls++
				return 0, errs.Reconciliation("upsert all", errs.WithCause(errs.NewBatchError(1, key, tt.cause)))
			})
			require.Error(t, err)
			assert.Equal(t, errs.KindReconciliation, errs.KindOf(err))
			assert.Equal(t, tt.wantCalls, calls)
		})
	}
}
