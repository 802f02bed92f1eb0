package ctxlog_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/blockspacer/spmdfy/internal/ctxlog"
)

func TestFromContextDefaultsToNop(t *testing.T) {
	logger := ctxlog.FromContext(context.Background())
	require.NotNil(t, logger)
	assert.False(t, logger.Core().Enabled(zap.ErrorLevel))
}

func TestWithFieldsAndJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := ctxlog.New(ctxlog.Options{Level: "debug", Format: "json", Output: &buf})
	require.NoError(t, err)

	ctx := ctxlog.WithLogger(context.Background(), logger)
	ctx = ctxlog.With(ctx, zap.String("kernel", "saxpy"))
	ctxlog.FromContext(ctx).Debug("node inserted", zap.Int("node", 3))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, "saxpy", rec["kernel"])
	assert.Equal(t, "node inserted", rec["msg"])
	assert.EqualValues(t, 3, rec["node"])
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger, err := ctxlog.New(ctxlog.Options{Level: "warn", Output: &buf})
	require.NoError(t, err)
	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.True(t, strings.Contains(buf.String(), "WARN"))
}

func TestInvalidOptions(t *testing.T) {
	_, err := ctxlog.New(ctxlog.Options{Level: "loud"})
	assert.Error(t, err)
	_, err = ctxlog.New(ctxlog.Options{Format: "xml"})
	assert.Error(t, err)
}
