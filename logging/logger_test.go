package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/warp/leave-engine/config"
	"github.com/warp/leave-engine/logging"
)

func TestNew_TeesDebugToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "server.log")

	logger, err := logging.New(config.LogConfig{Env: "production", Level: "warn", File: path})
	require.NoError(t, err)

	logger.Debug("balance created", zap.String("employee_id", "emp-1"))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"balance created"`)
	assert.Contains(t, string(data), `"employee_id":"emp-1"`)
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := logging.New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
