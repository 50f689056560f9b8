package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"tabletop-sync-server/config"
)

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr bool
	}{
		{name: "json", cfg: config.LoggingConfig{Level: "info", Format: "json"}},
		{name: "console", cfg: config.LoggingConfig{Level: "debug", Format: "console"}},
		{name: "invalid level", cfg: config.LoggingConfig{Level: "trace", Format: "json"}, wantErr: true},
		{name: "invalid format", cfg: config.LoggingConfig{Level: "info", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, logger)
		})
	}
}

func TestNewLogger_LevelEnabled(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "warn", Format: "json"})
	require.NoError(t, err)

	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}
