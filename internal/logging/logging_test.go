package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sessiond/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		wantErr string
	}{
		{
			name: "console logger",
			cfg:  config.LoggingConfig{Level: "info", Format: "console"},
		},
		{
			name: "json logger with fields",
			cfg: config.LoggingConfig{
				Level:  "debug",
				Format: "json",
				Fields: map[string]string{"service": "sessiond"},
			},
		},
		{
			name:    "invalid level",
			cfg:     config.LoggingConfig{Level: "verbose", Format: "json"},
			wantErr: "invalid log level",
		},
		{
			name:    "invalid format",
			cfg:     config.LoggingConfig{Level: "info", Format: "xml"},
			wantErr: "format must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			logger.Info("constructed")
		})
	}
}
