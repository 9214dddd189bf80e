package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		conf    StoreConfig
		wantErr []string
	}{
		{
			name: "local",
			conf: StoreConfig{Backend: BackendLocal, Namespace: "kiln", LogLevel: "info"},
		},
		{
			name: "remote sqlite",
			conf: StoreConfig{Backend: BackendRemote, LogLevel: "warn",
				Remote: RemoteConfig{Driver: DriverSQLite, Endpoint: "studio.db", TimeoutSecond: 5}},
		},
		{
			name: "remote rest without credential",
			conf: StoreConfig{Backend: BackendRemote, LogLevel: "info",
				Remote: RemoteConfig{Driver: DriverREST, Endpoint: "https://example.com", TimeoutSecond: 5}},
			wantErr: []string{"credential"},
		},
		{
			name:    "bad namespace and level",
			conf:    StoreConfig{Backend: BackendLocal, Namespace: "a:b", QuotaBytes: -1, LogLevel: "loud"},
			wantErr: []string{"must not contain ':'", "quota", "invalid log level"},
		},
		{
			name:    "unknown backend",
			conf:    StoreConfig{Backend: "cloud", LogLevel: "info"},
			wantErr: []string{`invalid backend "cloud"`},
		},
		{
			name: "unknown driver",
			conf: StoreConfig{Backend: BackendRemote, LogLevel: "info",
				Remote: RemoteConfig{Driver: "postgres", TimeoutSecond: 0}},
			wantErr: []string{`invalid remote driver "postgres"`, "timeout"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conf.Validate()
			if len(tt.wantErr) == 0 {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			for _, want := range tt.wantErr {
				assert.Contains(t, err.Error(), want)
			}
		})
	}
}

func TestStringHidesCredential(t *testing.T) {
	conf := StoreConfig{Backend: BackendRemote, LogLevel: "info",
		Remote: RemoteConfig{Driver: DriverREST, Endpoint: "https://example.com", Credential: "top-secret", TimeoutSecond: 5}}
	out := conf.String()
	assert.Contains(t, out, "REMOTE BACKEND")
	assert.Contains(t, out, "https://example.com")
	assert.NotContains(t, out, "top-secret")
}

func TestParseLogLevel(t *testing.T) {
	for _, level := range []string{"debug", "INFO", "warn", "warning", "error"} {
		_, err := ParseLogLevel(level)
		assert.NoError(t, err, level)
	}
	_, err := ParseLogLevel("verbose")
	assert.Error(t, err)
}
