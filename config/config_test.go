package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lasku.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
version: v1

providers:
  - id: cloud-prod
    type: openstack
    region: fi-hel1
    credentials:
      username: robot
      api_key: secret
  - id: aws-dev
    type: aws
    region: eu-north-1
    enabled: false

sync:
  window: 2h
  tolerance: 0.05
  orphan_age: 168h
  concurrency: 3
  interval: 30m

storage:
  dir: /var/lib/lasku
  journal_dir: /var/lib/lasku/journal
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "cloud-prod", cfg.Providers[0].ID)
	assert.True(t, cfg.Providers[0].IsEnabled())
	assert.Equal(t, "secret", cfg.Providers[0].Credentials["api_key"])
	assert.False(t, cfg.Providers[1].IsEnabled())

	assert.Equal(t, 2*time.Hour, cfg.Sync.Window)
	assert.InDelta(t, 0.05, cfg.Sync.Tolerance, 1e-9)
	assert.Equal(t, 7*24*time.Hour, cfg.Sync.OrphanAge)
	assert.Equal(t, 30*time.Minute, cfg.Sync.Interval)
	assert.Equal(t, "/var/lib/lasku", cfg.Storage.Dir)
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
version: v1
providers:
  - id: p1
    type: openstack
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.Storage.Dir)
	assert.Equal(t, "journal", cfg.Storage.JournalDir)
	assert.Equal(t, time.Hour, cfg.Sync.Interval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid",
			config: Config{
				Version:   "v1",
				Providers: []Provider{{ID: "p1", Type: "openstack"}},
			},
		},
		{
			name:    "missing version",
			config:  Config{Providers: []Provider{{ID: "p1", Type: "openstack"}}},
			wantErr: "version",
		},
		{
			name:    "no providers",
			config:  Config{Version: "v1"},
			wantErr: "at least one provider",
		},
		{
			name: "provider without type",
			config: Config{
				Version:   "v1",
				Providers: []Provider{{ID: "p1"}},
			},
			wantErr: "type is required",
		},
		{
			name: "duplicate provider id",
			config: Config{
				Version: "v1",
				Providers: []Provider{
					{ID: "p1", Type: "openstack"},
					{ID: "p1", Type: "aws"},
				},
			},
			wantErr: "duplicate id",
		},
		{
			name: "tolerance out of range",
			config: Config{
				Version:   "v1",
				Providers: []Provider{{ID: "p1", Type: "openstack"}},
				Sync:      SyncPolicy{Tolerance: 1.5},
			},
			wantErr: "tolerance",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
