package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/common"
)

func TestNewStorageManager(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		wantErr bool
	}{
		{name: "sqlite", kind: "sqlite"},
		{name: "empty defaults to sqlite", kind: ""},
		{name: "badger", kind: "badger"},
		{name: "memory", kind: "memory"},
		{name: "unknown", kind: "postgres", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			cfg := common.NewDefaultConfig()
			cfg.Storage.Type = tt.kind
			cfg.Storage.SQLite.Path = filepath.Join(dir, "test.db")
			cfg.Storage.Badger.Path = filepath.Join(dir, "badger")

			m, err := NewStorageManager(arbor.NewLogger(), cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer m.Close()
			assert.NotNil(t, m.RecordStorage())
		})
	}
}
