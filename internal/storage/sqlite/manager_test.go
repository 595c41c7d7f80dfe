package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/dartseries/internal/common"
	"github.com/ternarybob/dartseries/internal/interfaces"
	"github.com/ternarybob/dartseries/internal/models"
	"github.com/ternarybob/dartseries/internal/storage/storagetest"
)

func testConfig(t *testing.T) *common.SQLiteConfig {
	return &common.SQLiteConfig{
		Path:          filepath.Join(t.TempDir(), "test.db"),
		CacheSizeMB:   10,
		WALMode:       true,
		BusyTimeoutMS: 5000,
	}
}

func TestSQLiteStorage(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) interfaces.StorageManager {
		m, err := NewManager(arbor.NewLogger(), testConfig(t))
		require.NoError(t, err)
		return m
	})
}

func TestSQLiteStorage_SurvivesReopen(t *testing.T) {
	cfg := testConfig(t)
	ctx := context.Background()

	m, err := NewManager(arbor.NewLogger(), cfg)
	require.NoError(t, err)
	r := storagetest.Record("00126380", 2024, models.Q2, 74_068_300_000_000, 10_443_900_000_000)
	require.NoError(t, m.RecordStorage().Put(ctx, &r))
	require.NoError(t, m.Close())

	// Migrations are idempotent and the record is durable
	m, err = NewManager(arbor.NewLogger(), cfg)
	require.NoError(t, err)
	defer m.Close()

	got, err := m.RecordStorage().Get(ctx, r.CorpCode, r.Period)
	require.NoError(t, err)
	assert.True(t, got.SameFigures(r))
}

func TestSQLiteStorage_PutManyIsAtomic(t *testing.T) {
	m, err := NewManager(arbor.NewLogger(), testConfig(t))
	require.NoError(t, err)
	defer m.Close()
	ctx := context.Background()

	good := storagetest.Record("00126380", 2024, models.Q1, 1, 1)
	bad := storagetest.Record("00126380", 2024, models.Q2, 1, 1)
	bad.Period.Quarter = 5

	err = m.RecordStorage().PutMany(ctx, []models.NormalizedRecord{good, bad})
	require.Error(t, err)

	_, err = m.RecordStorage().Get(ctx, good.CorpCode, good.Period)
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound, "no partial write on a failed batch")
}

func TestSQLiteStorage_CancelledContextWritesNothing(t *testing.T) {
	m, err := NewManager(arbor.NewLogger(), testConfig(t))
	require.NoError(t, err)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := storagetest.Record("00126380", 2024, models.Q1, 1, 1)
	require.Error(t, m.RecordStorage().Put(ctx, &r))

	_, err = m.RecordStorage().Get(context.Background(), r.CorpCode, r.Period)
	assert.ErrorIs(t, err, interfaces.ErrRecordNotFound)
}

func TestSQLiteDB_PragmasApplyToEveryConnection(t *testing.T) {
	cfg := testConfig(t)
	cfg.BusyTimeoutMS = 4321

	db, err := NewSQLiteDB(arbor.NewLogger(), cfg)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	// Hold two connections at once so the pool has to open a second one
	first, err := db.DB().Conn(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := db.DB().Conn(ctx)
	require.NoError(t, err)
	defer second.Close()

	for i, conn := range []*sql.Conn{first, second} {
		var timeout int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		assert.Equal(t, 4321, timeout, "connection %d", i)

		var cacheSize int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA cache_size").Scan(&cacheSize))
		assert.Equal(t, -10*1024, cacheSize, "connection %d", i)

		var mode string
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, "wal", mode, "connection %d", i)
	}
}
