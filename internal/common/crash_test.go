package common

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrashReport(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	report := CrashReport("boom", "main.main()", now)

	assert.Contains(t, report, "DARTSERIES CRASH REPORT")
	assert.Contains(t, report, "2025-03-01T12:00:00Z")
	assert.Contains(t, report, "boom")
	assert.Contains(t, report, "main.main()")
	assert.Contains(t, report, "=== ALL GOROUTINES ===")
}

func TestWriteCrashFile(t *testing.T) {
	previous := crashDir
	defer func() { crashDir = previous }()

	InstallCrashHandler(t.TempDir())
	path := WriteCrashFile("boom", "stack")
	require.NotEmpty(t, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "boom")
}
