package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "friendkeys.log")
	cfg := DefaultConfig()
	cfg.LogFile = path
	cfg.Console = false
	cfg.Development = true

	l, err := New(cfg)
	require.NoError(t, err)

	id := uuid.New()
	l.WithTrade(id, "buy", 9).Info("Trade completed")
	l.WithOperation("simulate").Debug("step")
	require.NoError(t, l.Sync())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &entry))
		lines = append(lines, entry)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, id.String(), lines[0]["trade_id"])
	assert.Equal(t, "buy", lines[0]["op"])
	assert.Equal(t, float64(9), lines[0]["group_id"])
	assert.NotEmpty(t, lines[1]["correlation_id"])
}

func TestNew_InfoLevelDropsDebug(t *testing.T) {
	path := filepath.Join(t.TempDir(), "friendkeys.log")
	cfg := DefaultConfig()
	cfg.LogFile = path
	cfg.Console = false

	l, err := New(cfg)
	require.NoError(t, err)
	l.Debug("hidden")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	if err == nil {
		assert.Empty(t, data)
	} else {
		assert.True(t, os.IsNotExist(err))
	}
}
