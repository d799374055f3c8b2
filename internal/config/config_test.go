package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "config.yaml", "app:\n  env: prod\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, ":8780", cfg.Server.Addr)
	assert.Equal(t, 10, cfg.Pool.MaxConnections)
	assert.Equal(t, 5, cfg.Limiter.MaxPending)
	assert.Equal(t, 30, cfg.Limiter.BackoffBaseSeconds)
	assert.Equal(t, 600, cfg.Limiter.BackoffMaxSeconds)
	assert.Equal(t, "https://fapi.binance.com", cfg.Brokers.Binance.RESTBaseURL)
	assert.Equal(t, 0.5, cfg.Charge.FeePerTrade)
	assert.Equal(t, path, cfg.SourcePath())
}

func TestLoadIncludeMerge(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", "server:\n  addr: \":9000\"\npool:\n  max_connections: 3\n")
	main := writeConfig(t, dir, "config.yaml", "include:\n  - base.yaml\npool:\n  max_connections: 7\n")

	cfg, err := Load(main)
	require.NoError(t, err)

	// 主文件最后合并，覆盖 include 的同名字段
	assert.Equal(t, 7, cfg.Pool.MaxConnections)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, main, cfg.SourcePath())
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "include:\n  - b.yaml\n")
	writeConfig(t, dir, "b.yaml", "include:\n  - a.yaml\n")

	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoadValidation(t *testing.T) {
	dir := t.TempDir()

	t.Run("limiter backoff 倒挂", func(t *testing.T) {
		path := writeConfig(t, dir, "limiter.yaml",
			"limiter:\n  backoff_base_seconds: 120\n  backoff_max_seconds: 60\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backoff_max_seconds")
	})

	t.Run("telegram 启用但缺 token", func(t *testing.T) {
		path := writeConfig(t, dir, "notify.yaml",
			"notify:\n  telegram:\n    enabled: true\n    chat_id: \"123\"\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "bot_token")
	})

	t.Run("显式 0 连接池容量被拒绝", func(t *testing.T) {
		path := writeConfig(t, dir, "pool.yaml",
			"pool:\n  max_connections: 0\n")
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "pool.max_connections")
	})
}

func TestLoadEmptyPath(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
}
