package infra

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"chatmemory/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitDatabase_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "memory.db")
	db, err := InitDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseDatabase() })

	sqlDB, err := db.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
	assert.FileExists(t, path)
}

func TestInitDatabase_UnsupportedDriver(t *testing.T) {
	_, err := InitDatabase(&config.DatabaseConfig{Driver: "oracle"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestInitDatabase_UnopenableSQLitePath(t *testing.T) {
	// 父路径是普通文件，无法创建目录
	file := filepath.Join(t.TempDir(), "plain")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	_, err := InitDatabase(&config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(file, "memory.db")})
	require.Error(t, err)
}

func TestPingOrClose_ClosesPoolOnFailure(t *testing.T) {
	// 目录不存在，sqlite 无法创建数据库文件
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "missing", "memory.db"))
	require.NoError(t, err)

	err = pingOrClose(sqlDB)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "数据库连接测试失败")
	assert.EqualError(t, sqlDB.Ping(), "sql: database is closed")
}

func TestPingOrClose_KeepsHealthyPool(t *testing.T) {
	sqlDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, pingOrClose(sqlDB))
	assert.NoError(t, sqlDB.Ping())
}
