package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldchain/trucksim/internal/model"
)

func TestPostgresDSN(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("db.host", "db.local")
	viper.Set("db.port", "6543")
	viper.Set("db.username", "truck")
	viper.Set("db.password", "secret")
	viper.Set("db.database", "fleet")

	assert.Equal(t, "host=db.local port=6543 user=truck password=secret dbname=fleet sslmode=disable", PostgresDSN())
}

func TestGetSqliteDBStandalone_FileAndMigrate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trucks.db")
	db, err := GetSqliteDBStandalone(path)
	require.NoError(t, err)

	require.NoError(t, Migrate(db))
	for _, m := range model.DatabaseModels {
		assert.True(t, db.Migrator().HasTable(m))
	}
}

func TestDumpMemoryDBToDisk(t *testing.T) {
	db, err := GetSqliteDBStandalone(filepath.Join(t.TempDir(), "src.db"))
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	require.NoError(t, db.Create(&model.Customer{Position: 0, Name: "Customer 0", Lon: 1, Lat: 2}).Error)

	dump := filepath.Join(t.TempDir(), "dump.db")
	_, err = DumpMemoryDBToDisk(db, dump)
	require.NoError(t, err)

	// A second dump replaces the first.
	_, err = DumpMemoryDBToDisk(db, dump)
	require.NoError(t, err)

	info, err := os.Stat(dump)
	require.NoError(t, err)
	assert.Positive(t, info.Size())

	restored, err := GetSqliteDBStandalone(dump)
	require.NoError(t, err)
	var count int64
	require.NoError(t, restored.Model(&model.Customer{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDumpMemoryDBToDisk_NoPath(t *testing.T) {
	_, err := DumpMemoryDBToDisk(nil, "")
	assert.Error(t, err)
}

func TestManagerConnect_FallsBackToSqlite(t *testing.T) {
	t.Cleanup(viper.Reset)
	viper.Set("db.host", "127.0.0.1")
	viper.Set("db.port", "1")

	m := NewManager(zerolog.Nop(), filepath.Join(t.TempDir(), "fallback.db"))
	require.NoError(t, m.Connect())
	assert.True(t, m.IsValid)
	assert.True(t, m.ShouldSaveLocal)
	require.NoError(t, m.Setup())
	assert.True(t, m.DB.Migrator().HasTable(&model.ReportedProperty{}))
}

func TestManagerSetup_NotConnected(t *testing.T) {
	m := NewManager(zerolog.Nop(), "")
	assert.Error(t, m.Setup())
}
