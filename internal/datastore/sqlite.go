package datastore

import (
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/auralis-audio/auralis/internal/conf"
	"github.com/auralis-audio/auralis/internal/observability/metrics"
)

// New opens the SQLite-backed catalog described by settings and migrates
// its schema. WAL mode keeps reads concurrent with the serialized writes.
func New(settings *conf.Settings, m *metrics.CacheMetrics) (*DataStore, error) {
	dsn := settings.DatabasePath + "?_journal_mode=WAL&_busy_timeout=5000"
	return open(sqlite.Open(dsn), settings, m)
}

// NewMemory opens an in-memory catalog on a shared-cache SQLite database.
func NewMemory(settings *conf.Settings, m *metrics.CacheMetrics) (*DataStore, error) {
	return open(sqlite.Open("file::memory:?cache=shared"), settings, m)
}

func open(dialector gorm.Dialector, settings *conf.Settings, m *metrics.CacheMetrics) (*DataStore, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, dbError("opening database", err)
	}

	ds := newDataStore(db, time.Duration(settings.CacheTTLSeconds*float64(time.Second)), m)
	if err := ds.Open(); err != nil {
		return nil, err
	}
	return ds, nil
}
