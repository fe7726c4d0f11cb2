package repository

import (
	"testing"

	"github.com/nimasrn/studio-gateway/pkg/pg"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testDB struct {
	*pg.DB
	rawDB *gorm.DB
}

// Entities lists every table owned by the gateway, in migration order.
func Entities() []any {
	return []any{
		&UserEntity{},
		&VenueEntity{},
		&InstructorEntity{},
		&ClassEntity{},
		&EventEntity{},
		&BookingEntity{},
		&TransactionEntity{},
		&NotificationEntity{},
		&PushSubscriptionEntity{},
		&NotificationPreferenceEntity{},
	}
}

// OpenTestDB returns a migrated in-memory sqlite database wrapped in pg.DB.
// A single connection keeps every query on the same in-memory database.
func OpenTestDB(t testing.TB) *pg.DB {
	return setupTestDB(t).DB
}

// OpenReplicatedTestDB returns a pg.DB whose reads go to a second database,
// plus a handle on that replica so a test can seed rows the primary has
// already moved past.
func OpenReplicatedTestDB(t testing.TB) (db *pg.DB, replica *pg.DB) {
	primary := setupTestDB(t)
	rep := setupTestDB(t)
	return pg.New(rep.rawDB, primary.rawDB), rep.DB
}

func setupTestDB(t testing.TB) *testDB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	err = db.AutoMigrate(Entities()...)
	require.NoError(t, err)

	return &testDB{
		DB:    pg.New(db, db),
		rawDB: db,
	}
}
