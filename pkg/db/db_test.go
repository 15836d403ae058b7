package db

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/storesplit/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type uowRow struct {
	ID   int64 `gorm:"primaryKey"`
	Name string
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&uowRow{}))
	return conn
}

func TestUnitOfWorkCommits(t *testing.T) {
	conn := openTestDB(t)
	uow := NewUnitOfWork(conn)

	err := uow.Do(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&uowRow{ID: 1, Name: "a"}).Error
	})
	require.NoError(t, err)

	var count int64
	require.NoError(t, conn.Model(&uowRow{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUnitOfWorkRollsBackOnError(t *testing.T) {
	conn := openTestDB(t)
	uow := NewUnitOfWork(conn)
	boom := errors.New("boom")

	err := uow.Do(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(&uowRow{ID: 1, Name: "a"}).Error; err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&uowRow{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestDialectRejectsUnknownType(t *testing.T) {
	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}

func TestIsDuplicateKeyErr(t *testing.T) {
	assert.True(t, IsDuplicateKeyErr(errors.New("UNIQUE constraint failed: stores.code")))
	assert.True(t, IsDuplicateKeyErr(gorm.ErrDuplicatedKey))
	assert.False(t, IsDuplicateKeyErr(nil))
	assert.False(t, IsDuplicateKeyErr(errors.New("boom")))
}

func TestIsLockTimeoutErr(t *testing.T) {
	assert.True(t, IsLockTimeoutErr(errors.New("ERROR: could not obtain lock on row")))
	assert.True(t, IsLockTimeoutErr(errors.New("ERROR: canceling statement due to lock timeout (SQLSTATE 55P03)")))
	assert.False(t, IsLockTimeoutErr(errors.New("syntax error")))
}

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("WITH x AS (SELECT 1) SELECT * FROM x"))
	assert.Equal(t, "UPDATE", operationFromSQL(" update store_payments set amount = 1"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestDialectDSNs(t *testing.T) {
	cfg := config.Config{
		DBHost:     "db.internal",
		DBPort:     "5432",
		DBUser:     "split",
		DBPassword: "pw",
		DBName:     "storesplit",
	}
	assert.Equal(t, "host=db.internal user=split password=pw dbname=storesplit port=5432 sslmode=disable TimeZone=UTC", postgresDSN(cfg))
	assert.Equal(t, "split:pw@tcp(db.internal:5432)/storesplit?charset=utf8mb4&parseTime=True&loc=UTC", mysqlDSN(cfg))
	assert.Equal(t, "storesplit?_foreign_keys=on", sqliteDSN(cfg))
	assert.Equal(t, "storesplit.db?_foreign_keys=on", sqliteDSN(config.Config{}))
	assert.Equal(t, "file:x.db?cache=shared&_foreign_keys=on", sqliteDSN(config.Config{DBName: "file:x.db?cache=shared"}))

	_, err := Dialect(config.Config{DBType: "MySQL"})
	assert.NoError(t, err)
}
