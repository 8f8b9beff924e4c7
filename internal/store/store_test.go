package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBHealthy(t *testing.T) {
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	db := &DB{Client: sqlDB}

	mock.ExpectPing()
	assert.True(t, db.Healthy(context.Background()))

	mock.ExpectClose()
	require.NoError(t, db.Close())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNilHandlesAreUnhealthy(t *testing.T) {
	var db *DB
	var rdb *Redis
	assert.False(t, db.Healthy(context.Background()))
	assert.False(t, rdb.Healthy(context.Background()))
	assert.NoError(t, db.Close())
	assert.NoError(t, rdb.Close())
}
