package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseChecker(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	check := Database(db, time.Second)

	mock.ExpectPing()
	st := check(context.Background())
	assert.True(t, st.Healthy)
	assert.Equal(t, "database", st.Name)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	st = check(context.Background())
	assert.False(t, st.Healthy)
	assert.Equal(t, "ping failed", st.Detail, "driver errors stay out of the response")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoopChecker(t *testing.T) {
	running := false
	check := Loop("audit", func() bool { return running })

	assert.False(t, check(context.Background()).Healthy)
	running = true
	assert.True(t, check(context.Background()).Healthy)
}
