package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockChecker(t *testing.T) (*HealthChecker, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	return NewHealthChecker(db, logger), mock, func() { db.Close() }
}

func TestHealthCheckerCheck(t *testing.T) {
	checker, mock, cleanup := newMockChecker(t)
	defer cleanup()

	mock.ExpectPing()

	err := checker.Check(context.Background())
	assert.NoError(t, err)
	assert.True(t, checker.IsHealthy())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheckerFailureAndRecovery(t *testing.T) {
	checker, mock, cleanup := newMockChecker(t)
	defer cleanup()

	ctx := context.Background()

	mock.ExpectPing().WillReturnError(sqlmock.ErrCancelled)
	err := checker.Check(ctx)
	assert.Error(t, err)
	assert.False(t, checker.IsHealthy())

	result := checker.Result()
	assert.False(t, result.Healthy)
	assert.NotEmpty(t, result.LastError)
	assert.NotZero(t, result.LastCheck)

	mock.ExpectPing()
	err = checker.Check(ctx)
	assert.NoError(t, err)
	assert.True(t, checker.IsHealthy())
	assert.Empty(t, checker.Result().LastError)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthCheckerBackgroundLoop(t *testing.T) {
	checker, mock, cleanup := newMockChecker(t)
	defer cleanup()

	mock.MatchExpectationsInOrder(false)
	for i := 0; i < 8; i++ {
		mock.ExpectPing()
	}

	checker.SetInterval(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		checker.Start(ctx)
		close(done)
	}()

	time.Sleep(150 * time.Millisecond)
	checker.Stop()
	<-done

	assert.True(t, checker.IsHealthy())
}
