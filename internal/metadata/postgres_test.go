package metadata

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/petermazzocco/go-image-host/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Discard,
	})
	require.NoError(t, err)

	return New(gdb), mock
}

func TestSaveImage_RollsBackWhenTagInsertFails(t *testing.T) {
	s, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "images"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO "tags"`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := s.SaveImage(context.Background(), newRecord("img1", 0, models.Landscape, "cat"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveImage_WithoutTagsCommitsSingleInsert(t *testing.T) {
	s, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "images"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.SaveImage(context.Background(), newRecord("img1", 0, models.Landscape)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteImage_StorageFailurePropagates(t *testing.T) {
	s, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "images"`).
		WithArgs("img1").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	deleted, err := s.DeleteImage(context.Background(), "img1")
	require.Error(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteImage_NothingDeleted(t *testing.T) {
	s, mock := newMockService(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "images"`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	deleted, err := s.DeleteImage(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
