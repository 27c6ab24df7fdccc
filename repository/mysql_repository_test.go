package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMySQL(t *testing.T) (sqlmock.Sqlmock, RecordingRepository) {
	t.Helper()

	conn, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	repo, err := newMySQLRepositoryWithConn(conn)
	require.NoError(t, err)
	return mock, repo
}

func recordingColumns() []string {
	return []string{"id", "name", "duration", "format", "created_at", "data"}
}

func TestMySQLRepository_ListNewestFirst(t *testing.T) {
	mock, repo := setupMySQL(t)

	rows := sqlmock.NewRows(recordingColumns()).
		AddRow("id-b", "Recording 2", 4.0, "wav", testBase.Add(time.Minute), []byte("b")).
		AddRow("id-a", "Recording 1", 3.5, "wav", testBase, []byte("a"))

	mock.ExpectQuery("SELECT \\* FROM `recordings` ORDER BY created_at DESC, id ASC").
		WillReturnRows(rows)

	recs, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "id-b", recs[0].ID)
	assert.Equal(t, "id-a", recs[1].ID)
	assert.Equal(t, []byte("a"), recs[1].Data)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLRepository_GetNotFound(t *testing.T) {
	mock, repo := setupMySQL(t)

	mock.ExpectQuery("SELECT \\* FROM `recordings` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows(recordingColumns()))

	rec, err := repo.Get(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, rec)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLRepository_PutUpserts(t *testing.T) {
	mock, repo := setupMySQL(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `recordings` .*ON DUPLICATE KEY UPDATE").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.Put(context.Background(), sampleRecording("id-x", "Recording 1", testBase))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLRepository_Remove(t *testing.T) {
	mock, repo := setupMySQL(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM `recordings` WHERE id = \\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Remove(context.Background(), "id-x")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
