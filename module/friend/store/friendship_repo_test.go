package store

import (
	"context"
	"testing"

	"PSocial/module/friend/model"
	"PSocial/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExistsAndCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewFriendshipRepo(mock)

	mock.ExpectQuery("SELECT EXISTS").WithArgs(int64(1), int64(2)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	ok, err := repo.Exists(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectQuery("INSERT INTO friendships").WithArgs(int64(1), int64(3), model.StatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(12)))
	f, err := repo.Create(context.Background(), 1, 3)
	require.NoError(t, err)
	assert.Equal(t, &model.Friendship{ID: 12, UserID: 1, FriendID: 3, Status: model.StatusPending}, f)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewFriendshipRepo(mock)

	mock.ExpectQuery("UPDATE friendships").WithArgs(int64(12), model.StatusAccepted, int64(3)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "friend_id", "status"}).
			AddRow(int64(12), int64(1), int64(3), model.StatusAccepted))
	f, err := repo.UpdateStatus(context.Background(), 12, 3, model.StatusAccepted)
	require.NoError(t, err)
	assert.EqualValues(t, 1, f.UserID)

	mock.ExpectQuery("UPDATE friendships").WithArgs(int64(12), model.StatusBlocked, int64(99)).
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.UpdateStatus(context.Background(), 12, 99, model.StatusBlocked)
	assert.ErrorIs(t, err, errs.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStatusForAction(t *testing.T) {
	assert.Equal(t, model.StatusAccepted, model.StatusForAction("Accept"))
	assert.Equal(t, model.StatusRejected, model.StatusForAction("Decline"))
	assert.Equal(t, model.StatusBlocked, model.StatusForAction("Block"))
	assert.Equal(t, model.StatusBlocked, model.StatusForAction(""))
}
