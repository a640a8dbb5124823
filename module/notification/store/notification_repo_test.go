package store

import (
	"context"
	"testing"
	"time"

	"PSocial/module/notification/model"
	"PSocial/tools/errs"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestCreate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO notifications").
		WithArgs(model.TypeFriendRequestReceived, "Received Friend Request", int64(2), int64(1), ptr(int64(9))).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(100), at))

	n := &model.Notification{
		NotificationType: model.TypeFriendRequestReceived,
		Message:          "Received Friend Request",
		RecipientID:      2,
		SenderID:         1,
		FriendshipID:     ptr(int64(9)),
	}
	require.NoError(t, NewNotificationRepo(mock).Create(context.Background(), n))
	assert.EqualValues(t, 100, n.ID)
	assert.Equal(t, at, n.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReplaceWithAccepted(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	// 先删后写，在一个事务里
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM notifications").
		WithArgs(int64(9), []string{model.TypeFriendRequestReceived, model.TypeFriendRequestAccepted}).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectQuery("INSERT INTO notifications").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(101), time.Now()))
	mock.ExpectCommit()

	n := &model.Notification{
		NotificationType: model.TypeFriendRequestAccepted,
		Message:          "bob Accepted Your Friend Request",
		RecipientID:      1,
		SenderID:         2,
		FriendshipID:     ptr(int64(9)),
	}
	deleted, err := NewNotificationRepo(mock).ReplaceWithAccepted(context.Background(), n)
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)
	assert.EqualValues(t, 101, n.ID)
	assert.NoError(t, mock.ExpectationsWereMet())

	_, err = NewNotificationRepo(mock).ReplaceWithAccepted(context.Background(), &model.Notification{})
	assert.ErrorIs(t, err, errs.ErrArgs)
}

func TestListForRecipient(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	newer := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)
	mock.ExpectQuery("FROM notifications n JOIN users u").WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "notification_type", "message", "created_at", "friendship_id", "id", "username", "avatar_url"}).
			AddRow(int64(5), model.TypeFriendRequestAccepted, "bob Accepted Your Friend Request", newer, ptr(int64(9)), int64(2), "bob", ptr("https://cdn/b.png")).
			AddRow(int64(3), model.TypeFriendRequestReceived, "Received Friend Request", older, (*int64)(nil), int64(3), "carol", (*string)(nil)))

	list, err := NewNotificationRepo(mock).ListForRecipient(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.EqualValues(t, 5, list[0].ID)
	assert.Equal(t, "bob", list[0].Sender.Username)
	require.NotNil(t, list[0].Friendship)
	assert.EqualValues(t, 9, list[0].Friendship.ID)
	assert.Nil(t, list[1].Friendship)
	assert.Nil(t, list[1].Sender.AvatarURL)
	assert.NoError(t, mock.ExpectationsWereMet())
}
