package store

import (
	"context"
	"testing"

	"PSocial/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileRepoGet(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewProfileRepo(mock)

	avatar := "https://cdn/u1.png"
	mock.ExpectQuery("SELECT id, username, avatar_url FROM users").WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "avatar_url"}).AddRow(int64(1), "alice", &avatar))
	p, err := repo.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", p.Username)
	require.NotNil(t, p.AvatarURL)
	assert.Equal(t, avatar, *p.AvatarURL)

	mock.ExpectQuery("SELECT id, username, avatar_url FROM users").WithArgs(int64(2)).WillReturnError(pgx.ErrNoRows)
	_, err = repo.Get(context.Background(), 2)
	assert.ErrorIs(t, err, errs.ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProfileRepoGetMany(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()
	repo := NewProfileRepo(mock)

	mock.ExpectQuery("FROM users WHERE id = ANY").WithArgs([]int64{1, 2, 3}).
		WillReturnRows(pgxmock.NewRows([]string{"id", "username", "avatar_url"}).
			AddRow(int64(1), "alice", (*string)(nil)).
			AddRow(int64(3), "carol", (*string)(nil)))
	got, err := repo.GetMany(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, "carol", got[3].Username)
	assert.Nil(t, got[1].AvatarURL)

	empty, err := repo.GetMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NoError(t, mock.ExpectationsWereMet())
}
