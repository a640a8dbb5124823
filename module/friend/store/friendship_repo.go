package store

import (
	"context"
	"errors"

	"PSocial/data/database/pg/pgutil"
	"PSocial/module/friend/model"
	"PSocial/tools/errs"

	"github.com/jackc/pgx/v5"
)

type FriendshipRepo struct {
	db pgutil.DB
}

func NewFriendshipRepo(db pgutil.DB) *FriendshipRepo {
	return &FriendshipRepo{db: db}
}

const (
	sqlExists = `SELECT EXISTS (SELECT 1 FROM friendships
WHERE (user_id = $1 AND friend_id = $2) OR (user_id = $2 AND friend_id = $1))`
	sqlCreate = `INSERT INTO friendships (user_id, friend_id, status, created_at, updated_at)
VALUES ($1, $2, $3, now(), now()) RETURNING id`
	sqlUpdateStatus = `UPDATE friendships SET status = $2, updated_at = now()
WHERE id = $1 AND (user_id = $3 OR friend_id = $3)
RETURNING id, user_id, friend_id, status`
)

// Exists 任一方向已有记录即视为存在
func (r *FriendshipRepo) Exists(ctx context.Context, userID, friendID int64) (bool, error) {
	var ok bool
	if err := r.db.QueryRow(ctx, sqlExists, userID, friendID).Scan(&ok); err != nil {
		return false, errs.WrapMsg(err, "query friendship", "userId", userID, "friendId", friendID)
	}
	return ok, nil
}

func (r *FriendshipRepo) Create(ctx context.Context, userID, friendID int64) (*model.Friendship, error) {
	f := &model.Friendship{UserID: userID, FriendID: friendID, Status: model.StatusPending}
	if err := r.db.QueryRow(ctx, sqlCreate, userID, friendID, f.Status).Scan(&f.ID); err != nil {
		return nil, errs.WrapMsg(err, "insert friendship", "userId", userID, "friendId", friendID)
	}
	return f, nil
}

// UpdateStatus 只有关系中的一方能改；否则按不存在处理
func (r *FriendshipRepo) UpdateStatus(ctx context.Context, id, actorID int64, status string) (*model.Friendship, error) {
	var f model.Friendship
	err := r.db.QueryRow(ctx, sqlUpdateStatus, id, status, actorID).Scan(&f.ID, &f.UserID, &f.FriendID, &f.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrRecordNotFound.WithMsg("Friend request not found").WrapMsg("", "id", id)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "update friendship", "id", id)
	}
	return &f, nil
}
