package store

import (
	"context"
	"errors"

	"PSocial/data/database/pg/pgutil"
	"PSocial/module/user/model"
	"PSocial/tools/errs"

	"github.com/jackc/pgx/v5"
)

type ProfileRepo struct {
	db pgutil.DB
}

func NewProfileRepo(db pgutil.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

const (
	sqlProfile  = `SELECT id, username, avatar_url FROM users WHERE id = $1`
	sqlProfiles = `SELECT id, username, avatar_url FROM users WHERE id = ANY($1)`
)

// Get 不存在时返回 ErrRecordNotFound
func (r *ProfileRepo) Get(ctx context.Context, id int64) (*model.Profile, error) {
	var p model.Profile
	err := r.db.QueryRow(ctx, sqlProfile, id).Scan(&p.ID, &p.Username, &p.AvatarURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrRecordNotFound.WrapMsg("user", "id", id)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "query user profile", "id", id)
	}
	return &p, nil
}

// GetMany 批量取，缺失的 id 不出现在结果里
func (r *ProfileRepo) GetMany(ctx context.Context, ids []int64) (map[int64]*model.Profile, error) {
	out := make(map[int64]*model.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, sqlProfiles, ids)
	if err != nil {
		return nil, errs.WrapMsg(err, "query user profiles")
	}
	defer rows.Close()
	for rows.Next() {
		var p model.Profile
		if err := rows.Scan(&p.ID, &p.Username, &p.AvatarURL); err != nil {
			return nil, errs.WrapMsg(err, "scan user profile")
		}
		out[p.ID] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, errs.WrapMsg(err, "iterate user profiles")
	}
	return out, nil
}
