package store

import (
	"context"

	"PSocial/data/database/pg/pgutil"
	"PSocial/tools/errs"

	"github.com/jackc/pgx/v5"
)

// ChatRepo chats / chat_members 两张表
type ChatRepo struct {
	db pgutil.DB
}

func NewChatRepo(db pgutil.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const (
	sqlInsertChat = `INSERT INTO chats (created_at, updated_at) VALUES (now(), now()) RETURNING id`
	sqlAddMembers = `INSERT INTO chat_members (chat_id, user_id) SELECT $1, unnest($2::bigint[]) ON CONFLICT DO NOTHING`
	sqlLastMsg    = `UPDATE chats SET last_message = $2, updated_at = now() WHERE id = $1`
)

// CreateChat 一个事务里建会话并写成员
func (r *ChatRepo) CreateChat(ctx context.Context, memberIDs []int64) (int64, error) {
	if len(memberIDs) == 0 {
		return 0, errs.ErrArgs.WrapMsg("chat needs members")
	}
	var id int64
	err := pgutil.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, sqlInsertChat).Scan(&id); err != nil {
			return errs.WrapMsg(err, "insert chat")
		}
		if _, err := tx.Exec(ctx, sqlAddMembers, id, memberIDs); err != nil {
			return errs.WrapMsg(err, "insert chat members", "chatId", id)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *ChatRepo) UpdateLastMessage(ctx context.Context, chatID int64, text string) error {
	tag, err := r.db.Exec(ctx, sqlLastMsg, chatID, text)
	if err != nil {
		return errs.WrapMsg(err, "update last message", "chatId", chatID)
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrRecordNotFound.WrapMsg("chat", "chatId", chatID)
	}
	return nil
}
