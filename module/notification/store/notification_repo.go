package store

import (
	"context"

	"PSocial/data/database/pg/pgutil"
	"PSocial/module/notification/model"
	usermodel "PSocial/module/user/model"
	"PSocial/tools/errs"

	"github.com/jackc/pgx/v5"
)

type NotificationRepo struct {
	db pgutil.DB
}

func NewNotificationRepo(db pgutil.DB) *NotificationRepo {
	return &NotificationRepo{db: db}
}

const (
	sqlInsertNotification = `INSERT INTO notifications (notification_type, message, recipient_id, sender_id, friendship_id, created_at)
VALUES ($1, $2, $3, $4, $5, now()) RETURNING id, created_at`
	sqlDeleteByFriendship = `DELETE FROM notifications WHERE friendship_id = $1 AND notification_type = ANY($2)`
	sqlListForRecipient   = `SELECT n.id, n.notification_type, n.message, n.created_at, n.friendship_id,
       u.id, u.username, u.avatar_url
FROM notifications n JOIN users u ON u.id = n.sender_id
WHERE n.recipient_id = $1
ORDER BY n.created_at DESC, n.id DESC`
)

func insert(ctx context.Context, q interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}, n *model.Notification) error {
	err := q.QueryRow(ctx, sqlInsertNotification,
		n.NotificationType, n.Message, n.RecipientID, n.SenderID, n.FriendshipID).
		Scan(&n.ID, &n.CreatedAt)
	return errs.WrapMsg(err, "insert notification", "type", n.NotificationType, "recipient", n.RecipientID)
}

// Create 写一条通知，回填 id / created_at
func (r *NotificationRepo) Create(ctx context.Context, n *model.Notification) error {
	return insert(ctx, r.db, n)
}

// ReplaceWithAccepted 同一事务：删掉该好友关系下的 RECEIVED（以及重试留下的 ACCEPTED），再写一条 ACCEPTED。
// 返回删除条数。
func (r *NotificationRepo) ReplaceWithAccepted(ctx context.Context, n *model.Notification) (int64, error) {
	if n.FriendshipID == nil {
		return 0, errs.ErrArgs.WrapMsg("accepted notification needs friendshipId")
	}
	var deleted int64
	err := pgutil.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sqlDeleteByFriendship, *n.FriendshipID,
			[]string{model.TypeFriendRequestReceived, model.TypeFriendRequestAccepted})
		if err != nil {
			return errs.WrapMsg(err, "delete friendship notifications", "friendshipId", *n.FriendshipID)
		}
		deleted = tag.RowsAffected()
		return insert(ctx, tx, n)
	})
	return deleted, err
}

// ListForRecipient 新的在前，带发送方资料
func (r *NotificationRepo) ListForRecipient(ctx context.Context, recipientID int64) ([]*model.View, error) {
	rows, err := r.db.Query(ctx, sqlListForRecipient, recipientID)
	if err != nil {
		return nil, errs.WrapMsg(err, "query notifications", "recipient", recipientID)
	}
	defer rows.Close()

	out := make([]*model.View, 0)
	for rows.Next() {
		var (
			v            model.View
			sender       usermodel.Profile
			friendshipID *int64
		)
		if err := rows.Scan(&v.ID, &v.NotificationType, &v.Message, &v.CreatedAt, &friendshipID,
			&sender.ID, &sender.Username, &sender.AvatarURL); err != nil {
			return nil, errs.WrapMsg(err, "scan notification")
		}
		v.Sender = &sender
		if friendshipID != nil {
			v.Friendship = &model.FriendshipRef{ID: *friendshipID}
		}
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.WrapMsg(err, "iterate notifications")
	}
	return out, nil
}
