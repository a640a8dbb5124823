package store

import (
	"context"
	"time"

	"PSocial/module/chat/model"
	"PSocial/tools/errs"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageStore messages 集合的读写
type MessageStore struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewMessageStore(coll *mongo.Collection) *MessageStore {
	return &MessageStore{coll: coll, now: time.Now}
}

// EnsureIndexes 按会话分页查询 + 已读标记都走 chatId 前缀
func (s *MessageStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "chatId", Value: 1}, {Key: "senderId", Value: 1}, {Key: "seen_at", Value: 1}}},
	})
	return errs.WrapMsg(err, "create message indexes")
}

// Insert 写入一条消息，回填 _id 与时间戳
func (s *MessageStore) Insert(ctx context.Context, m *model.Message) error {
	now := s.now()
	if m.ID.IsZero() {
		m.ID = primitive.NewObjectID()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	if _, err := s.coll.InsertOne(ctx, m); err != nil {
		return errs.WrapMsg(err, "insert message", "chatId", m.ChatID)
	}
	return nil
}

// MarkSeen 把会话里别人发来、尚未读的消息标成已读，返回更新条数
func (s *MessageStore) MarkSeen(ctx context.Context, chatID, readerID int64, at time.Time) (int64, error) {
	filter := bson.M{
		"chatId":   chatID,
		"senderId": bson.M{"$ne": readerID},
		"seen_at":  nil,
	}
	update := bson.M{"$set": bson.M{"seen_at": at, "updatedAt": at}}
	res, err := s.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, errs.WrapMsg(err, "mark messages seen", "chatId", chatID, "reader", readerID)
	}
	return res.ModifiedCount, nil
}

// ListByChat 按写入顺序分页；page 从 1 开始
func (s *MessageStore) ListByChat(ctx context.Context, chatID, page, limit int64) ([]*model.Message, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip((page - 1) * limit).
		SetLimit(limit)
	cur, err := s.coll.Find(ctx, bson.M{"chatId": chatID}, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "find messages", "chatId", chatID)
	}
	out := make([]*model.Message, 0, limit)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode messages", "chatId", chatID)
	}
	return out, nil
}

func (s *MessageStore) CountByChat(ctx context.Context, chatID int64) (int64, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"chatId": chatID})
	if err != nil {
		return 0, errs.WrapMsg(err, "count messages", "chatId", chatID)
	}
	return n, nil
}
