package model

import (
	"time"

	"PSocial/data/database"
	"PSocial/service/mgo"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

const MessageTableName = "messages"

var _ database.Table = Message{}

// Message 聊天消息文档；chatId 指向关系库 chats.id
type Message struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"_id"`
	ChatID     int64              `bson:"chatId" json:"chatId"`
	SenderID   int64              `bson:"senderId" json:"senderId"`
	Message    string             `bson:"message" json:"message"`
	Attachment []string           `bson:"attachment,omitempty" json:"attachment,omitempty"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
	SeenAt     *time.Time         `bson:"seen_at" json:"seen_at"`
}

func (Message) GetTableName() string { return MessageTableName }

func (m Message) Collection() *mongo.Collection {
	return mgo.GetDB().Collection(m.GetTableName())
}
