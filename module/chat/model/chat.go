package model

import "time"

// Chat 关系库 chats 表，成员在 chat_members
type Chat struct {
	ID          int64     `json:"id"`
	LastMessage string    `json:"lastMessage"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
