package model

import (
	"time"

	usermodel "PSocial/module/user/model"
)

// notification_type 取值
const (
	TypeFriendRequestReceived = "FRIEND_REQUEST_RECEIVED"
	TypeFriendRequestAccepted = "FRIEND_REQUEST_ACCEPTED"
)

// 队列里的任务名
const (
	QueueName             = "FriendRequestQueue"
	JobFriendRequest      = "sendFriendRequestNotification"
	JobFriendRequestReply = "sendFriendRequestAccepted"

	// KindAccepted 任务数据里 notificationType 的取值
	KindAccepted = "FriendRequestAccepted"
)

type Notification struct {
	ID               int64     `json:"id"`
	NotificationType string    `json:"notificationType"`
	Message          string    `json:"message"`
	RecipientID      int64     `json:"recipientId"`
	SenderID         int64     `json:"senderId"`
	FriendshipID     *int64    `json:"friendshipId"`
	CreatedAt        time.Time `json:"createdAt"`
}

// FriendRequestJob 好友请求相关任务的数据
type FriendRequestJob struct {
	UserID           int64  `json:"userId"`
	FriendID         int64  `json:"friendId"`
	FriendshipID     int64  `json:"friendshipId"`
	NotificationType string `json:"notificationType,omitempty"`
}

// FriendshipRef 列表里只带 id
type FriendshipRef struct {
	ID int64 `json:"id"`
}

// View get-notification 的返回项
type View struct {
	ID               int64              `json:"id"`
	NotificationType string             `json:"notificationType"`
	Message          string             `json:"message"`
	CreatedAt        time.Time          `json:"createdAt"`
	Sender           *usermodel.Profile `json:"sender"`
	Friendship       *FriendshipRef     `json:"friendship"`
}

// Push 推给 SSE 的内容
type Push struct {
	Message string             `json:"message"`
	User    *usermodel.Profile `json:"user"`
	Friend  *usermodel.Profile `json:"friend"`
}
