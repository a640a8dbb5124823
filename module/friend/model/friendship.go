package model

const (
	StatusPending  = "pending"
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
	StatusBlocked  = "blocked"
)

type Friendship struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"userId"`
	FriendID int64  `json:"friendId"`
	Status   string `json:"status"`
}

// StatusForAction Accept / Decline 以外一律视为拉黑
func StatusForAction(action string) string {
	switch action {
	case "Accept":
		return StatusAccepted
	case "Decline":
		return StatusRejected
	default:
		return StatusBlocked
	}
}
