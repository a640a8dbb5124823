package model

// Profile users 表里对外可见的部分，只读
type Profile struct {
	ID        int64   `json:"id"`
	Username  string  `json:"username"`
	AvatarURL *string `json:"avatarUrl"`
}
