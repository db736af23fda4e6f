package model

import "time"

// NotificationType 通知类型
type NotificationType string

const (
	NotificationFollow      NotificationType = "FOLLOW"
	NotificationUnfollow    NotificationType = "UNFOLLOW"
	NotificationLike        NotificationType = "LIKE"
	NotificationComment     NotificationType = "COMMENT"
	NotificationLikeComment NotificationType = "LIKE_COMMENT"
	NotificationMention     NotificationType = "MENTION"
	NotificationNewPost     NotificationType = "NEW_POST"
)

// Notification 通知记录；is_read 只会从 false 变为 true
type Notification struct {
	ID               int64            `json:"id" gorm:"primaryKey;autoIncrement"`
	RecipientID      int64            `json:"recipient_id" gorm:"index:idx_notification_recipient;not null"`
	SenderID         *int64           `json:"sender_id,omitempty"`
	Type             NotificationType `json:"type" gorm:"type:varchar(16);not null"`
	Message          string           `json:"message" gorm:"type:varchar(500)"`
	RelatedPostID    *int64           `json:"related_post_id,omitempty" gorm:"index"`
	RelatedCommentID *int64           `json:"related_comment_id,omitempty" gorm:"index"`
	IsRead           bool             `json:"is_read" gorm:"not null;default:false;index:idx_notification_recipient"`
	CreatedAt        time.Time        `json:"created_at" gorm:"index;not null"`
}

func (Notification) TableName() string { return "notifications" }
