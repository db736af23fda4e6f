package model

import "time"

// PostLike 帖子点赞，(post_id, profile_id) 唯一
type PostLike struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	PostID    int64 `gorm:"uniqueIndex:ux_post_like;not null"`
	ProfileID int64 `gorm:"uniqueIndex:ux_post_like;not null"`
	CreatedAt time.Time
}

func (PostLike) TableName() string { return "post_likes" }

// CommentLike 评论点赞，(comment_id, profile_id) 唯一
type CommentLike struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	CommentID int64 `gorm:"uniqueIndex:ux_comment_like;not null"`
	ProfileID int64 `gorm:"uniqueIndex:ux_comment_like;not null"`
	CreatedAt time.Time
}

func (CommentLike) TableName() string { return "comment_likes" }
