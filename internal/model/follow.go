package model

import (
	"time"
)

// Follow 关注关系（A 关注 B）
type Follow struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	FollowerID int64 `gorm:"index:idx_follow_follower;uniqueIndex:idx_follow_pair;not null"`
	FolloweeID int64 `gorm:"index:idx_follow_followee;uniqueIndex:idx_follow_pair;not null"`
	// 复合唯一键，避免重复关注
	// idx_follow_pair = (follower_id, followee_id)
	CreatedAt time.Time
}

func (Follow) TableName() string { return "follows" }
