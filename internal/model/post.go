package model

import "time"

// Post 内容主体（仅时间线所需字段）
type Post struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	CreatorID int64     `json:"creator_id" gorm:"index:idx_post_creator_created;not null"`
	Caption   string    `json:"caption" gorm:"type:text"`
	ImageURL  string    `json:"image_url,omitempty" gorm:"type:varchar(512)"`
	CreatedAt time.Time `json:"created_at" gorm:"index:idx_post_creator_created;index"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Post) TableName() string { return "posts" }
