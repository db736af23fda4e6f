package model

import "time"

// Profile 用户公开资料，通知文案需要 username
type Profile struct {
	ID              int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	Username        string    `json:"username" gorm:"type:varchar(64);uniqueIndex;not null"`
	DisplayName     string    `json:"display_name" gorm:"type:varchar(128)"`
	ProfileImageURL string    `json:"profile_image_url,omitempty" gorm:"type:varchar(512)"`
	CreatedAt       time.Time `json:"created_at"`
}

func (Profile) TableName() string { return "profiles" }
