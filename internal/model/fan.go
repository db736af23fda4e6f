package model

import "time"

// Fan 粉丝关系（B 的粉丝是 A）冗余自 Follow，扇出时按 user_id 读取
type Fan struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	UserID    int64 `gorm:"index:idx_fan_user;uniqueIndex:idx_fan_pair;not null"`
	FanID     int64 `gorm:"uniqueIndex:idx_fan_pair;not null"`
	CreatedAt time.Time
}

func (Fan) TableName() string { return "fans" }
