package model

// All 返回需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&Profile{},
		&Post{},
		&Follow{},
		&Fan{},
		&Comment{},
		&PostLike{},
		&CommentLike{},
		&Notification{},
	}
}

// Int64Ptr 便于构造可空外键
func Int64Ptr(v int64) *int64 { return &v }
