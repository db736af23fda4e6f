package model

import "errors"

// 哨兵错误，调用方用 errors.Is 判断
var (
	ErrNotFound        = errors.New("not found")
	ErrForbidden       = errors.New("forbidden")
	ErrInvalidArgument = errors.New("invalid argument")
)
