package service

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

// failFanWrites 让接下来 n 次对 fans 表的写入失败；返回的函数重新设置剩余失败次数
func failFanWrites(t *testing.T, db *gorm.DB, n int) func(int) {
	t.Helper()
	remaining := n
	inject := func(tx *gorm.DB) {
		if tx.Statement.Table == "fans" && remaining > 0 {
			remaining--
			_ = tx.AddError(errors.New("fans table unavailable"))
		}
	}
	require.NoError(t, db.Callback().Create().Before("gorm:create").Register("test:fail_fans_create", inject))
	require.NoError(t, db.Callback().Delete().Before("gorm:delete").Register("test:fail_fans_delete", inject))
	return func(k int) { remaining = k }
}

// edgeMirror 记录镜像写入的关注边，前 failures 次写返回错误
type edgeMirror struct {
	edges    map[[2]int64]bool
	failures int
}

func (m *edgeMirror) write(from, to int64, present bool) error {
	if m.failures > 0 {
		m.failures--
		return errors.New("graph store unavailable")
	}
	if m.edges == nil {
		m.edges = map[[2]int64]bool{}
	}
	if present {
		m.edges[[2]int64{from, to}] = true
	} else {
		delete(m.edges, [2]int64{from, to})
	}
	return nil
}

func (m *edgeMirror) Follow(_ context.Context, from, to int64) error   { return m.write(from, to, true) }
func (m *edgeMirror) Unfollow(_ context.Context, from, to int64) error { return m.write(from, to, false) }
