package realtime

import (
	"sync"
)

// Registry 用户 id -> 已认证连接。认证成功时 Bind，断开时 Unbind；
// 一个用户可以同时持有多个连接。
type Registry struct {
	mu    sync.RWMutex
	conns map[int64]map[string]*Client
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[int64]map[string]*Client)}
}

func (r *Registry) Bind(userID int64, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[userID]
	if !ok {
		set = make(map[string]*Client)
		r.conns[userID] = set
	}
	c.userID = userID
	set[c.id] = c
	liveConnections.Inc()
}

// Unbind 对未绑定的连接是空操作
func (r *Registry) Unbind(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.conns[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c.id]; !ok {
		return
	}
	delete(set, c.id)
	if len(set) == 0 {
		delete(r.conns, c.userID)
	}
	liveConnections.Dec()
}

// SendToUser 投递到该用户在本实例的全部连接，返回成功入队的连接数
func (r *Registry) SendToUser(userID int64, payload []byte) int {
	r.mu.RLock()
	set := r.conns[userID]
	targets := make([]*Client, 0, len(set))
	for _, c := range set {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.Enqueue(payload) {
			delivered++
		}
	}
	return delivered
}

func (r *Registry) Connected(userID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}

// Count 当前已认证连接数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.conns {
		n += len(set)
	}
	return n
}
