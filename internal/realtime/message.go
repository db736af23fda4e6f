// Package realtime 维护 websocket 连接与用户的绑定，并通过 Redis pub/sub
// 把通知投递到持有该用户连接的实例
package realtime

import (
	"encoding/json"
)

const (
	TypeAuth         = "auth"
	TypeAuthOK       = "auth_ok"
	TypeError        = "error"
	TypePing         = "ping"
	TypePong         = "pong"
	TypeNotification = "notification"
	TypeUnreadCount  = "unread_count"
)

// Envelope 下行消息
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Inbound 客户端上行消息
type Inbound struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

type UnreadCount struct {
	Count int64 `json:"count"`
}

type AuthOK struct {
	UserID int64 `json:"user_id"`
}

type ErrorData struct {
	Message string `json:"message"`
}

func encode(typ string, data any) ([]byte, error) {
	return json.Marshal(Envelope{Type: typ, Data: data})
}

func errorEnvelope(msg string) Envelope {
	return Envelope{Type: TypeError, Data: ErrorData{Message: msg}}
}
