package realtime

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/d60-Lab/social-feed/pkg/logger"
)

const (
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 4096
)

// TransportOptions 连接参数
type TransportOptions struct {
	SendBuffer   int
	AuthTimeout  time.Duration
	WriteTimeout time.Duration
	InboundRate  float64
	InboundBurst int
}

// Transport 处理 /ws：匿名连接 -> 认证握手 -> 绑定用户 -> 断开解绑
type Transport struct {
	registry *Registry
	auth     Authenticator
	opts     TransportOptions
	upgrader websocket.Upgrader
}

func NewTransport(registry *Registry, auth Authenticator, opts TransportOptions) *Transport {
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.InboundRate <= 0 {
		opts.InboundRate = 5
	}
	if opts.InboundBurst <= 0 {
		opts.InboundBurst = 20
	}
	return &Transport{
		registry: registry,
		auth:     auth,
		opts:     opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	c := newClient(conn, t.opts.SendBuffer)
	defer conn.Close()

	userID, ok := t.handshake(c)
	if !ok {
		handshakeFailures.Inc()
		return
	}
	log := logger.With(zap.String("conn", c.id), zap.Int64("user_id", userID))
	log.Debug("websocket authenticated")

	t.registry.Bind(userID, c)
	go t.writePump(c)
	t.readPump(c)

	// 断开后立即解绑，之后的投递不再指向这条连接
	t.registry.Unbind(c)
	c.close()
	log.Debug("websocket closed")
}

// handshake 在 AuthTimeout 内必须收到 auth 消息；写 pump 尚未启动，这里可以直接写
func (t *Transport) handshake(c *Client) (int64, bool) {
	_ = c.conn.SetReadDeadline(time.Now().Add(t.opts.AuthTimeout))
	c.conn.SetReadLimit(maxInboundSize)

	var msg Inbound
	if err := c.conn.ReadJSON(&msg); err != nil {
		t.reject(c, "authentication required")
		return 0, false
	}
	if msg.Type != TypeAuth {
		t.reject(c, "authentication required")
		return 0, false
	}
	userID, err := t.auth.Authenticate(msg.Token)
	if err != nil {
		t.reject(c, "invalid token")
		return 0, false
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	if err := c.conn.WriteJSON(Envelope{Type: TypeAuthOK, Data: AuthOK{UserID: userID}}); err != nil {
		return 0, false
	}
	return userID, true
}

func (t *Transport) reject(c *Client, reason string) {
	_ = c.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
	_ = c.conn.WriteJSON(errorEnvelope(reason))
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason),
		time.Now().Add(time.Second))
}

func (t *Transport) readPump(c *Client) {
	limiter := rate.NewLimiter(rate.Limit(t.opts.InboundRate), t.opts.InboundBurst)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg Inbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			var ce *websocket.CloseError
			if !errors.As(err, &ce) {
				logger.Debug("websocket read ended", zap.String("conn", c.id), zap.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if !limiter.Allow() {
			c.enqueueEnvelope(errorEnvelope("rate limited"))
			continue
		}
		switch msg.Type {
		case TypePing:
			c.enqueueEnvelope(Envelope{Type: TypePong})
		case TypeAuth:
			c.enqueueEnvelope(errorEnvelope("already authenticated"))
		default:
			c.enqueueEnvelope(errorEnvelope("unsupported message type"))
		}
	}
}

func (t *Transport) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Debug("websocket write failed", zap.String("conn", c.id), zap.Error(err))
				c.close()
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.opts.WriteTimeout)); err != nil {
				c.close()
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (c *Client) enqueueEnvelope(e Envelope) {
	b, err := encode(e.Type, e.Data)
	if err != nil {
		return
	}
	c.Enqueue(b)
}
