// Package monitoring 提供预测结果的实时推送和模型文件监控
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// MessageType 消息类型
type MessageType string

const (
	VerdictMessage MessageType = "verdict"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 64
)

// Message 推送消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	ID        string          `json:"id"`
}

// VerdictEvent 单次预测结果
type VerdictEvent struct {
	Potable    bool               `json:"potable"`
	Label      int                `json:"label"`
	Confidence float64            `json:"confidence"`
	Features   map[string]float64 `json:"features,omitempty"`
}

// FeedStats 推送统计
type FeedStats struct {
	ConnectedClients int       `json:"connected_clients"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesDropped  int64     `json:"messages_dropped"`
	LastMessageTime  time.Time `json:"last_message_time"`
}

// client WebSocket客户端
type client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// VerdictFeed 把每次预测结果广播给所有WebSocket客户端
type VerdictFeed struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	upgrader   websocket.Upgrader
	logger     *zap.Logger

	mu    sync.RWMutex
	stats FeedStats
}

// NewVerdictFeed 创建推送中心
func NewVerdictFeed(logger *zap.Logger) *VerdictFeed {
	return &VerdictFeed{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
	}
}

// Run 运行推送中心，直到ctx结束
func (f *VerdictFeed) Run(ctx context.Context) error {
	defer close(f.done)
	for {
		select {
		case c := <-f.register:
			f.mu.Lock()
			f.clients[c] = true
			f.stats.ConnectedClients = len(f.clients)
			f.mu.Unlock()
			f.logger.Debug("feed client connected", zap.String("client", c.id))

		case c := <-f.unregister:
			f.mu.Lock()
			if _, ok := f.clients[c]; ok {
				delete(f.clients, c)
				close(c.send)
			}
			f.stats.ConnectedClients = len(f.clients)
			f.mu.Unlock()
			f.logger.Debug("feed client disconnected", zap.String("client", c.id))

		case message := <-f.broadcast:
			f.mu.Lock()
			for c := range f.clients {
				select {
				case c.send <- message:
					f.stats.MessagesSent++
				default:
					// slow client
					close(c.send)
					delete(f.clients, c)
					f.stats.MessagesDropped++
				}
			}
			f.stats.ConnectedClients = len(f.clients)
			f.stats.LastMessageTime = time.Now()
			f.mu.Unlock()

		case <-ctx.Done():
			f.mu.Lock()
			for c := range f.clients {
				close(c.send)
				delete(f.clients, c)
			}
			f.stats.ConnectedClients = 0
			f.mu.Unlock()
			return nil
		}
	}
}

// Publish 广播一次预测结果，队列满时丢弃
func (f *VerdictFeed) Publish(event VerdictEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		f.logger.Warn("marshal verdict event failed", zap.Error(err))
		return
	}
	payload, err := json.Marshal(Message{
		Type:      VerdictMessage,
		Timestamp: time.Now(),
		Data:      data,
		ID:        uuid.NewString(),
	})
	if err != nil {
		f.logger.Warn("marshal feed message failed", zap.Error(err))
		return
	}

	select {
	case f.broadcast <- payload:
	case <-f.done:
	default:
		f.mu.Lock()
		f.stats.MessagesDropped++
		f.mu.Unlock()
		f.logger.Warn("feed broadcast queue is full, dropping message")
	}
}

// Stats 获取推送统计
func (f *VerdictFeed) Stats() FeedStats {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.stats
}

// ServeHTTP 处理WebSocket连接
func (f *VerdictFeed) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		id:   fmt.Sprintf("client_%s", uuid.NewString()[:8]),
	}
	select {
	case f.register <- c:
	case <-f.done:
		conn.Close()
		return
	}

	go c.writePump(f.logger)
	go c.readPump(f)
}

// writePump WebSocket写入泵
func (c *client) writePump(logger *zap.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logger.Debug("websocket write failed", zap.String("client", c.id), zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只用于感知客户端断开，客户端消息被忽略
func (c *client) readPump(f *VerdictFeed) {
	defer func() {
		select {
		case f.unregister <- c:
		case <-f.done:
		}
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				f.logger.Debug("websocket read failed", zap.String("client", c.id), zap.Error(err))
			}
			return
		}
	}
}
