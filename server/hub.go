package server

import (
	"encoding/json"
	"sync"
	"time"

	"MemoFM/logger"
)

// MessageType WebSocket 消息类型
type MessageType string

const (
	MsgTypeState   MessageType = "state"   // 服务端推送的会话快照
	MsgTypeCommand MessageType = "command" // 客户端发来的控制指令
	MsgTypePing    MessageType = "ping"
	MsgTypePong    MessageType = "pong"
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType     `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// encodeMessage 打包带时间戳的消息帧
func encodeMessage(msgType MessageType, payload interface{}) ([]byte, error) {
	msg := WSMessage{Type: msgType, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Data = data
	}
	return json.Marshal(msg)
}

// Hub 管理全部 WebSocket 连接，把会话状态扇出给每个客户端
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte

	mu   sync.RWMutex
	done chan struct{}
}

// NewHub 创建 Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)

		case message := <-h.broadcast:
			h.fanOut(message)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *Hub) Stop() {
	close(h.done)
}

// Register 把客户端交给主循环接管
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister 注销客户端
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast 打包消息投递给所有客户端；队列满时丢帧
func (h *Hub) Broadcast(msgType MessageType, payload interface{}) {
	raw, err := encodeMessage(msgType, payload)
	if err != nil {
		logger.Warn("状态序列化失败", logger.ErrorField(err))
		return
	}

	select {
	case h.broadcast <- raw:
	default:
		logger.Debug("广播队列已满，丢弃一帧状态")
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client] = true
	logger.Info("websocket 客户端接入", logger.Int("clients", len(h.clients)))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		logger.Info("websocket 客户端断开", logger.Int("clients", len(h.clients)))
	}
}

func (h *Hub) fanOut(message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// 发送缓冲打满说明客户端跟不上，跳过这一帧
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}
