package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"MemoFM/core/session"
	"MemoFM/logger"
)

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	maxMsgSize = 4096
)

// Client 单个 WebSocket 连接
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// commandData 客户端指令载荷
type commandData struct {
	Action   string  `json:"action"`
	ID       string  `json:"id,omitempty"`
	Fraction float64 `json:"fraction,omitempty"`
	Rate     float64 `json:"rate,omitempty"`
	Name     string  `json:"name,omitempty"`
}

// WebSocketHandler 建立连接：注册到 Hub、先推一帧完整状态、启动读写泵
func (h *APIHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket 升级失败", logger.ErrorField(err))
		return
	}

	client := &Client{hub: h.hub, conn: conn, send: make(chan []byte, 16)}
	h.hub.Register(client)

	go client.writePump()
	go client.readPump(h.ctrl)

	// 新连接先收到一帧完整状态，不用等下一次广播
	if raw, err := encodeMessage(MsgTypeState, h.ctrl.StateSnapshot()); err == nil {
		client.enqueue(raw)
	}
}

// enqueue 非阻塞投递，缓冲满时丢弃
func (c *Client) enqueue(message []byte) {
	select {
	case c.send <- message:
	default:
	}
}

// readPump 读取消息循环
func (c *Client) readPump(ctrl *session.Controller) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket 读取错误", logger.ErrorField(err))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("消息格式不合法", logger.ErrorField(err))
			continue
		}

		switch msg.Type {
		case MsgTypePing:
			if raw, err := encodeMessage(MsgTypePong, nil); err == nil {
				c.enqueue(raw)
			}
		case MsgTypeCommand:
			dispatchCommand(ctrl, msg.Data)
		default:
			logger.Debug("忽略未知消息类型", logger.String("type", string(msg.Type)))
		}
	}
}

// dispatchCommand 把指令转成控制器调用；未知动作只记录
func dispatchCommand(ctrl *session.Controller, data json.RawMessage) {
	var cmd commandData
	if err := json.Unmarshal(data, &cmd); err != nil {
		logger.Warn("指令载荷不合法", logger.ErrorField(err))
		return
	}

	switch cmd.Action {
	case "record_start":
		ctrl.StartCapture()
	case "record_stop":
		ctrl.StopCapture()
	case "toggle_play":
		ctrl.TogglePlay()
	case "toggle_repeat":
		ctrl.ToggleRepeat()
	case "select":
		ctrl.Select(cmd.ID)
	case "seek":
		ctrl.SeekFraction(cmd.Fraction)
	case "rate":
		ctrl.SetRate(cmd.Rate)
	case "rate_up":
		ctrl.RateUp()
	case "rate_down":
		ctrl.RateDown()
	case "skip_forward":
		ctrl.SkipForward()
	case "skip_back":
		ctrl.SkipBackward()
	case "rename":
		ctrl.Rename(cmd.ID, cmd.Name)
	case "delete":
		ctrl.Delete(cmd.ID)
	default:
		logger.Warn("未知指令", logger.String("action", cmd.Action))
	}
}

// writePump 写入消息循环
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中积压的消息
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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
