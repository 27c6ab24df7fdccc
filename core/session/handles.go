package session

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
)

// HandleRegistry 管理播放句柄：每次录音载入内存时铸造一个新 token，
// 指向 /clips/{token}。token 只存在于进程内，从不落盘，
// 撤销后立刻失效。
type HandleRegistry struct {
	mu      sync.RWMutex
	byToken map[string]string // token -> recording ID
	byID    map[string]string // recording ID -> token
}

func NewHandleRegistry() *HandleRegistry {
	return &HandleRegistry{
		byToken: make(map[string]string),
		byID:    make(map[string]string),
	}
}

func newHandleToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand 不可用说明环境已坏
		panic(err)
	}
	return hex.EncodeToString(b)
}

// Mint 为录音发放新句柄，旧句柄同时作废，返回句柄URL路径
func (h *HandleRegistry) Mint(id string) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.byID[id]; ok {
		delete(h.byToken, old)
	}

	token := newHandleToken()
	h.byToken[token] = id
	h.byID[id] = token
	return "/clips/" + token
}

// Resolve 把句柄 token 换回录音ID
func (h *HandleRegistry) Resolve(token string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	id, ok := h.byToken[token]
	return id, ok
}

// Revoke 作废某条录音的句柄
func (h *HandleRegistry) Revoke(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if token, ok := h.byID[id]; ok {
		delete(h.byToken, token)
		delete(h.byID, id)
	}
}

// RevokeAll 作废全部句柄
func (h *HandleRegistry) RevokeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.byToken = make(map[string]string)
	h.byID = make(map[string]string)
}
