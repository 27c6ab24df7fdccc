package session

import "MemoFM/model"

// PlaybackState 播放侧状态快照
type PlaybackState struct {
	CurrentID string  `json:"currentId,omitempty"`
	Playing   bool    `json:"playing"`
	Position  float64 `json:"position"` // 秒
	Duration  float64 `json:"duration"` // 有效时长：解码值优先，否则存储估算
	Rate      float64 `json:"rate"`
	Repeat    bool    `json:"repeat"`
	Capturing bool    `json:"capturing"`
}

// State 完整会话快照，推给 WebSocket 客户端，也是 /api/state 的响应体
type State struct {
	Recordings []*model.Recording `json:"recordings"`
	Playback   PlaybackState      `json:"playback"`
}
