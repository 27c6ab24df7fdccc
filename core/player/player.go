package player

// EventKind 播放器事件类型
type EventKind int

const (
	EventPlaying EventKind = iota
	EventPaused
	EventEnded
)

func (k EventKind) String() string {
	switch k {
	case EventPlaying:
		return "playing"
	case EventPaused:
		return "paused"
	case EventEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// Event 携带事件类型和发生时刻的播放位置（秒）
type Event struct {
	Kind     EventKind
	Position float64
}

// Player 播放元素抽象。
// 越界定位交给元素自己处理：负值归零，超出末尾会立刻触发 Ended。
// 状态变化通过 Events 通道上报，通道在 Close 后关闭。
type Player interface {
	Load(id string, data []byte, format string) error
	Play() error
	Pause() error
	Seek(seconds float64)
	SetRate(rate float64)
	Position() float64
	Events() <-chan Event
	Close() error
}
