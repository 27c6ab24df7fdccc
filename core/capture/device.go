package capture

import "errors"

// ErrAlreadyRecording 在采集进行中再次 Start 时返回
var ErrAlreadyRecording = errors.New("capture already recording")

// Clip 是一次完成的采集结果
type Clip struct {
	Data     []byte  // 完整的音频容器字节
	Format   string  // 容器类型，如 wav
	Duration float64 // 按墙上时钟估算的时长（秒），解码值之前的兜底
}

// Device 录音设备抽象。
// Start 失败只代表这次采集没有开始，设备之后仍可用；
// Stop 在未采集时是幂等空操作，返回 (nil, nil)。
type Device interface {
	Start() error
	Stop() (*Clip, error)
	Recording() bool
	Close() error
}
