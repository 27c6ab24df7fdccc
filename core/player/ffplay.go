package player

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"MemoFM/config"
	"MemoFM/logger"
)

// FFplayPlayer 用 ffplay 子进程播放当前剪辑。
// 播放位置由墙上时钟按倍速积分；seek 和调速通过带 -ss 重启子进程实现，
// 重启瞬间会出现一次短暂的 paused/playing 抖动，由上层去抖。
type FFplayPlayer struct {
	ffplayPath string
	clipDir    string

	clock  func() time.Time
	events chan Event

	mu        sync.Mutex
	closed    bool
	clipPath  string
	proc      *exec.Cmd
	procGen   int // 区分自然退出与主动终止
	playing   bool
	basePos   float64
	playStart time.Time
	rate      float64
}

var _ Player = (*FFplayPlayer)(nil)

// NewFFplayPlayer 创建播放器，剪辑临时文件放在数据目录下
func NewFFplayPlayer(cfg *config.Config) (*FFplayPlayer, error) {
	clipDir := filepath.Join(cfg.DataDir, "clips")
	if err := os.MkdirAll(clipDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create clip dir %s: %w", clipDir, err)
	}
	return &FFplayPlayer{
		ffplayPath: cfg.FFplayPath(),
		clipDir:    clipDir,
		clock:      time.Now,
		events:     make(chan Event, 16),
		rate:       1.0,
	}, nil
}

func (p *FFplayPlayer) Events() <-chan Event {
	return p.events
}

// emitLocked 非阻塞投递事件，消费者跟不上时丢弃
func (p *FFplayPlayer) emitLocked(kind EventKind, pos float64) {
	if p.closed {
		return
	}
	select {
	case p.events <- Event{Kind: kind, Position: pos}:
	default:
		logger.Warn("播放器事件通道已满，丢弃事件", logger.String("kind", kind.String()))
	}
}

func (p *FFplayPlayer) positionLocked() float64 {
	if !p.playing {
		return p.basePos
	}
	return p.basePos + p.clock().Sub(p.playStart).Seconds()*p.rate
}

func (p *FFplayPlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

// buildAtempoChain 把倍速拆成 atempo 滤镜允许的 [0.5,2] 因子链
func buildAtempoChain(rate float64) string {
	if rate == 1.0 {
		return ""
	}

	var factors []float64
	r := rate
	for r > 2.0 {
		factors = append(factors, 2.0)
		r /= 2.0
	}
	for r < 0.5 {
		factors = append(factors, 0.5)
		r /= 0.5
	}
	factors = append(factors, r)

	parts := make([]string, 0, len(factors))
	for _, f := range factors {
		parts = append(parts, "atempo="+strconv.FormatFloat(f, 'f', -1, 64))
	}
	return strings.Join(parts, ",")
}

func buildPlayArgs(clipPath string, startAt, rate float64) []string {
	args := []string{
		"-nodisp",
		"-autoexit",
		"-v", "error",
		"-ss", fmt.Sprintf("%.3f", startAt),
	}
	if chain := buildAtempoChain(rate); chain != "" {
		args = append(args, "-af", chain)
	}
	return append(args, clipPath)
}

// Load 把新负载落到剪辑临时文件并重置播放状态，倍速保留
func (p *FFplayPlayer) Load(id string, data []byte, format string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.playing = false
	p.stopProcLocked()

	if p.clipPath != "" {
		_ = os.Remove(p.clipPath)
		p.clipPath = ""
	}

	ext := format
	if ext == "" {
		ext = "bin"
	}
	path := filepath.Join(p.clipDir, id+"."+ext)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write clip file: %w", err)
	}

	p.clipPath = path
	p.basePos = 0
	return nil
}

// stopProcLocked 终止子进程；其 waiter 因代数不匹配而不再上报
func (p *FFplayPlayer) stopProcLocked() {
	if p.proc == nil {
		return
	}
	p.procGen++
	proc := p.proc
	p.proc = nil
	if proc.Process != nil {
		_ = proc.Process.Kill()
	}
}

func (p *FFplayPlayer) startProcLocked() error {
	if p.clipPath == "" {
		return fmt.Errorf("no clip loaded")
	}
	if p.playing {
		return nil
	}

	cmd := exec.Command(p.ffplayPath, buildPlayArgs(p.clipPath, p.basePos, p.rate)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start playback process: %w", err)
	}

	p.proc = cmd
	p.procGen++
	gen := p.procGen
	p.playing = true
	p.playStart = p.clock()
	p.emitLocked(EventPlaying, p.basePos)

	go func() {
		_ = cmd.Wait()
		if stderr.Len() > 0 {
			logger.Debug("ffplay stderr", logger.String("output", stderr.String()))
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if p.procGen != gen || !p.playing {
			// 被主动终止，状态已由终止方处理
			return
		}
		// 自然播完
		p.basePos = p.positionLocked()
		p.playing = false
		p.proc = nil
		p.emitLocked(EventEnded, p.basePos)
	}()

	return nil
}

// Play 从当前位置启动播放，已在播放时为空操作
func (p *FFplayPlayer) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.startProcLocked()
}

// Pause 终止子进程并冻结位置，未在播放时为空操作
func (p *FFplayPlayer) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.playing {
		return nil
	}
	p.basePos = p.positionLocked()
	p.playing = false
	p.stopProcLocked()
	p.emitLocked(EventPaused, p.basePos)
	return nil
}

// Seek 定位到绝对秒数，负值归零。播放中通过重启子进程生效，
// 超出末尾的位置会让子进程立即退出并触发 Ended。
func (p *FFplayPlayer) Seek(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if seconds < 0 {
		seconds = 0
	}

	wasPlaying := p.playing
	if wasPlaying {
		p.playing = false
		p.stopProcLocked()
		p.emitLocked(EventPaused, p.basePos)
	}
	p.basePos = seconds
	if wasPlaying {
		if err := p.startProcLocked(); err != nil {
			logger.Error("seek 后重启播放失败", logger.ErrorField(err))
		}
	}
}

// SetRate 设置倍速。播放中重启子进程以套用新的滤镜链。
func (p *FFplayPlayer) SetRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rate == p.rate {
		return
	}

	wasPlaying := p.playing
	if wasPlaying {
		p.basePos = p.positionLocked()
		p.playing = false
		p.stopProcLocked()
		p.emitLocked(EventPaused, p.basePos)
	}
	p.rate = rate
	if wasPlaying {
		if err := p.startProcLocked(); err != nil {
			logger.Error("调速后重启播放失败", logger.ErrorField(err))
		}
	}
}

// Close 终止播放并清理剪辑临时文件
func (p *FFplayPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.playing = false
	p.stopProcLocked()
	if p.clipPath != "" {
		_ = os.Remove(p.clipPath)
		p.clipPath = ""
	}
	p.closed = true
	close(p.events)
	return nil
}
