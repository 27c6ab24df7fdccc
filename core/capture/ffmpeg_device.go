package capture

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"MemoFM/config"
	"MemoFM/logger"
)

// FFmpegDevice 通过 ffmpeg 子进程从系统麦克风采集 16-bit PCM
type FFmpegDevice struct {
	ffmpegPath  string
	inputFormat string
	device      string
	sampleRate  int
	channels    int

	clock func() time.Time

	mu         sync.Mutex
	cmd        *exec.Cmd
	pcm        *bytes.Buffer
	readerDone chan struct{}
	startedAt  time.Time
}

var _ Device = (*FFmpegDevice)(nil)

func NewFFmpegDevice(cfg *config.Config) *FFmpegDevice {
	return &FFmpegDevice{
		ffmpegPath:  cfg.FFmpegPath,
		inputFormat: cfg.CaptureFormat,
		device:      cfg.CaptureDevice,
		sampleRate:  cfg.CaptureSampleRate,
		channels:    cfg.CaptureChannels,
		clock:       time.Now,
	}
}

// buildCaptureArgs 组装 ffmpeg 参数：设备输入，裸 PCM 输出到标准输出
func (d *FFmpegDevice) buildCaptureArgs() []string {
	return []string{
		"-v", "error",
		"-f", d.inputFormat,
		"-i", d.device,
		"-ac", strconv.Itoa(d.channels),
		"-ar", strconv.Itoa(d.sampleRate),
		"-f", "s16le",
		"pipe:1",
	}
}

func (d *FFmpegDevice) Recording() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cmd != nil
}

// Start 启动采集子进程。设备被占用或不存在时返回错误，状态保持不变。
func (d *FFmpegDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd != nil {
		return ErrAlreadyRecording
	}

	cmd := exec.Command(d.ffmpegPath, d.buildCaptureArgs()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start capture process: %w", err)
	}

	buf := &bytes.Buffer{}
	done := make(chan struct{})

	// 采集期间只有这个 goroutine 写缓冲区，Stop 等它结束后才读
	go func() {
		defer close(done)
		if _, err := io.Copy(buf, stdout); err != nil {
			logger.Debug("capture pipe closed", logger.ErrorField(err))
		}
		if stderr.Len() > 0 {
			logger.Debug("ffmpeg capture stderr", logger.String("output", stderr.String()))
		}
	}()

	d.cmd = cmd
	d.pcm = buf
	d.readerDone = done
	d.startedAt = d.clock()

	logger.Info("开始录音",
		logger.String("inputFormat", d.inputFormat),
		logger.String("device", d.device),
		logger.Int("sampleRate", d.sampleRate),
		logger.Int("channels", d.channels))
	return nil
}

// Stop 结束采集并把缓冲的 PCM 封装成 WAV。未在采集时为幂等空操作。
func (d *FFmpegDevice) Stop() (*Clip, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cmd == nil {
		return nil, nil
	}

	elapsed := d.clock().Sub(d.startedAt).Seconds()

	// 杀掉子进程让管道走到 EOF，等读取 goroutine 收尾后缓冲区才归这里所有
	_ = d.cmd.Process.Kill()
	<-d.readerDone
	_ = d.cmd.Wait()

	pcm := d.pcm.Bytes()
	clip := &Clip{
		Data:     EncodeWAV(pcm, d.sampleRate, d.channels),
		Format:   "wav",
		Duration: elapsed,
	}

	d.cmd = nil
	d.pcm = nil
	d.readerDone = nil

	logger.Info("录音结束",
		logger.Float64("durationSec", elapsed),
		logger.Int("pcmBytes", len(pcm)))
	return clip, nil
}

// Close 释放麦克风，终止可能还在跑的采集进程
func (d *FFmpegDevice) Close() error {
	_, err := d.Stop()
	return err
}
