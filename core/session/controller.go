package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"MemoFM/core/audio"
	"MemoFM/core/capture"
	"MemoFM/core/player"
	"MemoFM/logger"
	"MemoFM/model"
	"MemoFM/repository"
)

const (
	minRate       = 0.4
	maxRate       = 4.0
	rateStep      = 0.25
	skipStep      = 15.0 // 秒
	pauseDebounce = 75 * time.Millisecond
	durationSlack = 1.0 // 秒；解码时长与存储值相差超过此值才回写
	probeTimeout  = 15 * time.Second
	storeTimeout  = 10 * time.Second
)

// Controller 录音会话控制器。
// 全部可变状态由 Run 的单个 goroutine 持有；HTTP、WebSocket、定时器、
// 探测结果和播放器事件都只通过命令通道或事件通道进入主循环。
type Controller struct {
	store  repository.RecordingRepository
	device capture.Device
	player player.Player
	prober audio.Prober

	handles *HandleRegistry
	clock   func() time.Time

	commands chan func()
	done     chan struct{}
	finished chan struct{}
	stopOnce sync.Once

	onState func(State)

	// 以下字段仅主循环访问
	recordings        []*model.Recording
	currentID         string
	playingRaw        bool // 播放器的即时状态，驱动切换逻辑
	playingVisible    bool // 去抖后的可见状态，进快照
	rate              float64
	repeat            bool
	capturing         bool
	storedDur         float64
	probedDur         float64
	selectSeq         int
	probePending      bool
	playPending       bool
	playedSinceSelect bool
	pauseSeq          int
}

// New 组装控制器
func New(store repository.RecordingRepository, device capture.Device, pl player.Player, prober audio.Prober) *Controller {
	return &Controller{
		store:    store,
		device:   device,
		player:   pl,
		prober:   prober,
		handles:  NewHandleRegistry(),
		clock:    time.Now,
		commands: make(chan func(), 64),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		rate:     1.0,
	}
}

// SetStateListener 注册状态快照回调（WebSocket 广播用），须在 Run 之前设置
func (c *Controller) SetStateListener(fn func(State)) {
	c.onState = fn
}

// Run 启动主循环：先从存储重建列表，然后阻塞处理命令直到 Stop
func (c *Controller) Run() {
	defer close(c.finished)

	c.refresh()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	events := c.player.Events()
	for {
		select {
		case fn := <-c.commands:
			fn()

		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			c.handlePlayerEvent(ev)

		case <-ticker.C:
			// 播放中周期性推送位置
			if c.playingVisible {
				c.broadcast()
			}

		case <-c.done:
			c.cleanup()
			return
		}
	}
}

// Stop 停止主循环并等待资源释放完成
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	<-c.finished
}

// cleanup 释放采集设备与播放器，作废全部句柄
func (c *Controller) cleanup() {
	if err := c.device.Close(); err != nil {
		logger.Warn("释放采集设备失败", logger.ErrorField(err))
	}
	if err := c.player.Close(); err != nil {
		logger.Warn("关闭播放器失败", logger.ErrorField(err))
	}
	c.handles.RevokeAll()
}

// enqueue 把操作投递进主循环；控制器停止后投递被丢弃
func (c *Controller) enqueue(fn func()) {
	select {
	case c.commands <- fn:
	case <-c.done:
	}
}

// ===== 对外入口（线程安全） =====

// StateSnapshot 返回当前会话快照
func (c *Controller) StateSnapshot() State {
	reply := make(chan State, 1)
	c.enqueue(func() { reply <- c.snapshot() })
	select {
	case st := <-reply:
		return st
	case <-c.done:
		return State{}
	}
}

// RecordingByID 返回带负载的录音副本，不存在时为 nil
func (c *Controller) RecordingByID(id string) *model.Recording {
	reply := make(chan *model.Recording, 1)
	c.enqueue(func() { reply <- cloneRecording(c.findRecording(id)) })
	select {
	case rec := <-reply:
		return rec
	case <-c.done:
		return nil
	}
}

// RecordingByToken 按播放句柄 token 取录音，句柄失效时为 nil
func (c *Controller) RecordingByToken(token string) *model.Recording {
	id, ok := c.handles.Resolve(token)
	if !ok {
		return nil
	}
	return c.RecordingByID(id)
}

func (c *Controller) StartCapture() { c.enqueue(c.startCapture) }

func (c *Controller) StopCapture() { c.enqueue(c.stopCapture) }

func (c *Controller) Select(id string) { c.enqueue(func() { c.selectRecording(id) }) }

func (c *Controller) TogglePlay() { c.enqueue(c.togglePlay) }

func (c *Controller) ToggleRepeat() { c.enqueue(c.toggleRepeat) }

func (c *Controller) SeekFraction(f float64) { c.enqueue(func() { c.seekFraction(f) }) }

func (c *Controller) SetRate(r float64) { c.enqueue(func() { c.setRate(r) }) }

func (c *Controller) RateUp() { c.enqueue(func() { c.setRate(c.rate + rateStep) }) }

func (c *Controller) RateDown() { c.enqueue(func() { c.setRate(c.rate - rateStep) }) }

func (c *Controller) SkipForward() { c.enqueue(func() { c.skip(skipStep) }) }

func (c *Controller) SkipBackward() { c.enqueue(func() { c.skip(-skipStep) }) }

func (c *Controller) Rename(id, name string) { c.enqueue(func() { c.rename(id, name) }) }

func (c *Controller) Delete(id string) { c.enqueue(func() { c.deleteRecording(id) }) }

func (c *Controller) Refresh() { c.enqueue(c.refresh) }

// ===== 主循环内部 =====

func (c *Controller) findRecording(id string) *model.Recording {
	for _, rec := range c.recordings {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

func cloneRecording(rec *model.Recording) *model.Recording {
	if rec == nil {
		return nil
	}
	cp := *rec
	return &cp
}

// effectiveDuration 解码时长可用时优先，否则用存储估算
func (c *Controller) effectiveDuration() float64 {
	if c.probedDur > 0 && !math.IsInf(c.probedDur, 0) {
		return c.probedDur
	}
	return c.storedDur
}

func (c *Controller) snapshot() State {
	recs := make([]*model.Recording, 0, len(c.recordings))
	for _, rec := range c.recordings {
		cp := *rec
		cp.Data = nil // 快照不携带负载
		recs = append(recs, &cp)
	}

	var pos float64
	if c.currentID != "" {
		pos = c.player.Position()
	}

	return State{
		Recordings: recs,
		Playback: PlaybackState{
			CurrentID: c.currentID,
			Playing:   c.playingVisible,
			Position:  pos,
			Duration:  c.effectiveDuration(),
			Rate:      c.rate,
			Repeat:    c.repeat,
			Capturing: c.capturing,
		},
	}
}

func (c *Controller) broadcast() {
	if c.onState != nil {
		c.onState(c.snapshot())
	}
}

// refresh 从存储重建内存列表并重铸全部句柄
func (c *Controller) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	recs, err := c.store.List(ctx)
	if err != nil {
		logger.Error("读取录音列表失败", logger.ErrorField(err))
		return
	}

	c.handles.RevokeAll()
	for _, rec := range recs {
		rec.ClipURL = c.handles.Mint(rec.ID)
	}
	c.recordings = recs

	if c.currentID != "" && c.findRecording(c.currentID) == nil {
		// 当前录音在存储侧消失，视同删除：顺延到最新一条
		if len(c.recordings) > 0 {
			c.selectRecording(c.recordings[0].ID)
		} else {
			c.clearPlayback()
		}
		return
	}
	c.broadcast()
}

// startCapture 请求麦克风开始采集；失败只记录，状态不变
func (c *Controller) startCapture() {
	if err := c.device.Start(); err != nil {
		if errors.Is(err, capture.ErrAlreadyRecording) {
			// 采集进行中再按录音键：有意的静默忽略
			logger.Debug("采集已在进行，忽略重复启动")
		} else {
			logger.Error("无法开始采集", logger.ErrorField(err))
		}
		return
	}
	c.capturing = true
	c.broadcast()
}

// stopCapture 结束采集：先落库，成功后进内存列表并成为当前录音
func (c *Controller) stopCapture() {
	clip, err := c.device.Stop()
	if err != nil {
		logger.Error("结束采集失败", logger.ErrorField(err))
		c.capturing = false
		c.broadcast()
		return
	}
	if clip == nil {
		// 本来就没在采集
		c.capturing = false
		return
	}
	c.capturing = false

	rec := &model.Recording{
		ID:        uuid.NewString(),
		Name:      fmt.Sprintf("Recording %d", len(c.recordings)+1),
		Duration:  clip.Duration,
		Format:    clip.Format,
		CreatedAt: c.clock(),
		Data:      clip.Data,
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.store.Put(ctx, rec); err != nil {
		logger.Error("保存录音失败", logger.String("id", rec.ID), logger.ErrorField(err))
		c.broadcast()
		return
	}

	rec.ClipURL = c.handles.Mint(rec.ID)
	c.recordings = append([]*model.Recording{rec}, c.recordings...)
	c.selectRecording(rec.ID)
}

// selectRecording 使指定录音成为当前录音：载入播放器、套用当前倍速、
// 先乐观显示存储时长，再异步等待解码时长
func (c *Controller) selectRecording(id string) {
	rec := c.findRecording(id)
	if rec == nil {
		logger.Warn("选择了不存在的录音", logger.String("id", id))
		return
	}

	c.currentID = rec.ID
	c.storedDur = rec.Duration
	c.probedDur = 0
	c.playingRaw = false
	c.playingVisible = false
	c.playPending = false
	c.playedSinceSelect = false
	c.pauseSeq++ // 作废挂起的暂停去抖

	c.selectSeq++
	c.probePending = true
	seq := c.selectSeq

	if err := c.player.Load(rec.ID, rec.Data, rec.Format); err != nil {
		logger.Error("载入播放器失败", logger.String("id", rec.ID), logger.ErrorField(err))
	}
	c.player.SetRate(c.rate)

	go c.probeDuration(seq, cloneRecording(rec))

	c.broadcast()
}

// probeDuration 一次性元数据探测，结果带着选择代数回到主循环
func (c *Controller) probeDuration(seq int, rec *model.Recording) {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	dur, err := c.prober.ProbeDuration(ctx, rec.Data, rec.Format)
	c.enqueue(func() { c.applyProbe(seq, rec.ID, dur, err) })
}

// applyProbe 只在选择代数仍匹配时生效，过期结果直接丢弃
func (c *Controller) applyProbe(seq int, id string, dur float64, err error) {
	if seq != c.selectSeq {
		return
	}
	c.probePending = false

	if err != nil {
		// 拿不到解码时长就沿用存储估算
		logger.Warn("探测解码时长失败", logger.String("id", id), logger.ErrorField(err))
	} else {
		c.probedDur = dur
		if rec := c.findRecording(id); rec != nil && math.Abs(dur-rec.Duration) > durationSlack {
			rec.Duration = dur
			c.storedDur = dur
			go c.persistDuration(cloneRecording(rec))
		}
	}

	if c.playPending {
		c.playPending = false
		c.startPlayback()
	}
	c.broadcast()
}

// persistDuration 回写修正后的时长；失败只记录，内存保留解码值
func (c *Controller) persistDuration(rec *model.Recording) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := c.store.Put(ctx, rec); err != nil {
		logger.Warn("回写解码时长失败", logger.String("id", rec.ID), logger.ErrorField(err))
	}
}

// togglePlay 在播放与暂停之间切换；没有当前录音时为空操作
func (c *Controller) togglePlay() {
	if c.currentID == "" {
		return
	}

	if c.playingRaw {
		if err := c.player.Pause(); err != nil {
			logger.Warn("暂停失败", logger.ErrorField(err))
		}
		return
	}

	// 元数据未回来且本次选择还没播过：挂起请求，探测完成后自动开播
	if c.probePending && !c.playedSinceSelect {
		c.playPending = !c.playPending
		return
	}
	c.startPlayback()
}

// startPlayback 发出播放指令，可见状态由播放器事件驱动
func (c *Controller) startPlayback() {
	c.playedSinceSelect = true
	if err := c.player.Play(); err != nil {
		logger.Error("播放失败", logger.ErrorField(err))
	}
}

// seekFraction 把进度条比例 [0,1] 映射到有效时长上
func (c *Controller) seekFraction(fraction float64) {
	if c.currentID == "" {
		return
	}
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}
	c.player.Seek(fraction * c.effectiveDuration())
	c.broadcast()
}

// skip 相对当前位置快进/快退；短暂越界交给播放元素收口
func (c *Controller) skip(seconds float64) {
	if c.currentID == "" {
		return
	}
	c.player.Seek(c.player.Position() + seconds)
	c.broadcast()
}

// setRate 设定倍速并夹取到允许区间，立即对播放器生效
func (c *Controller) setRate(rate float64) {
	if rate < minRate {
		rate = minRate
	} else if rate > maxRate {
		rate = maxRate
	}
	c.rate = rate
	c.player.SetRate(rate)
	c.broadcast()
}

func (c *Controller) toggleRepeat() {
	c.repeat = !c.repeat
	c.broadcast()
}

// rename 只改显示名，其余字段不动；存储失败只记录，内存保留新名字
func (c *Controller) rename(id, name string) {
	rec := c.findRecording(id)
	if rec == nil {
		logger.Warn("重命名不存在的录音", logger.String("id", id))
		return
	}

	rec.Name = name

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.store.Put(ctx, rec); err != nil {
		logger.Error("保存重命名失败", logger.String("id", id), logger.ErrorField(err))
	}
	c.broadcast()
}

// deleteRecording 删除录音；删除的是当前录音时顺延到列表中的下一条，
// 没有下一条则清空播放状态
func (c *Controller) deleteRecording(id string) {
	idx := -1
	for i, rec := range c.recordings {
		if rec.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		logger.Warn("删除不存在的录音", logger.String("id", id))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := c.store.Remove(ctx, id); err != nil {
		// 存储失败不动内存
		logger.Error("删除录音失败", logger.String("id", id), logger.ErrorField(err))
		return
	}

	c.handles.Revoke(id)
	c.recordings = append(c.recordings[:idx], c.recordings[idx+1:]...)

	if c.currentID != id {
		c.broadcast()
		return
	}
	if idx < len(c.recordings) {
		c.selectRecording(c.recordings[idx].ID)
	} else {
		c.clearPlayback()
	}
}

// clearPlayback 回到没有当前录音的静止状态
func (c *Controller) clearPlayback() {
	c.currentID = ""
	c.playingRaw = false
	c.playingVisible = false
	c.playPending = false
	c.probePending = false
	c.playedSinceSelect = false
	c.storedDur = 0
	c.probedDur = 0
	c.selectSeq++ // 在途探测一律过期
	c.pauseSeq++
	if err := c.player.Pause(); err != nil {
		logger.Debug("清空播放状态时暂停失败", logger.ErrorField(err))
	}
	c.broadcast()
}

// handlePlayerEvent 把播放器事件折叠进可见状态；暂停要等过去抖窗口
func (c *Controller) handlePlayerEvent(ev player.Event) {
	switch ev.Kind {
	case player.EventPlaying:
		c.playingRaw = true
		c.pauseSeq++ // 抵消窗口内的暂停抖动
		if !c.playingVisible {
			c.playingVisible = true
			c.broadcast()
		}

	case player.EventPaused:
		c.playingRaw = false
		c.pauseSeq++
		seq := c.pauseSeq
		time.AfterFunc(pauseDebounce, func() {
			c.enqueue(func() { c.applyPendingPause(seq) })
		})

	case player.EventEnded:
		c.playingRaw = false
		c.playingVisible = false
		c.pauseSeq++
		if c.repeat && c.currentID != "" {
			// 循环播放：回到开头重新开始
			c.player.Seek(0)
			c.startPlayback()
		}
		c.broadcast()
	}
}

// applyPendingPause 去抖窗口结束仍未被新的播放事件抵消时才落地
func (c *Controller) applyPendingPause(seq int) {
	if seq != c.pauseSeq {
		return
	}
	if c.playingVisible {
		c.playingVisible = false
		c.broadcast()
	}
}
