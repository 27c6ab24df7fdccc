package session

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"MemoFM/core/capture"
	"MemoFM/core/player"
	"MemoFM/model"
	"MemoFM/repository"
)

var testBase = time.UnixMilli(1700000000000)

// sample 构造测试录音；负载内容就是 ID，探测假件按它区分录音。
// 时长默认用 2 对齐探测假件的默认返回值，免得被意外修正。
func sample(id, name string, duration float64, createdAt time.Time) *model.Recording {
	return &model.Recording{
		ID:        id,
		Name:      name,
		Duration:  duration,
		Format:    "wav",
		CreatedAt: createdAt,
		Data:      []byte(id),
	}
}

// fakeStore 内存存储，支持注入失败
type fakeStore struct {
	mu     sync.Mutex
	recs   map[string]*model.Recording
	putErr error
	remErr error
}

var _ repository.RecordingRepository = (*fakeStore)(nil)

func newFakeStore() *fakeStore {
	return &fakeStore{recs: make(map[string]*model.Recording)}
}

func (s *fakeStore) List(ctx context.Context) ([]*model.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Recording, 0, len(s.recs))
	for _, rec := range s.recs {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *fakeStore) Get(ctx context.Context, id string) (*model.Recording, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (s *fakeStore) Put(ctx context.Context, rec *model.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return s.putErr
	}
	cp := *rec
	s.recs[rec.ID] = &cp
	return nil
}

func (s *fakeStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remErr != nil {
		return s.remErr
	}
	delete(s.recs, id)
	return nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) stored(id string) *model.Recording {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[id]
	if !ok {
		return nil
	}
	cp := *rec
	return &cp
}

// drop 模拟存储侧在控制器之外丢失数据
func (s *fakeStore) drop(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.recs, id)
}

func (s *fakeStore) failPuts(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putErr = err
}

func (s *fakeStore) failRemoves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remErr = err
}

// fakeDevice 采集设备假件
type fakeDevice struct {
	mu        sync.Mutex
	recording bool
	clip      *capture.Clip
	starts    int
	closed    bool
}

var _ capture.Device = (*fakeDevice)(nil)

func (d *fakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.recording {
		return capture.ErrAlreadyRecording
	}
	d.recording = true
	d.starts++
	return nil
}

func (d *fakeDevice) Stop() (*capture.Clip, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.recording {
		return nil, nil
	}
	d.recording = false
	return d.clip, nil
}

func (d *fakeDevice) Recording() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recording
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) startCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.starts
}

func (d *fakeDevice) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// fakePlayer 播放器假件：Play/Pause 像真播放器一样回发事件，
// Ended 由测试主动触发
type fakePlayer struct {
	mu         sync.Mutex
	events     chan player.Event
	loads      []string
	playCalls  int
	pauseCalls int
	seeks      []float64
	rates      []float64
	position   float64
	playing    bool
	closed     bool
}

var _ player.Player = (*fakePlayer)(nil)

func newFakePlayer() *fakePlayer {
	return &fakePlayer{events: make(chan player.Event, 16)}
}

func (p *fakePlayer) Load(id string, data []byte, format string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads = append(p.loads, id)
	p.playing = false
	p.position = 0
	return nil
}

func (p *fakePlayer) Play() error {
	p.mu.Lock()
	p.playCalls++
	p.playing = true
	pos := p.position
	p.mu.Unlock()
	p.events <- player.Event{Kind: player.EventPlaying, Position: pos}
	return nil
}

func (p *fakePlayer) Pause() error {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return nil
	}
	p.pauseCalls++
	p.playing = false
	pos := p.position
	p.mu.Unlock()
	p.events <- player.Event{Kind: player.EventPaused, Position: pos}
	return nil
}

func (p *fakePlayer) Seek(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seeks = append(p.seeks, seconds)
	if seconds < 0 {
		seconds = 0
	}
	p.position = seconds
}

func (p *fakePlayer) SetRate(rate float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rates = append(p.rates, rate)
}

func (p *fakePlayer) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

func (p *fakePlayer) Events() <-chan player.Event { return p.events }

func (p *fakePlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.events)
	return nil
}

func (p *fakePlayer) emit(kind player.EventKind) {
	p.events <- player.Event{Kind: kind}
}

func (p *fakePlayer) emitEnded() {
	p.mu.Lock()
	p.playing = false
	pos := p.position
	p.mu.Unlock()
	p.events <- player.Event{Kind: player.EventEnded, Position: pos}
}

func (p *fakePlayer) setPosition(seconds float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = seconds
}

func (p *fakePlayer) loadedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.loads...)
}

func (p *fakePlayer) playCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playCalls
}

func (p *fakePlayer) pauseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pauseCalls
}

func (p *fakePlayer) seekList() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.seeks...)
}

func (p *fakePlayer) lastSeek() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.seeks) == 0 {
		return -1
	}
	return p.seeks[len(p.seeks)-1]
}

func (p *fakePlayer) lastRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.rates) == 0 {
		return 0
	}
	return p.rates[len(p.rates)-1]
}

func (p *fakePlayer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// fakeProber 探测假件：按负载内容返回配置的时长，可按录音阻塞
type fakeProber struct {
	mu    sync.Mutex
	dur   float64
	err   error
	durs  map[string]float64
	gates map[string]chan struct{}
	calls []string
}

func newFakeProber(defaultDur float64) *fakeProber {
	return &fakeProber{
		dur:   defaultDur,
		durs:  make(map[string]float64),
		gates: make(map[string]chan struct{}),
	}
}

func (p *fakeProber) ProbeDuration(ctx context.Context, data []byte, format string) (float64, error) {
	key := string(data)
	p.mu.Lock()
	gate := p.gates[key]
	dur, ok := p.durs[key]
	if !ok {
		dur = p.dur
	}
	err := p.err
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	p.mu.Lock()
	p.calls = append(p.calls, key)
	p.mu.Unlock()
	return dur, err
}

func (p *fakeProber) setDuration(key string, dur float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.durs[key] = dur
}

func (p *fakeProber) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func (p *fakeProber) block(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gates[key] = make(chan struct{})
}

func (p *fakeProber) release(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	close(p.gates[key])
}

func (p *fakeProber) completed() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

// stateLog 收集广播快照，验证中间状态
type stateLog struct {
	mu  sync.Mutex
	log []State
}

func (l *stateLog) add(st State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = append(l.log, st)
}

func (l *stateLog) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = nil
}

func (l *stateLog) all() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.log...)
}

type testEnv struct {
	store  *fakeStore
	device *fakeDevice
	player *fakePlayer
	prober *fakeProber
	states *stateLog
	ctrl   *Controller
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:  newFakeStore(),
		device: &fakeDevice{clip: &capture.Clip{Data: []byte("pcm"), Format: "wav", Duration: 2}},
		player: newFakePlayer(),
		prober: newFakeProber(2),
		states: &stateLog{},
	}
	env.ctrl = New(env.store, env.device, env.player, env.prober)
	env.ctrl.SetStateListener(env.states.add)
	go env.ctrl.Run()
	t.Cleanup(env.ctrl.Stop)
	return env
}

func (e *testEnv) seed(t *testing.T, recs ...*model.Recording) {
	t.Helper()
	for _, rec := range recs {
		require.NoError(t, e.store.Put(context.Background(), rec))
	}
	e.ctrl.Refresh()
	e.sync(t)
}

// sync 以一次快照读作为命令队列屏障
func (e *testEnv) sync(t *testing.T) State {
	t.Helper()
	return e.ctrl.StateSnapshot()
}
