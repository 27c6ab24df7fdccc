package player

import (
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"MemoFM/config"
)

func testPlayer(t *testing.T) *FFplayPlayer {
	t.Helper()

	p, err := NewFFplayPlayer(&config.Config{
		DataDir:    t.TempDir(),
		FFmpegPath: "ffmpeg",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func waitEvent(t *testing.T, p *FFplayPlayer, d time.Duration) Event {
	t.Helper()
	select {
	case ev := <-p.Events():
		return ev
	case <-time.After(d):
		t.Fatal("timed out waiting for player event")
		return Event{}
	}
}

func TestBuildAtempoChain(t *testing.T) {
	cases := []struct {
		rate float64
		want string
	}{
		{1.0, ""},
		{1.5, "atempo=1.5"},
		{2.0, "atempo=2"},
		{3.0, "atempo=2,atempo=1.5"},
		{4.0, "atempo=2,atempo=2"},
		{0.5, "atempo=0.5"},
		{0.4, "atempo=0.5,atempo=0.8"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, buildAtempoChain(c.rate), "rate %v", c.rate)
	}
}

func TestBuildPlayArgs(t *testing.T) {
	assert.Equal(t, []string{
		"-nodisp", "-autoexit", "-v", "error",
		"-ss", "12.500",
		"/tmp/clip.wav",
	}, buildPlayArgs("/tmp/clip.wav", 12.5, 1.0))

	assert.Equal(t, []string{
		"-nodisp", "-autoexit", "-v", "error",
		"-ss", "0.000",
		"-af", "atempo=2",
		"/tmp/clip.wav",
	}, buildPlayArgs("/tmp/clip.wav", 0, 2.0))
}

func TestPositionIntegratesRate(t *testing.T) {
	p := testPlayer(t)

	now := time.Unix(100, 0)
	p.clock = func() time.Time { return now }
	p.basePos = 10
	p.playing = true
	p.playStart = now
	p.rate = 2.0

	now = now.Add(3 * time.Second)
	assert.InDelta(t, 16.0, p.Position(), 1e-9)

	p.playing = false
	assert.InDelta(t, 10.0, p.Position(), 1e-9)
}

func TestSeekWhilePaused(t *testing.T) {
	p := testPlayer(t)

	p.Seek(7.25)
	assert.InDelta(t, 7.25, p.Position(), 1e-9)

	// 负值归零
	p.Seek(-5)
	assert.InDelta(t, 0.0, p.Position(), 1e-9)

	// 暂停状态下 seek 不产生事件
	assert.Empty(t, p.events)
}

func TestLoadWritesAndReplacesClipFile(t *testing.T) {
	p := testPlayer(t)

	require.NoError(t, p.Load("rec-1", []byte("first"), "wav"))
	firstPath := p.clipPath
	data, err := os.ReadFile(firstPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), data)

	p.basePos = 30 // 模拟播放到中段

	require.NoError(t, p.Load("rec-2", []byte("second"), "wav"))
	assert.InDelta(t, 0.0, p.Position(), 1e-9, "load resets position")

	_, err = os.Stat(firstPath)
	assert.True(t, os.IsNotExist(err), "previous clip file removed")
}

func TestPlayWithoutClipFails(t *testing.T) {
	p := testPlayer(t)

	err := p.Play()
	require.Error(t, err)
}

func TestPauseWhenIdleIsNoOp(t *testing.T) {
	p := testPlayer(t)

	require.NoError(t, p.Pause())
	assert.Empty(t, p.events)
}

func TestPlayEmitsPlayingThenEnded(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("stub binary not available on windows")
	}

	p := testPlayer(t)
	// 用立即退出的系统命令顶替 ffplay，走完自然播完路径
	p.ffplayPath = "sleep"

	require.NoError(t, p.Load("rec-1", []byte("payload"), "wav"))
	require.NoError(t, p.Play())

	ev := waitEvent(t, p, 2*time.Second)
	assert.Equal(t, EventPlaying, ev.Kind)

	ev = waitEvent(t, p, 2*time.Second)
	assert.Equal(t, EventEnded, ev.Kind)

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.False(t, p.playing)
}
