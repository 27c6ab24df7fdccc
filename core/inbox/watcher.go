package inbox

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"MemoFM/core/audio"
	"MemoFM/logger"
	"MemoFM/model"
	"MemoFM/repository"
)

// 支持导入的音频扩展名 → 存储格式
var supportedExts = map[string]string{
	".wav":  "wav",
	".mp3":  "mp3",
	".ogg":  "ogg",
	".webm": "webm",
	".m4a":  "m4a",
	".flac": "flac",
}

const (
	quietWindow  = 500 * time.Millisecond // 事件静默窗口，未过窗口视为仍在写入
	checkEvery   = 200 * time.Millisecond
	probeTimeout = 15 * time.Second
	storeTimeout = 10 * time.Second
)

// Watcher 监听导入目录：外部投递的音频文件落库成为录音，随后从目录移除
type Watcher struct {
	dir     string
	store   repository.RecordingRepository
	prober  audio.Prober
	onStore func() // 每次成功导入后的回调，用来触发会话刷新
	clock   func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewWatcher(dir string, store repository.RecordingRepository, prober audio.Prober, onStore func()) *Watcher {
	return &Watcher{
		dir:     dir,
		store:   store,
		prober:  prober,
		onStore: onStore,
		clock:   time.Now,
	}
}

// Start 先补扫目录里已有的文件，再开始监听新事件。
// 未配置导入目录时整个功能关闭。
func (w *Watcher) Start() error {
	if w.dir == "" {
		logger.Info("未配置导入目录，文件导入关闭")
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("创建导入目录失败: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("创建文件监听器失败: %w", err)
	}
	if err := watcher.Add(w.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("监听导入目录失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer watcher.Close()
		w.scanExisting(ctx)
		w.watch(ctx, watcher)
	}()
	return nil
}

// Stop 停止监听并等待在途导入结束
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

// scanExisting 导入启动前已经躺在目录里的文件
func (w *Watcher) scanExisting(ctx context.Context) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logger.Warn("扫描导入目录失败", logger.ErrorField(err))
		return
	}
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if entry.IsDir() {
			continue
		}
		w.importFile(ctx, filepath.Join(w.dir, entry.Name()))
	}
}

// watch 监听目录事件；文件要过静默窗口且大小稳定才视为写入完成
func (w *Watcher) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(checkEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if _, ok := supportedExts[strings.ToLower(filepath.Ext(event.Name))]; ok {
					pending[event.Name] = w.clock()
				}
			}

		case <-ticker.C:
			now := w.clock()
			for path, last := range pending {
				if now.Sub(last) < quietWindow {
					continue
				}
				if !w.isStable(path) {
					continue
				}
				delete(pending, path)
				w.importFile(ctx, path)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("文件监听错误", logger.ErrorField(err))
		}
	}
}

// isStable 两次采样大小一致才认为写入完成
func (w *Watcher) isStable(path string) bool {
	info1, err := os.Stat(path)
	if err != nil || info1.Size() == 0 {
		return false
	}

	time.Sleep(30 * time.Millisecond)

	info2, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info1.Size() == info2.Size()
}

// importFile 单个文件导入：读取、探测时长、落库、移除源文件。
// 任何一步失败只记录日志，源文件留在原地等下次启动重试。
func (w *Watcher) importFile(ctx context.Context, path string) {
	format, ok := supportedExts[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("读取导入文件失败", logger.String("path", path), logger.ErrorField(err))
		return
	}
	if len(data) == 0 {
		return
	}

	// 时长探测失败按未知处理
	duration := 0.0
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	if dur, err := w.prober.ProbeDuration(probeCtx, data, format); err != nil {
		logger.Warn("探测导入文件时长失败", logger.String("path", path), logger.ErrorField(err))
	} else {
		duration = dur
	}
	cancel()

	rec := &model.Recording{
		ID:        uuid.NewString(),
		Name:      strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Duration:  duration,
		Format:    format,
		CreatedAt: w.clock(),
		Data:      data,
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := w.store.Put(storeCtx, rec); err != nil {
		logger.Error("导入文件落库失败", logger.String("path", path), logger.ErrorField(err))
		return
	}

	// 落库成功后移除源文件，避免重复导入
	if err := os.Remove(path); err != nil {
		logger.Warn("移除已导入文件失败", logger.String("path", path), logger.ErrorField(err))
	}

	logger.Info("导入音频文件",
		logger.String("path", path),
		logger.String("id", rec.ID),
		logger.Float64("duration", duration))

	if w.onStore != nil {
		w.onStore()
	}
}
