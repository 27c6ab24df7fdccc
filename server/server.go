package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"MemoFM/config"
	"MemoFM/core/audio"
	"MemoFM/core/capture"
	"MemoFM/core/inbox"
	"MemoFM/core/player"
	"MemoFM/core/session"
	"MemoFM/logger"
	"MemoFM/repository"
)

// NewRouter 组装全部路由
func NewRouter(apiHandler *APIHandler, cfg *config.Config) *mux.Router {
	router := mux.NewRouter()

	// CORS 中间件
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	})

	// 会话状态
	router.HandleFunc("/api/state", apiHandler.StateHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/recordings", apiHandler.ListRecordingsHandler).Methods(http.MethodGet)

	// 采集控制
	router.HandleFunc("/api/record/start", apiHandler.StartRecordHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/record/stop", apiHandler.StopRecordHandler).Methods(http.MethodPost)

	// 播放控制
	router.HandleFunc("/api/player/toggle", apiHandler.TogglePlayHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/seek", apiHandler.SeekHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/rate", apiHandler.RateHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/skip", apiHandler.SkipHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/player/repeat", apiHandler.RepeatHandler).Methods(http.MethodPost)

	// 录音管理
	router.HandleFunc("/api/recordings/{id}/select", apiHandler.SelectRecordingHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/recordings/{id}/download", apiHandler.DownloadRecordingHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/recordings/{id}", apiHandler.RenameRecordingHandler).Methods(http.MethodPatch)
	router.HandleFunc("/api/recordings/{id}", apiHandler.DeleteRecordingHandler).Methods(http.MethodDelete)

	// 播放句柄与实时通道
	router.HandleFunc("/clips/{token}", apiHandler.ClipHandler).Methods(http.MethodGet)
	router.HandleFunc("/ws", apiHandler.WebSocketHandler)
	router.HandleFunc("/healthz", apiHandler.HealthHandler).Methods(http.MethodGet)

	// 前端静态资源
	router.PathPrefix("/").Handler(http.FileServer(http.Dir(cfg.WebAppDir)))

	return router
}

// Start 组装全部组件并启动 HTTP 服务，阻塞到收到退出信号
func Start() {
	cfg := config.Load()

	store, err := repository.NewRepository(cfg)
	if err != nil {
		logger.Fatal("初始化存储失败", logger.ErrorField(err))
	}
	defer store.Close()

	prober := audio.NewFFprobeProber(cfg.FFprobePath())
	device := capture.NewFFmpegDevice(cfg)

	pl, err := player.NewFFplayPlayer(cfg)
	if err != nil {
		logger.Fatal("初始化播放器失败", logger.ErrorField(err))
	}

	ctrl := session.New(store, device, pl, prober)
	hub := NewHub()
	go hub.Run()

	// 每次状态变化都推给全部 WebSocket 客户端
	ctrl.SetStateListener(func(st session.State) {
		hub.Broadcast(MsgTypeState, st)
	})
	go ctrl.Run()

	importer := inbox.NewWatcher(cfg.ImportDir, store, prober, ctrl.Refresh)
	if err := importer.Start(); err != nil {
		logger.Warn("导入目录监听启动失败", logger.ErrorField(err))
	}

	apiHandler := NewAPIHandler(ctrl, hub, cfg)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      NewRouter(apiHandler, cfg),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("HTTP 服务启动",
			logger.String("addr", cfg.HTTPAddr),
			logger.String("store", cfg.StoreDriver))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务启动失败", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("收到退出信号，开始关闭")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("HTTP 服务强制关闭", logger.ErrorField(err))
	}

	importer.Stop()
	ctrl.Stop()
	hub.Stop()
	logger.Info("服务已停止")
}
