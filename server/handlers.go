package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"MemoFM/config"
	"MemoFM/core/session"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	ctrl *session.Controller
	hub  *Hub
	cfg  *config.Config
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(ctrl *session.Controller, hub *Hub, cfg *config.Config) *APIHandler {
	return &APIHandler{ctrl: ctrl, hub: hub, cfg: cfg}
}

// clipContentTypes 各音频格式的 MIME 类型
var clipContentTypes = map[string]string{
	"wav":  "audio/wav",
	"mp3":  "audio/mpeg",
	"ogg":  "audio/ogg",
	"webm": "audio/webm",
	"m4a":  "audio/mp4",
	"flac": "audio/flac",
}

func clipContentType(format string) string {
	if ct, ok := clipContentTypes[format]; ok {
		return ct
	}
	return "application/octet-stream"
}

// writeState 指令处理完后统一回传最新快照。
// 快照读排在指令后面执行，拿到的一定是指令生效后的状态。
func (h *APIHandler) writeState(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.ctrl.StateSnapshot())
}

// StateHandler 返回完整会话快照
func (h *APIHandler) StateHandler(w http.ResponseWriter, r *http.Request) {
	h.writeState(w)
}

// ListRecordingsHandler 返回全部录音，新到旧
func (h *APIHandler) ListRecordingsHandler(w http.ResponseWriter, r *http.Request) {
	st := h.ctrl.StateSnapshot()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(st.Recordings)
}

// StartRecordHandler 开始采集
func (h *APIHandler) StartRecordHandler(w http.ResponseWriter, r *http.Request) {
	h.ctrl.StartCapture()
	h.writeState(w)
}

// StopRecordHandler 结束采集并保存录音
func (h *APIHandler) StopRecordHandler(w http.ResponseWriter, r *http.Request) {
	h.ctrl.StopCapture()
	h.writeState(w)
}

// TogglePlayHandler 播放/暂停切换
func (h *APIHandler) TogglePlayHandler(w http.ResponseWriter, r *http.Request) {
	h.ctrl.TogglePlay()
	h.writeState(w)
}

// SeekHandler 进度条比例定位，比例映射到有效时长
func (h *APIHandler) SeekHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Fraction float64 `json:"fraction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.ctrl.SeekFraction(req.Fraction)
	h.writeState(w)
}

// RateHandler 绝对设定或步进调整倍速
func (h *APIHandler) RateHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rate float64 `json:"rate"`
		Step string  `json:"step"` // up / down
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch {
	case req.Step == "up":
		h.ctrl.RateUp()
	case req.Step == "down":
		h.ctrl.RateDown()
	case req.Rate > 0:
		h.ctrl.SetRate(req.Rate)
	default:
		http.Error(w, "rate or step required", http.StatusBadRequest)
		return
	}
	h.writeState(w)
}

// SkipHandler 按固定步长快进/快退
func (h *APIHandler) SkipHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction string `json:"direction"` // forward / back
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	switch req.Direction {
	case "forward":
		h.ctrl.SkipForward()
	case "back":
		h.ctrl.SkipBackward()
	default:
		http.Error(w, "direction must be forward or back", http.StatusBadRequest)
		return
	}
	h.writeState(w)
}

// RepeatHandler 切换单曲循环
func (h *APIHandler) RepeatHandler(w http.ResponseWriter, r *http.Request) {
	h.ctrl.ToggleRepeat()
	h.writeState(w)
}

// SelectRecordingHandler 切换当前录音
func (h *APIHandler) SelectRecordingHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if h.ctrl.RecordingByID(id) == nil {
		http.Error(w, "recording not found", http.StatusNotFound)
		return
	}
	h.ctrl.Select(id)
	h.writeState(w)
}

// RenameRecordingHandler 重命名录音，其余字段不动
func (h *APIHandler) RenameRecordingHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		http.Error(w, "name must not be empty", http.StatusBadRequest)
		return
	}
	if h.ctrl.RecordingByID(id) == nil {
		http.Error(w, "recording not found", http.StatusNotFound)
		return
	}

	h.ctrl.Rename(id, req.Name)
	h.writeState(w)
}

// DeleteRecordingHandler 删除录音
func (h *APIHandler) DeleteRecordingHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if h.ctrl.RecordingByID(id) == nil {
		http.Error(w, "recording not found", http.StatusNotFound)
		return
	}
	h.ctrl.Delete(id)
	h.writeState(w)
}

// DownloadRecordingHandler 以附件形式导出录音
func (h *APIHandler) DownloadRecordingHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec := h.ctrl.RecordingByID(id)
	if rec == nil {
		http.Error(w, "recording not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", clipContentType(rec.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.ExportName()))
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.Data)))
	w.Write(rec.Data)
}

// ClipHandler 按播放句柄提供音频负载；失效句柄返回 404
func (h *APIHandler) ClipHandler(w http.ResponseWriter, r *http.Request) {
	token := mux.Vars(r)["token"]
	rec := h.ctrl.RecordingByToken(token)
	if rec == nil {
		http.Error(w, "clip not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", clipContentType(rec.Format))
	w.Header().Set("Content-Length", strconv.Itoa(len(rec.Data)))
	// 句柄一次加载一换，禁止缓存
	w.Header().Set("Cache-Control", "no-store")
	w.Write(rec.Data)
}

// HealthHandler 健康检查
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
