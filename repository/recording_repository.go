package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"MemoFM/model"
)

// 所有后端共用的键前缀，保证与同一存储里的其他应用数据隔离
const recordingKeyPrefix = "memofm:clip:"

// RecordingRepository 录音数据访问接口
// List 按创建时间倒序返回全部录音，Get 未命中时返回 (nil, nil)。
type RecordingRepository interface {
	List(ctx context.Context) ([]*model.Recording, error)
	Get(ctx context.Context, id string) (*model.Recording, error)
	Put(ctx context.Context, rec *model.Recording) error
	Remove(ctx context.Context, id string) error
	Close() error
}

func recordingKey(id string) string {
	return recordingKeyPrefix + id
}

// storedRecording 是写入存储的信封结构。
// ClipURL 是进程内的临时句柄，永远不落盘。
type storedRecording struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Duration  float64 `json:"duration"`
	Format    string  `json:"format"`
	CreatedAt int64   `json:"createdAt"` // Unix 毫秒
	Data      []byte  `json:"data"`
}

func encodeRecording(rec *model.Recording) ([]byte, error) {
	env := storedRecording{
		ID:        rec.ID,
		Name:      rec.Name,
		Duration:  rec.Duration,
		Format:    rec.Format,
		CreatedAt: rec.CreatedAt.UnixMilli(),
		Data:      rec.Data,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode recording %s: %w", rec.ID, err)
	}
	return raw, nil
}

func decodeRecording(raw []byte) (*model.Recording, error) {
	var env storedRecording
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode recording: %w", err)
	}
	return &model.Recording{
		ID:        env.ID,
		Name:      env.Name,
		Duration:  env.Duration,
		Format:    env.Format,
		CreatedAt: time.UnixMilli(env.CreatedAt),
		Data:      env.Data,
	}, nil
}

// sortNewestFirst 按创建时间倒序排列，时间相同时按ID保证稳定输出
func sortNewestFirst(recs []*model.Recording) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].CreatedAt.Equal(recs[j].CreatedAt) {
			return recs[i].CreatedAt.After(recs[j].CreatedAt)
		}
		return recs[i].ID < recs[j].ID
	})
}
