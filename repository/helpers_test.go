package repository

import (
	"time"

	"MemoFM/model"
)

// 存储信封以毫秒精度保存时间戳，测试里统一用毫秒构造
var testBase = time.UnixMilli(1700000000000)

func sampleRecording(id, name string, createdAt time.Time) *model.Recording {
	return &model.Recording{
		ID:        id,
		Name:      name,
		Duration:  3.5,
		Format:    "wav",
		CreatedAt: createdAt,
		Data:      []byte("pcm-bytes-" + id),
	}
}
