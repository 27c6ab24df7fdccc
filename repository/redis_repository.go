package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"MemoFM/config"
	"MemoFM/logger"
	"MemoFM/model"
)

// redisRecordingRepository Redis 实现，录音信封以 JSON 存在带前缀的键下
type redisRecordingRepository struct {
	client *redis.Client
}

var _ RecordingRepository = (*redisRecordingRepository)(nil)

// NewRedisRepository 建立 Redis 连接并验证可用性
func NewRedisRepository(cfg *config.Config) (RecordingRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisRecordingRepository{client: client}, nil
}

// newRedisRepositoryWithClient 供测试注入已有客户端
func newRedisRepositoryWithClient(client *redis.Client) RecordingRepository {
	return &redisRecordingRepository{client: client}
}

func (r *redisRecordingRepository) List(ctx context.Context) ([]*model.Recording, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, recordingKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan recordings: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read recordings: %w", err)
	}

	recs := make([]*model.Recording, 0, len(vals))
	for i, val := range vals {
		if val == nil {
			// 扫描和读取之间被删除
			continue
		}
		s, ok := val.(string)
		if !ok {
			continue
		}
		rec, err := decodeRecording([]byte(s))
		if err != nil {
			logger.Warn("跳过无法解析的录音记录",
				logger.String("key", keys[i]),
				logger.ErrorField(err))
			continue
		}
		recs = append(recs, rec)
	}

	sortNewestFirst(recs)
	return recs, nil
}

func (r *redisRecordingRepository) Get(ctx context.Context, id string) (*model.Recording, error) {
	raw, err := r.client.Get(ctx, recordingKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recording %s: %w", id, err)
	}
	return decodeRecording(raw)
}

func (r *redisRecordingRepository) Put(ctx context.Context, rec *model.Recording) error {
	raw, err := encodeRecording(rec)
	if err != nil {
		return err
	}
	// 录音是持久数据，不设置过期时间
	if err := r.client.Set(ctx, recordingKey(rec.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to put recording %s: %w", rec.ID, err)
	}
	return nil
}

func (r *redisRecordingRepository) Remove(ctx context.Context, id string) error {
	if err := r.client.Del(ctx, recordingKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove recording %s: %w", id, err)
	}
	return nil
}

func (r *redisRecordingRepository) Close() error {
	return r.client.Close()
}
