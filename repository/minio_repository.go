package repository

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"MemoFM/config"
	"MemoFM/logger"
	"MemoFM/model"
)

// minioRecordingRepository 对象存储实现，每条录音对应一个对象
type minioRecordingRepository struct {
	client *minio.Client
	bucket string
}

var _ RecordingRepository = (*minioRecordingRepository)(nil)

const minioObjectPrefix = "clips/"

func minioObjectName(id string) string {
	return minioObjectPrefix + id + ".json"
}

// NewMinioRepository 初始化 MinIO 客户端并确保存储桶存在
func NewMinioRepository(cfg *config.Config) (RecordingRepository, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
		Region: cfg.MinioRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("创建 MinIO 客户端失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// 检查存储桶是否存在，不存在则创建
	exists, err := client.BucketExists(ctx, cfg.MinioBucket)
	if err != nil {
		return nil, fmt.Errorf("检查存储桶失败: %w", err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.MinioBucket, minio.MakeBucketOptions{
			Region: cfg.MinioRegion,
		})
		if err != nil {
			return nil, fmt.Errorf("创建存储桶失败: %w", err)
		}
		logger.Info("成功创建存储桶", logger.String("bucket", cfg.MinioBucket))
	}

	return &minioRecordingRepository{client: client, bucket: cfg.MinioBucket}, nil
}

func (r *minioRecordingRepository) List(ctx context.Context) ([]*model.Recording, error) {
	var recs []*model.Recording

	objCh := r.client.ListObjects(ctx, r.bucket, minio.ListObjectsOptions{
		Prefix:    minioObjectPrefix,
		Recursive: true,
	})
	for obj := range objCh {
		if obj.Err != nil {
			return nil, fmt.Errorf("failed to list recordings: %w", obj.Err)
		}
		raw, err := r.readObject(ctx, obj.Key)
		if err != nil {
			logger.Warn("跳过无法读取的录音对象",
				logger.String("object", obj.Key),
				logger.ErrorField(err))
			continue
		}
		rec, err := decodeRecording(raw)
		if err != nil {
			logger.Warn("跳过无法解析的录音对象",
				logger.String("object", obj.Key),
				logger.ErrorField(err))
			continue
		}
		recs = append(recs, rec)
	}

	sortNewestFirst(recs)
	return recs, nil
}

func (r *minioRecordingRepository) readObject(ctx context.Context, name string) ([]byte, error) {
	obj, err := r.client.GetObject(ctx, r.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (r *minioRecordingRepository) Get(ctx context.Context, id string) (*model.Recording, error) {
	raw, err := r.readObject(ctx, minioObjectName(id))
	if err != nil {
		// 对象不存在时读取才会报错
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get recording %s: %w", id, err)
	}
	return decodeRecording(raw)
}

func (r *minioRecordingRepository) Put(ctx context.Context, rec *model.Recording) error {
	raw, err := encodeRecording(rec)
	if err != nil {
		return err
	}
	_, err = r.client.PutObject(ctx, r.bucket, minioObjectName(rec.ID),
		bytes.NewReader(raw), int64(len(raw)), minio.PutObjectOptions{
			ContentType: "application/json",
		})
	if err != nil {
		return fmt.Errorf("failed to put recording %s: %w", rec.ID, err)
	}
	return nil
}

func (r *minioRecordingRepository) Remove(ctx context.Context, id string) error {
	err := r.client.RemoveObject(ctx, r.bucket, minioObjectName(id), minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to remove recording %s: %w", id, err)
	}
	return nil
}

func (r *minioRecordingRepository) Close() error {
	// minio 客户端无需显式关闭
	return nil
}
