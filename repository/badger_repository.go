package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"MemoFM/logger"
	"MemoFM/model"
)

// badgerRecordingRepository 内嵌KV存储实现，默认后端，无外部服务依赖
type badgerRecordingRepository struct {
	db *badger.DB
}

var _ RecordingRepository = (*badgerRecordingRepository)(nil)

// NewBadgerRepository 打开本地 Badger 库。dir 为空时使用纯内存模式（测试用）。
func NewBadgerRepository(dir string) (RecordingRepository, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store at %s: %w", dir, err)
	}
	return &badgerRecordingRepository{db: db}, nil
}

func (r *badgerRecordingRepository) List(ctx context.Context) ([]*model.Recording, error) {
	prefix := []byte(recordingKeyPrefix)
	var recs []*model.Recording

	err := r.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				rec, err := decodeRecording(val)
				if err != nil {
					// 单条损坏不影响整个列表
					logger.Warn("跳过无法解析的录音记录",
						logger.String("key", string(it.Item().Key())),
						logger.ErrorField(err))
					return nil
				}
				recs = append(recs, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}

	sortNewestFirst(recs)
	return recs, nil
}

func (r *badgerRecordingRepository) Get(ctx context.Context, id string) (*model.Recording, error) {
	var rec *model.Recording
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(recordingKey(id)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			rec, err = decodeRecording(val)
			return err
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recording %s: %w", id, err)
	}
	return rec, nil
}

func (r *badgerRecordingRepository) Put(ctx context.Context, rec *model.Recording) error {
	raw, err := encodeRecording(rec)
	if err != nil {
		return err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(recordingKey(rec.ID)), raw)
	})
	if err != nil {
		return fmt.Errorf("failed to put recording %s: %w", rec.ID, err)
	}
	return nil
}

func (r *badgerRecordingRepository) Remove(ctx context.Context, id string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(recordingKey(id)))
	})
	if err != nil {
		return fmt.Errorf("failed to remove recording %s: %w", id, err)
	}
	return nil
}

func (r *badgerRecordingRepository) Close() error {
	return r.db.Close()
}
