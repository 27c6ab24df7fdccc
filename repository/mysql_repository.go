package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gormmysql "gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"MemoFM/config"
	"MemoFM/model"
)

// recordingRow 是 recordings 表的行结构
type recordingRow struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Name      string    `gorm:"size:255;not null"`
	Duration  float64   `gorm:"not null;default:0"`
	Format    string    `gorm:"size:16"`
	CreatedAt time.Time `gorm:"index"`
	Data      []byte    `gorm:"type:longblob"`
}

func (recordingRow) TableName() string {
	return "recordings"
}

func rowFromRecording(rec *model.Recording) *recordingRow {
	return &recordingRow{
		ID:        rec.ID,
		Name:      rec.Name,
		Duration:  rec.Duration,
		Format:    rec.Format,
		CreatedAt: rec.CreatedAt,
		Data:      rec.Data,
	}
}

func recordingFromRow(row *recordingRow) *model.Recording {
	return &model.Recording{
		ID:        row.ID,
		Name:      row.Name,
		Duration:  row.Duration,
		Format:    row.Format,
		CreatedAt: row.CreatedAt,
		Data:      row.Data,
	}
}

// mysqlRecordingRepository GORM 实现
type mysqlRecordingRepository struct {
	db *gorm.DB
}

var _ RecordingRepository = (*mysqlRecordingRepository)(nil)

// NewMySQLRepository 建立 GORM 数据库连接并迁移表结构
func NewMySQLRepository(cfg *config.Config) (RecordingRepository, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)

	db, err := gorm.Open(gormmysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		// 禁用外键约束
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database with GORM: %w", err)
	}

	// 获取底层的 sql.DB 并配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&recordingRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate recordings table: %w", err)
	}

	return &mysqlRecordingRepository{db: db}, nil
}

// newMySQLRepositoryWithConn 供测试以现有连接构造仓库，跳过迁移
func newMySQLRepositoryWithConn(conn *sql.DB) (RecordingRepository, error) {
	db, err := gorm.Open(gormmysql.New(gormmysql.Config{
		Conn:                      conn,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	return &mysqlRecordingRepository{db: db}, nil
}

func (r *mysqlRecordingRepository) List(ctx context.Context) ([]*model.Recording, error) {
	var rows []recordingRow
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}

	recs := make([]*model.Recording, 0, len(rows))
	for i := range rows {
		recs = append(recs, recordingFromRow(&rows[i]))
	}
	return recs, nil
}

func (r *mysqlRecordingRepository) Get(ctx context.Context, id string) (*model.Recording, error) {
	var row recordingRow
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get recording %s: %w", id, err)
	}
	return recordingFromRow(&row), nil
}

func (r *mysqlRecordingRepository) Put(ctx context.Context, rec *model.Recording) error {
	row := rowFromRecording(rec)
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("failed to put recording %s: %w", rec.ID, err)
	}
	return nil
}

func (r *mysqlRecordingRepository) Remove(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Delete(&recordingRow{}, "id = ?", id).Error
	if err != nil {
		return fmt.Errorf("failed to remove recording %s: %w", id, err)
	}
	return nil
}

func (r *mysqlRecordingRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
