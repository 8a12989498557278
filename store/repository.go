package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"quantex/internal/logging"
	"quantex/internal/runs"
)

const defaultListLimit = 20

type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewRepository(db *gorm.DB, log *zap.Logger) *Repository {
	return &Repository{db: db, logger: logging.Component(log, "store")}
}

// Open connects to Postgres and migrates the run tables.
func Open(dsn string, log *zap.Logger) (*Repository, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.AutoMigrate(&RunRecord{}, &TradeRecord{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return NewRepository(db, log), nil
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Save upserts a run and replaces its trade rows.
func (r *Repository) Save(ctx context.Context, rec *RunRecord) error {
	if rec == nil || rec.ID == "" {
		return errors.New("run record must have an id")
	}
	trades := rec.Trades
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", rec.ID).Delete(&TradeRecord{}).Error; err != nil {
			return fmt.Errorf("clear trades: %w", err)
		}
		if err := tx.Omit("Trades").Save(rec).Error; err != nil {
			return fmt.Errorf("save run: %w", err)
		}
		if len(trades) == 0 {
			return nil
		}
		for i := range trades {
			trades[i].ID = 0
			trades[i].RunID = rec.ID
		}
		if err := tx.CreateInBatches(trades, 100).Error; err != nil {
			return fmt.Errorf("save trades: %w", err)
		}
		return nil
	})
}

// SaveRun makes Repository a runs.Persister.
func (r *Repository) SaveRun(ctx context.Context, run runs.Run) error {
	rec := RecordFromRun(run)
	if err := r.Save(ctx, &rec); err != nil {
		return err
	}
	r.logger.Debug("run persisted", zap.String("id", run.ID), zap.Int("trades", len(rec.Trades)))
	return nil
}

// FindByID loads a run with its trades in log order.
func (r *Repository) FindByID(ctx context.Context, id string) (*RunRecord, error) {
	var rec RunRecord
	err := r.db.WithContext(ctx).
		Preload("Trades", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", runs.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// List returns the most recent runs without their trades.
func (r *Repository) List(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	var recs []RunRecord
	err := r.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&recs).Error
	return recs, err
}
