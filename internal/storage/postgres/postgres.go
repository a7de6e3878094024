// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/rovshanmuradov/solana-testlab/internal/alert"
	"github.com/rovshanmuradov/solana-testlab/internal/campaign"
	"github.com/rovshanmuradov/solana-testlab/internal/journal"
	"github.com/rovshanmuradov/solana-testlab/internal/storage"
	"github.com/rovshanmuradov/solana-testlab/internal/storage/models"
)

const migrationLockID = 101

// gormLogger routes GORM logs into zap.
type gormLogger struct {
	zapLogger     *zap.Logger
	logLevel      logger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger:     zapLogger,
		logLevel:      logger.Warn,
		slowThreshold: 200 * time.Millisecond,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

// Trace logs failed queries as errors and slow ones as warnings. Every query
// is logged at debug level when the mode is Info.
func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.logLevel >= logger.Error:
		l.zapLogger.Error("Query failed", append(fields, zap.Error(err))...)
	case elapsed > l.slowThreshold && l.logLevel >= logger.Warn:
		l.zapLogger.Warn("Slow query", fields...)
	case l.logLevel >= logger.Info:
		l.zapLogger.Debug("Query", fields...)
	}
}

// Store is the gorm backed storage.Store.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// New connects to the database at dsn.
func New(dsn string, zapLogger *zap.Logger) (*Store, error) {
	return Open(postgres.Open(dsn), zapLogger)
}

// Open creates a store over any gorm dialector.
func Open(dialector gorm.Dialector, zapLogger *zap.Logger) (*Store, error) {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(zapLogger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Store{db: db, logger: zapLogger.Named("postgres")}, nil
}

// Migrate creates or updates the schema under an advisory lock so that
// several engines can start against one database.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	var lockObtained bool
	if err := db.Raw("SELECT pg_try_advisory_lock(?)", migrationLockID).Scan(&lockObtained).Error; err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !lockObtained {
		return errors.New("another migration is in progress")
	}
	defer db.Exec("SELECT pg_advisory_unlock(?)", migrationLockID)

	if err := db.AutoMigrate(&models.Campaign{}, &models.Alert{}, &models.TriggerRecord{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	s.logger.Info("Database schema is up to date")
	return nil
}

func (s *Store) SaveCampaign(ctx context.Context, c campaign.Campaign) error {
	row := models.FromCampaign(c)
	return s.db.WithContext(ctx).Save(&row).Error
}

// DeleteCampaign removes the campaign and its alerts in one transaction.
func (s *Store) DeleteCampaign(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campaign_id = ?", id).Delete(&models.Alert{}).Error; err != nil {
			return fmt.Errorf("failed to delete alerts: %w", err)
		}
		res := tx.Where("id = ?", id).Delete(&models.Campaign{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete campaign: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

func (s *Store) LoadCampaigns(ctx context.Context) ([]campaign.Campaign, error) {
	var rows []models.Campaign
	if err := s.db.WithContext(ctx).Order("started_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]campaign.Campaign, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ToCampaign())
	}
	return out, nil
}

func (s *Store) SaveAlert(ctx context.Context, a alert.Alert) error {
	row, err := models.FromAlert(a)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *Store) DeleteAlert(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Alert{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// LoadAlerts skips rows whose actions cannot be decoded and logs them.
func (s *Store) LoadAlerts(ctx context.Context) ([]alert.Alert, error) {
	var rows []models.Alert
	if err := s.db.WithContext(ctx).Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]alert.Alert, 0, len(rows))
	for _, row := range rows {
		a, err := row.ToAlert()
		if err != nil {
			s.logger.Warn("Skipping unreadable alert", zap.String("alert_id", row.ID), zap.Error(err))
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) SaveRecord(ctx context.Context, rec journal.Record) error {
	row, err := models.FromRecord(rec)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

// LoadRecords returns the newest limit records in chronological order.
func (s *Store) LoadRecords(ctx context.Context, limit int) ([]journal.Record, error) {
	q := s.db.WithContext(ctx).Order("timestamp desc, id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []models.TriggerRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]journal.Record, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		rec, err := rows[i].ToRecord()
		if err != nil {
			s.logger.Warn("Skipping unreadable record", zap.String("record_id", rows[i].ID), zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
