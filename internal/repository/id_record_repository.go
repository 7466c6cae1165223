package repository

import (
	"context"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/id-check/internal/logging"
)

// IDRecord is a persisted verified identity, keyed uniquely by the document
// number. DateOfBirth is stored as matched on the card, not normalized.
type IDRecord struct {
	ID           uint      `gorm:"primaryKey"`
	IDNumber     string    `gorm:"column:id_number;uniqueIndex;size:19"`
	FirstName    string    `gorm:"column:first_name;size:128"`
	MiddleName   string    `gorm:"column:middle_name;size:128"`
	LastName     string    `gorm:"column:last_name;size:128"`
	DateOfBirth  string    `gorm:"column:dob;size:64"`
	FaceMatch    bool      `gorm:"column:face_match"`
	MatchPercent float64   `gorm:"column:match_percent"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (IDRecord) TableName() string {
	return "philippine_national_id"
}

// MetricsAggregation holds the rollups computed over stored records.
type MetricsAggregation struct {
	TotalCount          int64
	MatchedCount        int64
	AverageMatchPercent float64
}

// IDRecordRepository provides persistence APIs for verified ID records.
type IDRecordRepository struct {
	db             *gorm.DB
	logger         *zap.Logger
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewIDRecordRepository creates a new repository instance.
func NewIDRecordRepository(db *gorm.DB, logger *zap.Logger) *IDRecordRepository {
	return &IDRecordRepository{
		db:             db,
		logger:         logger.Named("id_record_repository"),
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// AutoMigrate ensures the schema is available.
func (r *IDRecordRepository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&IDRecord{})
}

// Save inserts the record unless a row with the same id_number already
// exists. Conflicting inserts are silently skipped, never updated:
// resubmitting the same document is a no-op and the first write wins.
func (r *IDRecordRepository) Save(ctx context.Context, record *IDRecord) error {
	return r.executeWithRetry(ctx, "repository.save_record", record.IDNumber, func() error {
		return r.db.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id_number"}},
				DoNothing: true,
			}).
			Create(record).Error
	})
}

// FindByIDNumber retrieves the stored record for a document number.
func (r *IDRecordRepository) FindByIDNumber(ctx context.Context, idNumber string) (*IDRecord, error) {
	var record IDRecord
	err := r.executeWithRetry(ctx, "repository.find_record", idNumber, func() error {
		return r.db.WithContext(ctx).First(&record, "id_number = ?", idNumber).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// AggregateMetrics computes verification rollups across all stored records.
func (r *IDRecordRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&IDRecord{}).
			Select(
				"COUNT(*) AS total_count",
				"COUNT(*) FILTER (WHERE face_match) AS matched_count",
				"COALESCE(AVG(match_percent), 0) AS average_match_percent",
			).
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

// executeWithRetry runs fn, retrying transient failures with capped backoff.
// Non-transient failures and exhausted retries come back wrapped as an
// OperationError.
func (r *IDRecordRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	if r.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := r.initialBackoff
	opLogger := logging.WithOperation(r.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < r.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= r.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("database operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !logging.IsTransient(err) || attempt == r.retryAttempts-1 {
			opLogger.Error("database operation failed", zap.Error(err), zap.Int("attempt", attempt+1))
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient database error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}
