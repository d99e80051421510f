package store

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pullwise/pullwise/internal/model"
	pkgerrors "github.com/pullwise/pullwise/pkg/errors"
)

// ErrDuplicateRecord is returned when a unique constraint rejects an insert
var ErrDuplicateRecord = pkgerrors.New(pkgerrors.ErrCodeDuplicateEvent, "record already exists")

// IdempotencyStore defines operations for webhook-delivery dedup records
type IdempotencyStore interface {
	Create(rec *model.IdempotencyRecord) error
	Get(partition, fingerprint string) (*model.IdempotencyRecord, error)

	// GetByFingerprint scans across partitions, newest first, for the
	// fingerprint. The dedup window spans a midnight boundary so a
	// same-partition lookup alone is not sufficient.
	GetByFingerprint(fingerprint string) (*model.IdempotencyRecord, error)

	UpdateStatus(partition, fingerprint string, status model.IdempotencyStatus, summary string) error

	// ResetFailed returns a failed record to pending so a platform
	// redelivery can retry the review. Reports whether a row was claimed;
	// the status guard keeps two concurrent redeliveries down to one winner.
	ResetFailed(partition, fingerprint string, expiresAt time.Time) (bool, error)

	DeleteExpired(now time.Time) (int64, error)

	// CountByStatusSince tallies records created at or after the cutoff,
	// grouped by status
	CountByStatusSince(since time.Time) (map[model.IdempotencyStatus]int64, error)
}

type idempotencyStore struct {
	db *gorm.DB
}

func newIdempotencyStore(db *gorm.DB) IdempotencyStore {
	return &idempotencyStore{db: db}
}

func (s *idempotencyStore) Create(rec *model.IdempotencyRecord) error {
	if err := rec.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeValidation, "invalid idempotency record", err)
	}
	// ON CONFLICT DO NOTHING keeps the race between two identical webhooks
	// down to one winner without surfacing a driver-specific error.
	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(rec)
	if result.Error != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to create idempotency record", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDuplicateRecord
	}
	return nil
}

func (s *idempotencyStore) Get(partition, fingerprint string) (*model.IdempotencyRecord, error) {
	var rec model.IdempotencyRecord
	err := s.db.Where("partition_date = ? AND fingerprint = ?", partition, fingerprint).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to query idempotency record", err)
	}
	return &rec, nil
}

func (s *idempotencyStore) GetByFingerprint(fingerprint string) (*model.IdempotencyRecord, error) {
	var rec model.IdempotencyRecord
	err := s.db.Where("fingerprint = ?", fingerprint).
		Order("created_at DESC").
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to query idempotency record", err)
	}
	return &rec, nil
}

func (s *idempotencyStore) UpdateStatus(partition, fingerprint string, status model.IdempotencyStatus, summary string) error {
	current, err := s.Get(partition, fingerprint)
	if err != nil {
		return err
	}
	if current == nil {
		return pkgerrors.New(pkgerrors.ErrCodeNotFound, "idempotency record not found")
	}
	if !current.Status.CanTransition(status) {
		return pkgerrors.New(pkgerrors.ErrCodeConflict,
			"idempotency status transition not allowed")
	}
	err = s.db.Model(&model.IdempotencyRecord{}).
		Where("partition_date = ? AND fingerprint = ? AND status = ?", partition, fingerprint, current.Status).
		Updates(map[string]interface{}{
			"status":         status,
			"result_summary": summary,
		}).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to update idempotency status", err)
	}
	return nil
}

func (s *idempotencyStore) ResetFailed(partition, fingerprint string, expiresAt time.Time) (bool, error) {
	result := s.db.Model(&model.IdempotencyRecord{}).
		Where("partition_date = ? AND fingerprint = ? AND status = ?",
			partition, fingerprint, model.IdempotencyFailed).
		Updates(map[string]interface{}{
			"status":         model.IdempotencyPending,
			"result_summary": "",
			"expires_at":     expiresAt,
		})
	if result.Error != nil {
		return false, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to reset idempotency record", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *idempotencyStore) CountByStatusSince(since time.Time) (map[model.IdempotencyStatus]int64, error) {
	var rows []struct {
		Status model.IdempotencyStatus
		Count  int64
	}
	err := s.db.Model(&model.IdempotencyRecord{}).
		Select("status, COUNT(*) as count").
		Where("created_at >= ?", since).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to count idempotency records", err)
	}
	counts := make(map[model.IdempotencyStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *idempotencyStore) DeleteExpired(now time.Time) (int64, error) {
	result := s.db.Where("expires_at < ?", now).Delete(&model.IdempotencyRecord{})
	if result.Error != nil {
		return 0, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to delete expired idempotency records", result.Error)
	}
	return result.RowsAffected, nil
}
