package store

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pullwise/pullwise/internal/model"
	pkgerrors "github.com/pullwise/pullwise/pkg/errors"
)

// HistoryStore defines operations for completed-review history rows
type HistoryStore interface {
	Upsert(h *model.ReviewHistory) error
	Get(repository string, prID int) (*model.ReviewHistory, error)

	// ListSince returns rows with reviewed_at >= the given ISO-8601 string.
	// Timestamps are stored as strings; the comparison is lexicographic.
	ListSince(isoTime string) ([]model.ReviewHistory, error)

	ListByRepository(repository string, limit int) ([]model.ReviewHistory, error)
	CountSince(isoTime string) (int64, error)
}

type historyStore struct {
	db *gorm.DB
}

func newHistoryStore(db *gorm.DB) HistoryStore {
	return &historyStore{db: db}
}

func (s *historyStore) Upsert(h *model.ReviewHistory) error {
	if err := h.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeValidation, "invalid review history", err)
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "repository"}, {Name: "pr_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"author_email", "files_reviewed", "file_categories", "issues_found",
			"critical_count", "high_count", "medium_count", "low_count", "info_count",
			"recommendation", "duration_seconds", "tokens_used", "strategy_used",
			"reviewed_at", "updated_at",
		}),
	}).Create(h).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to upsert review history", err)
	}
	return nil
}

func (s *historyStore) Get(repository string, prID int) (*model.ReviewHistory, error) {
	var h model.ReviewHistory
	err := s.db.Where("repository = ? AND pr_id = ?", repository, prID).First(&h).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to query review history", err)
	}
	return &h, nil
}

func (s *historyStore) ListSince(isoTime string) ([]model.ReviewHistory, error) {
	var rows []model.ReviewHistory
	err := s.db.Where("reviewed_at >= ?", isoTime).
		Order("reviewed_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to list review history", err)
	}
	return rows, nil
}

func (s *historyStore) ListByRepository(repository string, limit int) ([]model.ReviewHistory, error) {
	var rows []model.ReviewHistory
	q := s.db.Where("repository = ?", repository).Order("reviewed_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to list review history", err)
	}
	return rows, nil
}

func (s *historyStore) CountSince(isoTime string) (int64, error) {
	var n int64
	err := s.db.Model(&model.ReviewHistory{}).
		Where("reviewed_at >= ?", isoTime).
		Count(&n).Error
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to count review history", err)
	}
	return n, nil
}
