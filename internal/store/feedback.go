package store

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pullwise/pullwise/internal/model"
	pkgerrors "github.com/pullwise/pullwise/pkg/errors"
)

// FeedbackStore defines operations for developer-feedback records
type FeedbackStore interface {
	Upsert(rec *model.FeedbackRecord) error
	ListByRepository(repository string, limit int) ([]model.FeedbackRecord, error)
	ListByRepositoryAndKind(repository string, kind model.FeedbackKind, limit int) ([]model.FeedbackRecord, error)
	CountByRepository(repository string) (map[model.FeedbackKind]int64, error)
}

type feedbackStore struct {
	db *gorm.DB
}

func newFeedbackStore(db *gorm.DB) FeedbackStore {
	return &feedbackStore{db: db}
}

func (s *feedbackStore) Upsert(rec *model.FeedbackRecord) error {
	if err := rec.Validate(); err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeValidation, "invalid feedback record", err)
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "repository"}, {Name: "feedback_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"kind", "author", "occurred_at", "suggestion", "updated_at",
		}),
	}).Create(rec).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to upsert feedback record", err)
	}
	return nil
}

func (s *feedbackStore) ListByRepository(repository string, limit int) ([]model.FeedbackRecord, error) {
	var recs []model.FeedbackRecord
	q := s.db.Where("repository = ?", repository).Order("occurred_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to list feedback records", err)
	}
	return recs, nil
}

func (s *feedbackStore) ListByRepositoryAndKind(repository string, kind model.FeedbackKind, limit int) ([]model.FeedbackRecord, error) {
	var recs []model.FeedbackRecord
	q := s.db.Where("repository = ? AND kind = ?", repository, kind).Order("occurred_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&recs).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to list feedback records", err)
	}
	return recs, nil
}

func (s *feedbackStore) CountByRepository(repository string) (map[model.FeedbackKind]int64, error) {
	type row struct {
		Kind  model.FeedbackKind
		Count int64
	}
	var rows []row
	err := s.db.Model(&model.FeedbackRecord{}).
		Select("kind, count(*) as count").
		Where("repository = ?", repository).
		Group("kind").
		Scan(&rows).Error
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrCodeDBQuery, "failed to count feedback records", err)
	}
	counts := make(map[model.FeedbackKind]int64, len(rows))
	for _, r := range rows {
		counts[r.Kind] = r.Count
	}
	return counts, nil
}
