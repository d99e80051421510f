package reliability

import (
	"errors"
	"time"

	"github.com/pullwise/pullwise/consts"
	"github.com/pullwise/pullwise/internal/model"
	"github.com/pullwise/pullwise/internal/store"
	"github.com/pullwise/pullwise/pkg/idgen"
)

// Deduplicator coalesces duplicate webhook deliveries through the
// idempotency table. The fingerprint covers repository, PR id, and source
// commit; event type is excluded so a created webhook followed by an
// updated webhook for the same commit resolves to one review.
type Deduplicator struct {
	store store.IdempotencyStore
}

// NewDeduplicator creates a deduplicator over the idempotency store
func NewDeduplicator(is store.IdempotencyStore) *Deduplicator {
	return &Deduplicator{store: is}
}

// Fingerprint computes the dedup key for an event
func (d *Deduplicator) Fingerprint(event *model.PREvent) string {
	return idgen.RequestFingerprint(event.RepositoryName, event.PRID, event.SourceCommit)
}

// Check returns the existing non-expired record for a fingerprint, or nil.
// Failed records do not count: the platform's webhook retry is the retry
// mechanism, so a failed review never blocks a redelivery.
func (d *Deduplicator) Check(fingerprint string) (*model.IdempotencyRecord, error) {
	rec, err := d.store.GetByFingerprint(fingerprint)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Expired(time.Now()) || rec.Status == model.IdempotencyFailed {
		return nil, nil
	}
	return rec, nil
}

// Begin writes the pending record for a fresh event. A failed record left by
// an earlier delivery is reclaimed in place. Returns (duplicate=true, nil)
// when another delivery won the insert race.
func (d *Deduplicator) Begin(event *model.PREvent, fingerprint string) (bool, *model.IdempotencyRecord, error) {
	now := time.Now().UTC()
	rec := &model.IdempotencyRecord{
		Partition:    now.Format("2006-01-02"),
		Fingerprint:  fingerprint,
		PRID:         event.PRID,
		Repository:   event.RepositoryName,
		SourceCommit: event.SourceCommit,
		Status:       model.IdempotencyPending,
		ExpiresAt:    now.Add(consts.IdempotencyTTL),
	}
	err := d.store.Create(rec)
	if errors.Is(err, store.ErrDuplicateRecord) {
		won, rerr := d.store.ResetFailed(rec.Partition, fingerprint, rec.ExpiresAt)
		if rerr != nil {
			return false, nil, rerr
		}
		if won {
			return false, rec, nil
		}
		return true, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	return false, rec, nil
}

// Complete marks the record completed with a truncated summary
func (d *Deduplicator) Complete(rec *model.IdempotencyRecord, summary string) error {
	if len(summary) > consts.MaxResultSummaryLength {
		summary = summary[:consts.MaxResultSummaryLength]
	}
	return d.store.UpdateStatus(rec.Partition, rec.Fingerprint, model.IdempotencyCompleted, summary)
}

// Fail marks the record failed with the error code
func (d *Deduplicator) Fail(rec *model.IdempotencyRecord, errorCode string) error {
	return d.store.UpdateStatus(rec.Partition, rec.Fingerprint, model.IdempotencyFailed, errorCode)
}
