// Package idgen provides ID generation utilities for the application.
// It encapsulates the ID generation implementation, making it easy to change
// the underlying ID generation strategy in the future.
package idgen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/rs/xid"
)

// NewID generates a new globally unique, sortable identifier.
// Returns a 20-character string using xid format.
func NewID() string {
	return xid.New().String()
}

// NewRequestID generates a unique ID for request tracking.
func NewRequestID() string {
	return NewID()
}

// NewFeedbackID generates a deterministic row key for one feedback record.
// The same (pr, thread, comment) triple always maps to the same ID so a
// re-harvest upserts instead of duplicating.
func NewFeedbackID(prID int, threadID int, commentID int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d|%d|%d", prID, threadID, commentID)))
	return hex.EncodeToString(sum[:16])
}

// RequestFingerprint computes the idempotency key for a webhook delivery.
// Event type is deliberately excluded so a "created" and an immediately
// following "updated" webhook for the same commit coalesce.
func RequestFingerprint(repository string, prID int, sourceCommit string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", repository, prID, sourceCommit)))
	return hex.EncodeToString(sum[:])
}

// ContentHash computes the content-addressed cache key over the inputs that
// affect an AI review's output.
func ContentHash(prompt, model, temperaturePolicy string) string {
	h := sha256.New()
	h.Write([]byte(prompt))
	h.Write([]byte{0})
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(temperaturePolicy))
	return hex.EncodeToString(h.Sum(nil))
}
