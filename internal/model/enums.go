// Package model defines the data models for the application.
// Value types carry their invariants as constructor/validator checks;
// persisted entities use GORM with the SQLite database.
package model

import "fmt"

// Severity classifies a review issue
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// Severities lists all severities from most to least severe
var Severities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// ParseSeverity validates a severity string from an external boundary
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo:
		return Severity(s), nil
	}
	return "", fmt.Errorf("invalid severity: %q", s)
}

// String returns the wire representation
func (s Severity) String() string { return string(s) }

// Rank returns the ordering of the severity, 0 being most severe
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 3
	default:
		return 4
	}
}

// Recommendation is the overall verdict for a review
type Recommendation string

const (
	RecommendApprove        Recommendation = "approve"
	RecommendComment        Recommendation = "comment"
	RecommendRequestChanges Recommendation = "request_changes"
)

// ParseRecommendation validates a recommendation string
func ParseRecommendation(s string) (Recommendation, error) {
	switch Recommendation(s) {
	case RecommendApprove, RecommendComment, RecommendRequestChanges:
		return Recommendation(s), nil
	}
	return "", fmt.Errorf("invalid recommendation: %q", s)
}

// String returns the wire representation
func (r Recommendation) String() string { return string(r) }

// EventType is the kind of PR webhook occurrence
type EventType string

const (
	EventTypeCreated EventType = "created"
	EventTypeUpdated EventType = "updated"
)

// ParseEventType validates an event type string
func ParseEventType(s string) (EventType, error) {
	switch EventType(s) {
	case EventTypeCreated, EventTypeUpdated:
		return EventType(s), nil
	}
	return "", fmt.Errorf("invalid event type: %q", s)
}

// ChangeKind is the kind of change for one file
type ChangeKind string

const (
	ChangeKindAdd    ChangeKind = "add"
	ChangeKindEdit   ChangeKind = "edit"
	ChangeKindDelete ChangeKind = "delete"
	ChangeKindRename ChangeKind = "rename"
)

// ParseChangeKind validates a change kind string
func ParseChangeKind(s string) (ChangeKind, error) {
	switch ChangeKind(s) {
	case ChangeKindAdd, ChangeKindEdit, ChangeKindDelete, ChangeKindRename:
		return ChangeKind(s), nil
	}
	return "", fmt.Errorf("invalid change kind: %q", s)
}

// Strategy is the review execution tier
type Strategy string

const (
	StrategySinglePass   Strategy = "single_pass"
	StrategyChunked      Strategy = "chunked"
	StrategyHierarchical Strategy = "hierarchical"
)

// String returns the wire representation
func (s Strategy) String() string { return string(s) }

// FeedbackKind classifies a developer's reaction to a review comment
type FeedbackKind string

const (
	FeedbackAccepted FeedbackKind = "accepted"
	FeedbackRejected FeedbackKind = "rejected"
	FeedbackIgnored  FeedbackKind = "ignored"
)

// ParseFeedbackKind validates a feedback kind string
func ParseFeedbackKind(s string) (FeedbackKind, error) {
	switch FeedbackKind(s) {
	case FeedbackAccepted, FeedbackRejected, FeedbackIgnored:
		return FeedbackKind(s), nil
	}
	return "", fmt.Errorf("invalid feedback kind: %q", s)
}

// IdempotencyStatus tracks one webhook delivery's processing state.
// Transitions are monotone: pending -> completed or pending -> failed.
type IdempotencyStatus string

const (
	IdempotencyPending   IdempotencyStatus = "pending"
	IdempotencyCompleted IdempotencyStatus = "completed"
	IdempotencyFailed    IdempotencyStatus = "failed"
)

// CanTransition reports whether a status transition is allowed
func (s IdempotencyStatus) CanTransition(to IdempotencyStatus) bool {
	return s == IdempotencyPending && (to == IdempotencyCompleted || to == IdempotencyFailed)
}
