package consts

import (
	"sync"
	"testing"
	"time"
)

func TestServiceName(t *testing.T) {
	if ServiceName != "pullwise" {
		t.Errorf("ServiceName = %q, want %q", ServiceName, "pullwise")
	}
}

func TestStrategyThresholdsOrdered(t *testing.T) {
	if SinglePassMaxFiles >= ChunkedMaxFiles {
		t.Errorf("SinglePassMaxFiles = %d, want < ChunkedMaxFiles (%d)", SinglePassMaxFiles, ChunkedMaxFiles)
	}
	if SinglePassMaxTokens >= ChunkedMaxTokens {
		t.Errorf("SinglePassMaxTokens = %d, want < ChunkedMaxTokens (%d)", SinglePassMaxTokens, ChunkedMaxTokens)
	}
}

func TestRetryWaits(t *testing.T) {
	if RetryMinWait >= RetryMaxWait {
		t.Errorf("RetryMinWait = %v, want < RetryMaxWait (%v)", RetryMinWait, RetryMaxWait)
	}
}

func TestSetStartedAt(t *testing.T) {
	// Reset state for testing
	startedAt = time.Time{}
	startedOnce = sync.Once{}

	now := time.Now()
	SetStartedAt(now)

	got := GetStartedAt()
	if !got.Equal(now) {
		t.Errorf("GetStartedAt() = %v, want %v", got, now)
	}

	// Test that SetStartedAt can only be called once
	anotherTime := now.Add(time.Hour)
	SetStartedAt(anotherTime)
	got = GetStartedAt()
	if !got.Equal(now) {
		t.Errorf("GetStartedAt() after second call = %v, want %v (should not change)", got, now)
	}
}

func TestGetUptime(t *testing.T) {
	// Reset state
	startedAt = time.Time{}
	startedOnce = sync.Once{}

	uptime := GetUptime()
	if uptime != 0 {
		t.Errorf("GetUptime() with zero time = %v, want 0", uptime)
	}

	SetStartedAt(time.Now())
	uptime = GetUptime()
	if uptime < 0 {
		t.Errorf("GetUptime() = %v, want non-negative", uptime)
	}
}
