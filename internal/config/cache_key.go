package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// RecordAnswersKey returns the hash key holding the current answer per
// question for a live attempt.
func (r *CacheKeyStruct) RecordAnswersKey(recordID string) string {
	return fmt.Sprintf("record:%s:answers", recordID)
}

// RecordTimeSpentKey returns the hash key accumulating seconds spent per
// question for a live attempt.
func (r *CacheKeyStruct) RecordTimeSpentKey(recordID string) string {
	return fmt.Sprintf("record:%s:time_spent", recordID)
}

// PreviewRecordKey returns the key holding a preview attempt's record JSON.
func (r *CacheKeyStruct) PreviewRecordKey(previewID string) string {
	return fmt.Sprintf("preview:%s:record", previewID)
}

// PreviewAnswersKey returns the hash key for a preview attempt's answers.
func (r *CacheKeyStruct) PreviewAnswersKey(previewID string) string {
	return fmt.Sprintf("preview:%s:answers", previewID)
}

// PreviewTimeSpentKey returns the hash key accumulating preview time spent.
func (r *CacheKeyStruct) PreviewTimeSpentKey(previewID string) string {
	return fmt.Sprintf("preview:%s:time_spent", previewID)
}

// SessionMonitorChannel returns the Redis PubSub channel name carrying live
// attempt events for a session.
func (r *CacheKeyStruct) SessionMonitorChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:monitor", sessionID)
}

var CacheKey = NewCacheKeyStruct()
