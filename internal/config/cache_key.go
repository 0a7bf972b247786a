package config

import (
	"fmt"
)

// TestProgressPrefix prefixes every stored recovery snapshot key.
const TestProgressPrefix = "test_progress_"

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// TestProgressKey returns the snapshot key of a profile's progress on a test.
func (r *CacheKeyStruct) TestProgressKey(profileID string, testID int64) string {
	return fmt.Sprintf("profile:%s:%s%d", profileID, TestProgressPrefix, testID)
}

// TestPayloadKey returns the cache key for a test's questions without correctness flags
func (r *CacheKeyStruct) TestPayloadKey(testID int64) string {
	return fmt.Sprintf("test:%d:payload", testID)
}

// TestAnswerKey returns the cache key for a test's answer key (question id -> correct answer id)
func (r *CacheKeyStruct) TestAnswerKey(testID int64) string {
	return fmt.Sprintf("test:%d:key", testID)
}

// RateLimitKey returns the counter key of one rate limit window
func (r *CacheKeyStruct) RateLimitKey(scope, subject string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", scope, subject, window)
}

var CacheKey = NewCacheKeyStruct()
