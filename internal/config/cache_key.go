package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionStartKey returns the cache key holding a session's start time (unix seconds).
func (r *CacheKeyStruct) SessionStartKey(sessionID string) string {
	return fmt.Sprintf("session:%s:start", sessionID)
}

// SessionDraftKey returns the hash key of a session's autosaved answers.
func (r *CacheKeyStruct) SessionDraftKey(sessionID string) string {
	return fmt.Sprintf("session:%s:draft", sessionID)
}

// ExamPaperKey returns the cache key for an exam's student-facing paper.
func (r *CacheKeyStruct) ExamPaperKey(examID string) string {
	return fmt.Sprintf("exam:%s:paper", examID)
}

// SessionMonitorChannel returns the Redis PubSub channel for live proctoring events.
func (r *CacheKeyStruct) SessionMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

// RevokedTokenKey marks an admin JWT id as logged out until it expires.
func (r *CacheKeyStruct) RevokedTokenKey(jti string) string {
	return fmt.Sprintf("auth:revoked:%s", jti)
}

var CacheKey = NewCacheKeyStruct()
