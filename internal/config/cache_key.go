package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key for a student's login session
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// AttemptDeadlineKey returns the cache key for a student's attempt deadline
func (r *CacheKeyStruct) AttemptDeadlineKey(quizID string, studentID int) string {
	return fmt.Sprintf("student:%d:quiz:%s:deadline", studentID, quizID)
}

// StudentAnswersKey returns the cache key for a student's autosaved answers
func (r *CacheKeyStruct) StudentAnswersKey(quizID string, studentID int) string {
	return fmt.Sprintf("student:%d:quiz:%s:answers", studentID, quizID)
}

// QuizPayloadKey returns the cache key for a quiz's student-facing payload
func (r *CacheKeyStruct) QuizPayloadKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:payload", quizID)
}

// QuizMonitorChannel returns the Redis PubSub channel for a quiz's
// live violation feed
func (r *CacheKeyStruct) QuizMonitorChannel(quizID string) string {
	return fmt.Sprintf("quiz:%s:monitor", quizID)
}

var CacheKey = NewCacheKeyStruct()
