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

// AttemptStartKey returns the cache key for a student's attempt start time
func (r *CacheKeyStruct) AttemptStartKey(quizID string, studentID int) string {
	return fmt.Sprintf("student:%d:quiz:%s:attempt_start", studentID, quizID)
}

// AttemptAnswersKey returns the cache key for a student's autosaved answers
func (r *CacheKeyStruct) AttemptAnswersKey(quizID string, studentID int) string {
	return fmt.Sprintf("student:%d:quiz:%s:answers", studentID, quizID)
}

// AttemptIndexKey returns the cache key for a student's current question index
func (r *CacheKeyStruct) AttemptIndexKey(quizID string, studentID int) string {
	return fmt.Sprintf("student:%d:quiz:%s:index", studentID, quizID)
}

// QuizPayloadKey returns the cache key for a quiz's student-facing payload
func (r *CacheKeyStruct) QuizPayloadKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:payload", quizID)
}

// QuizTimeLimitKey returns the cache key for a quiz's time limit in seconds
func (r *CacheKeyStruct) QuizTimeLimitKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:time_limit", quizID)
}

// QuizAnswerKey returns the cache key for a quiz's answer key
func (r *CacheKeyStruct) QuizAnswerKey(quizID string) string {
	return fmt.Sprintf("quiz:%s:key", quizID)
}

// LiveAttemptsKey returns the sorted-set key tracking live timed attempts
// by their submission deadline (unix seconds). The deadline worker pops
// expired members from this set.
func (r *CacheKeyStruct) LiveAttemptsKey() string {
	return "attempts:deadlines"
}

// LiveAttemptMember builds the sorted-set member for a (quiz, student) pair.
func (r *CacheKeyStruct) LiveAttemptMember(quizID string, studentID int) string {
	return fmt.Sprintf("%s:%d", quizID, studentID)
}

var CacheKey = NewCacheKeyStruct()
