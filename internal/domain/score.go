package domain

import (
	"math"
	"time"
)

const (
	// Gravity controls how fast old structs lose score.
	Gravity = 1.4
	// TimeIntervalSeconds is the length of one decay interval.
	TimeIntervalSeconds = 1800.0
)

// Score ranks a record the way Hacker News ranks stories:
//
//	(upvotes + 1) / ((elapsedIntervals + 2) ^ Gravity)
//
// Submission times in the future (clock skew) count as zero elapsed time so
// the result stays finite and JSON-encodable.
func Score(submittedAt int64, upvotes int, now time.Time) float64 {
	elapsed := float64(now.Unix()-submittedAt) / TimeIntervalSeconds
	if elapsed < 0 {
		elapsed = 0
	}
	return float64(upvotes+1) / math.Pow(elapsed+2, Gravity)
}
