package domain

import "time"

// Rating is a customer's score for a business, with an optional review.
type Rating struct {
	ID         int64
	BusinessID int64
	CustomerID int64
	Score      int
	Review     *string
	CreatedAt  time.Time
}

// RatingAggregate holds the mean score, rounded to two decimals, and the
// number of ratings recorded for a business.
type RatingAggregate struct {
	BusinessID int64
	Average    float64
	Count      int64
}

// Bounds of an accepted score, both inclusive.
const (
	// MinScore is the lowest score a customer can give.
	MinScore = 1
	// MaxScore is the highest score a customer can give.
	MaxScore = 5
)

// ValidScore reports whether score lies in the accepted 1..5 range.
func ValidScore(score int) bool {
	return score >= MinScore && score <= MaxScore
}
