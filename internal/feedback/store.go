// Package feedback provides PostgreSQL-backed storage for anonymous feedback
// left at the end of a decision journey. Feedback is the only state that
// outlives a session; it carries no session identifier, only the journey step
// it was left from, a rating, and an optional comment.
package feedback

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	// MinRating and MaxRating bound the 1-5 star scale, matching the
	// CHECK constraint on the feedback table.
	MinRating = 1
	MaxRating = 5

	// MaxCommentChars caps free-text comments.
	MaxCommentChars = 2000
)

// Entry represents a single piece of feedback to be persisted.
type Entry struct {
	JourneyStep string // step the patient was on when leaving feedback
	Rating      int    // 1-5
	Comment     string // optional, already PII-redacted by the caller
}

// Store manages feedback entries in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new feedback store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create validates and inserts a feedback entry.
func (s *Store) Create(ctx context.Context, entry *Entry) error {
	if entry.Rating < MinRating || entry.Rating > MaxRating {
		return fmt.Errorf("feedback: rating %d out of range [%d,%d]", entry.Rating, MinRating, MaxRating)
	}
	if len(entry.Comment) > MaxCommentChars {
		return fmt.Errorf("feedback: comment exceeds %d character limit", MaxCommentChars)
	}

	const query = `
		INSERT INTO feedback (journey_step, rating, comment)
		VALUES ($1, $2, $3)`

	_, err := s.db.ExecContext(ctx, query, entry.JourneyStep, entry.Rating, entry.Comment)
	if err != nil {
		return fmt.Errorf("feedback: insert: %w", err)
	}
	return nil
}

// AverageRating returns the mean rating across all feedback, or 0 with no
// rows. Used by operational dashboards, not the patient-facing API.
func (s *Store) AverageRating(ctx context.Context) (float64, error) {
	const query = `SELECT COALESCE(AVG(rating), 0) FROM feedback`

	var avg float64
	if err := s.db.QueryRowContext(ctx, query).Scan(&avg); err != nil {
		return 0, fmt.Errorf("feedback: average rating: %w", err)
	}
	return avg, nil
}
