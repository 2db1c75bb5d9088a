package assignments

import "time"

// Status values for an audit assignment.
const (
	StatusPending   = "pending"
	StatusInReview  = "in_review"
	StatusCompleted = "completed"
)

// Assignment is a recorded call handed to a QA reviewer for scoring.
type Assignment struct {
	ID           int64
	CallRef      string
	AgentName    string
	ReviewerID   int64
	ReviewerName string
	RubricID     int64
	RubricName   string
	DueDate      time.Time
	Status       string
	CreatedBy    int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ListFilters narrows assignment listings.
type ListFilters struct {
	Status     string
	ReviewerID int64
}
