package evaluations

import "time"

// Score bounds for a single criterion. Reviewers rate each criterion on a
// five point scale.
const (
	MinScoreValue = 0
	MaxScoreValue = 5
)

// Evaluation is a completed scorecard for one assignment.
type Evaluation struct {
	ID           int64
	AssignmentID int64
	ReviewerID   int64
	ReviewerName string
	CallRef      string
	AgentName    string
	RubricID     int64
	RubricName   string
	Total        float64
	Notes        string
	Scores       []Score
	CreatedAt    time.Time
}

// Score is the rating of one rubric criterion.
type Score struct {
	ID             int64
	EvaluationID   int64
	CriterionID    int64
	CriterionLabel string
	Weight         int
	Value          int
	Comment        string
}
