package rubrics

import "time"

// Rubric is a configurable scoring template for call audits.
type Rubric struct {
	ID          int64
	Name        string
	Description string
	Active      bool
	Criteria    []Criterion
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Criterion is one weighted line of a rubric. Weights across a rubric sum
// to 100.
type Criterion struct {
	ID       int64
	RubricID int64
	Label    string
	Weight   int
}
