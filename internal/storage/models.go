package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrAmbiguous is returned when a run id prefix matches more than one run.
var ErrAmbiguous = errors.New("ambiguous id")

// Run is one stored batch run.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	JobCount   int
	Succeeded  int
	Failed     int
	NoResults  int
	// AverageScore is nil when no job reported a score.
	AverageScore *float64
}

// RunOutcome is the stored result of one job within a run.
type RunOutcome struct {
	RunID      string
	Position   int
	ConfigPath string
	Query      string
	Status     string
	Stage      string
	Error      string
	ObjectIDs  []string // JSON array stored as text
	Response   string   // raw evaluator JSON
	DurationMs int64
}
