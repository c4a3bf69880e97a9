package pipeline

import "time"

// Report is the terminal artifact of a batch run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	// Outcomes are in job definition order.
	Outcomes []Outcome
}

func (r Report) count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Succeeded returns the number of SUCCESS outcomes.
func (r Report) Succeeded() int { return r.count(StatusSuccess) }

// Failed returns the number of FAILED outcomes.
func (r Report) Failed() int { return r.count(StatusFailed) }

// NoResults returns the number of NO_RESULTS outcomes.
func (r Report) NoResults() int { return r.count(StatusNoResults) }

// AverageScore is the mean average_final_score over successful jobs that
// reported one. ok is false when none did.
func (r Report) AverageScore() (avg float64, ok bool) {
	var sum float64
	n := 0
	for _, o := range r.Outcomes {
		if o.Status != StatusSuccess {
			continue
		}
		if s, has := o.Response.AverageFinalScore(); has {
			sum += s
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}
