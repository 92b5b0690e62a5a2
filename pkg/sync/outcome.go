package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/wooconduit/conduit/pkg/models"
)

// Action names what a sync run did to an entity
type Action string

const (
	// ActionPulled means the local side was updated from the remote record
	ActionPulled Action = "pulled"
	// ActionPushed means the remote record was updated from the local side
	ActionPushed Action = "pushed"
	// ActionCreated means a local entity was created from the remote record
	ActionCreated Action = "created"
	// ActionSkipped means the pair was already reconciled or filtered out
	ActionSkipped Action = "skipped"
	// ActionFailed means the run errored
	ActionFailed Action = "failed"
)

// Outcome is the result of one sync run for one entity
type Outcome struct {
	Identity string
	Resource models.SyncResource
	Action   Action
	RunID    string
	Error    error
	Duration time.Duration
}

// Failed reports whether the run errored
func (o *Outcome) Failed() bool {
	return o.Error != nil
}

// BatchReport collects per-record outcomes from one polling pass
type BatchReport struct {
	RunID    string
	ServerID uuid.UUID
	Resource models.SyncResource

	StartedAt   time.Time
	CompletedAt time.Time

	Outcomes []Outcome
}

// Add records one outcome on the report
func (r *BatchReport) Add(outcome Outcome) {
	r.Outcomes = append(r.Outcomes, outcome)
}

// Processed returns the total number of records the pass touched
func (r *BatchReport) Processed() int {
	return len(r.Outcomes)
}

// Succeeded counts outcomes that pulled, pushed or created
func (r *BatchReport) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Failed() && o.Action != ActionSkipped {
			n++
		}
	}
	return n
}

// Skipped counts already-reconciled or filtered records
func (r *BatchReport) Skipped() int {
	n := 0
	for _, o := range r.Outcomes {
		if !o.Failed() && o.Action == ActionSkipped {
			n++
		}
	}
	return n
}

// Failed counts errored records
func (r *BatchReport) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Failed() {
			n++
		}
	}
	return n
}
