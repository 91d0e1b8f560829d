// Package notify holds the consumers of pipeline progress: an in-memory job
// tracker polled over HTTP and a fan-out that feeds several notifiers.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/agenthands/cardgraph/internal/core/model"
)

type JobState string

const (
	JobQueued  JobState = "queued"
	JobRunning JobState = "running"
	JobDone    JobState = "done"
	JobFailed  JobState = "failed"
)

var ErrJobRunning = errors.New("extraction already running for card")

// Job is the last known state of a card's extraction.
type Job struct {
	CardID     string        `json:"card_id"`
	State      JobState      `json:"state"`
	Stage      string        `json:"stage,omitempty"`
	Index      int           `json:"index"`
	Total      int           `json:"total"`
	Status     string        `json:"stage_status,omitempty"`
	Counts     *model.Counts `json:"counts,omitempty"`
	Errors     []string      `json:"errors"`
	Error      string        `json:"error,omitempty"`
	QueuedAt   time.Time     `json:"queued_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
}

type Tracker struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{jobs: make(map[string]*Job), now: time.Now}
}

// Enqueue registers a new run for cardID. It fails with ErrJobRunning while a
// previous run is still queued or running.
func (t *Tracker) Enqueue(cardID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if j, ok := t.jobs[cardID]; ok && (j.State == JobQueued || j.State == JobRunning) {
		return ErrJobRunning
	}
	t.jobs[cardID] = &Job{
		CardID:   cardID,
		State:    JobQueued,
		Errors:   []string{},
		QueuedAt: t.now(),
	}
	return nil
}

func (t *Tracker) Progress(_ context.Context, p model.Progress) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	j := t.job(p.CardID)
	j.State = JobRunning
	j.Stage = p.Stage
	j.Index = p.Index
	j.Total = p.Total
	j.Status = p.Status
	return nil
}

func (t *Tracker) Complete(_ context.Context, cardID string, result *model.ExtractionResult) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	j := t.job(cardID)
	j.State = JobDone
	if result != nil {
		counts := result.Counts()
		j.Counts = &counts
		j.Errors = append([]string{}, result.Errors...)
	}
	now := t.now()
	j.FinishedAt = &now
	return nil
}

// Fail records a run that ended with an error instead of a result.
func (t *Tracker) Fail(cardID string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j := t.job(cardID)
	j.State = JobFailed
	if err != nil {
		j.Error = err.Error()
	}
	now := t.now()
	j.FinishedAt = &now
}

func (t *Tracker) Get(cardID string) (Job, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	j, ok := t.jobs[cardID]
	if !ok {
		return Job{}, false
	}
	out := *j
	out.Errors = append([]string{}, j.Errors...)
	return out, true
}

// job must be called with the lock held.
func (t *Tracker) job(cardID string) *Job {
	j, ok := t.jobs[cardID]
	if !ok {
		j = &Job{CardID: cardID, Errors: []string{}, QueuedAt: t.now()}
		t.jobs[cardID] = j
	}
	return j
}
