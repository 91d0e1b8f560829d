package core

import (
	"context"
	"sync"
	"time"

	"github.com/agenthands/cardgraph/internal/core/model"
)

type MockNotifier struct {
	mu        sync.Mutex
	Err       error
	Updates   []model.Progress
	Completed []*model.ExtractionResult
}

func (m *MockNotifier) Progress(ctx context.Context, p model.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Updates = append(m.Updates, p)
	return m.Err
}

func (m *MockNotifier) Complete(ctx context.Context, cardID string, result *model.ExtractionResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completed = append(m.Completed, result)
	return m.Err
}

// StageStatus returns the status reported for stage, or "" if none was.
func (m *MockNotifier) StageStatus(stage Stage) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.Updates {
		if p.Stage == string(stage) {
			return p.Status
		}
	}
	return ""
}

type MockObserver struct {
	mu     sync.Mutex
	Stages []string
	Runs   []string
}

func (m *MockObserver) ObserveStage(stage, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Stages = append(m.Stages, stage+":"+status)
}

func (m *MockObserver) ObserveRun(status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Runs = append(m.Runs, status)
}
