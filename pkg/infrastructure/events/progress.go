package events

import (
	"fmt"
	"time"
)

// ProgressEventType is the stream event type carrying a ProgressEvent
const ProgressEventType = "step.progress"

// ProgressStatus is the lifecycle state reported for a step
type ProgressStatus string

const (
	ProgressRunning   ProgressStatus = "running"
	ProgressCompleted ProgressStatus = "completed"
	ProgressFailed    ProgressStatus = "failed"
)

// ProgressEvent is the notification emitted at each coordinator step
type ProgressEvent struct {
	RunID       string         `json:"run_id"`
	StepName    string         `json:"step_name"`
	Status      ProgressStatus `json:"status"`
	ProgressPct int            `json:"progress_pct"`
	Message     string         `json:"message"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ProgressPublisher delivers progress events to an external collaborator
type ProgressPublisher interface {
	Publish(event ProgressEvent) error
}

// StorePublisher appends progress events to an EventStore, one stream per run
type StorePublisher struct {
	store EventStore
}

// NewStorePublisher creates a publisher over the given store
func NewStorePublisher(store EventStore) *StorePublisher {
	return &StorePublisher{store: store}
}

var _ ProgressPublisher = (*StorePublisher)(nil)

func (p *StorePublisher) Publish(event ProgressEvent) error {
	if event.RunID == "" {
		return fmt.Errorf("progress event for step %s has no run id", event.StepName)
	}
	if err := p.store.AppendEvent(event.RunID, NewEvent(ProgressEventType, event.RunID, event, event.Timestamp)); err != nil {
		return fmt.Errorf("failed to append progress event: %w", err)
	}
	return nil
}

// ProgressEvents returns the progress events of one run in emission order
func ProgressEvents(store EventStore, runID string) ([]ProgressEvent, error) {
	stream, err := store.ReadEvents(runID, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read events for run %s: %w", runID, err)
	}
	progress := make([]ProgressEvent, 0, len(stream))
	for _, e := range stream {
		if e.Type() != ProgressEventType {
			continue
		}
		if pe, ok := e.Data().(ProgressEvent); ok {
			progress = append(progress, pe)
		}
	}
	return progress, nil
}

// NopPublisher discards progress events
type NopPublisher struct{}

func (NopPublisher) Publish(ProgressEvent) error { return nil }
