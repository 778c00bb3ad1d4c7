// Package events provides an in-process bus for task lifecycle events
package events

import (
	"context"
	"sync"

	"github.com/labmate/labmate/internal/logger"
)

// EventType represents the type of lifecycle event
type EventType string

const (
	// EventTaskRunning is emitted when a Job or AITask enters running
	EventTaskRunning EventType = "task_running"
	// EventTaskCompleted is emitted when a Job or AITask completes with evidence
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed is emitted when a Job or AITask fails
	EventTaskFailed EventType = "task_failed"
	// EventAIJobCompleted is emitted once every task of an AI job is terminal
	EventAIJobCompleted EventType = "ai_job_completed"
	// EventReportComposed is emitted after a report has been stored
	EventReportComposed EventType = "report_composed"
	// EventChannelSize is the buffer size for the event channel
	EventChannelSize = 100
)

// Event represents a lifecycle event
type Event struct {
	Type      EventType // The type of event
	UploadID  uint      // The upload the record belongs to
	JobID     uint      // The Job, for the plain pipeline
	AIJobID   uint      // The AI job, for the AI pipeline
	TaskKey   string    // The AI task key
	TaskIndex int       // The task index within the document
	ReportID  uint      // The report, for report_composed
	Message   string    // Error message or short summary
}

// Handler is a function that handles an event
type Handler func(context.Context, Event) error

var (
	// handlers is a map of event types to their handlers
	handlers = make(map[EventType][]Handler)
	// handlersMu is a mutex for the handlers map
	handlersMu sync.RWMutex
	// eventChan is a channel for events
	eventChan = make(chan Event, EventChannelSize)
)

// Subscribe registers a handler for a specific event type
func Subscribe(eventType EventType, handler Handler) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	handlers[eventType] = append(handlers[eventType], handler)
	logger.Debugf("Registered handler for event type: %s", eventType)
}

// Publish queues an event without blocking. Events are dropped when the
// buffer is full.
func Publish(event Event) {
	select {
	case eventChan <- event:
		logger.Debugf("Published event: %s (task %d %s)", event.Type, event.TaskIndex, event.TaskKey)
	default:
		logger.Warnf("Dropped event %s: event buffer full", event.Type)
	}
}

// Start starts the event processing loop. The returned stop function ends
// the loop once every queued event has been handled; cancelling ctx does the
// same without waiting.
func Start(ctx context.Context) (stop func()) {
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		processEvents(loopCtx)
	}()
	logger.Debug("Started event processing loop")
	return func() {
		cancel()
		<-done
	}
}

// processEvents dispatches events in publish order; handlers of one event run
// one after another. Events still queued when ctx is done are dispatched
// before it returns.
func processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			drain(context.WithoutCancel(ctx))
			logger.Debug("Stopping event processing loop")
			return
		case event := <-eventChan:
			dispatch(ctx, event)
		}
	}
}

func drain(ctx context.Context) {
	for {
		select {
		case event := <-eventChan:
			dispatch(ctx, event)
		default:
			return
		}
	}
}

func dispatch(ctx context.Context, event Event) {
	handlersMu.RLock()
	eventHandlers := handlers[event.Type]
	handlersMu.RUnlock()

	for _, handler := range eventHandlers {
		if err := handler(ctx, event); err != nil {
			logger.Errorf("Failed to handle event %s: %v", event.Type, err)
		}
	}
}
