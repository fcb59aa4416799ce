// Package analytics dispatches usage events to registered sinks.
//
// Dispatch is fire-and-forget: Publish stamps the event, hands it to a
// buffered worker, and returns immediately. A full buffer drops the
// event rather than blocking the request path. OSS ships the log sink
// and the webhook sink (HTTP POST with optional HMAC-SHA256 signing).
package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/easygenie/orchestrator/pkg/models"
)

// Sink receives analytics events. Send errors are logged, never
// propagated to the request path.
type Sink interface {
	Name() string
	Send(ctx context.Context, event *models.Event) error
}

const (
	bufferSize  = 256
	sendTimeout = 15 * time.Second
	workerDrain = 5 * time.Second
)

// Service fans events out to every registered sink.
type Service struct {
	mu    sync.RWMutex
	sinks []Sink

	events    chan *models.Event
	closeOnce sync.Once
	done      chan struct{}
}

// NewService creates the dispatch service and starts its worker.
func NewService() *Service {
	s := &Service{
		events: make(chan *models.Event, bufferSize),
		done:   make(chan struct{}),
	}
	go s.worker()
	return s
}

// RegisterSink adds a sink.
func (s *Service) RegisterSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
	log.Info().Str("sink", sink.Name()).Msg("Registered analytics sink")
}

// Publish queues an event. Never blocks; a full buffer drops the
// event with a log line.
func (s *Service) Publish(event *models.Event) {
	if event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	select {
	case s.events <- event:
	default:
		log.Warn().Str("kind", string(event.Kind)).Msg("Analytics buffer full, event dropped")
	}
}

// worker drains the event channel, dispatching to all sinks
// concurrently per event.
func (s *Service) worker() {
	for {
		select {
		case <-s.done:
			// Drain what is already queued, bounded.
			deadline := time.After(workerDrain)
			for {
				select {
				case e := <-s.events:
					s.dispatch(e)
				case <-deadline:
					return
				default:
					return
				}
			}
		case e := <-s.events:
			s.dispatch(e)
		}
	}
}

func (s *Service) dispatch(event *models.Event) {
	s.mu.RLock()
	sinks := make([]Sink, len(s.sinks))
	copy(sinks, s.sinks)
	s.mu.RUnlock()

	var wg sync.WaitGroup
	for _, sink := range sinks {
		wg.Add(1)
		go func(snk Sink) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			if err := snk.Send(ctx, event); err != nil {
				log.Warn().Err(err).Str("sink", snk.Name()).Str("kind", string(event.Kind)).Msg("Analytics send failed")
			}
		}(sink)
	}
	wg.Wait()
}

// Close stops the worker after a bounded drain.
func (s *Service) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// ── Log sink ─────────────────────────────────────────────────

// LogSink writes events to the structured log. Always registered so
// every deployment has at least one sink.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Send(_ context.Context, event *models.Event) error {
	log.Info().
		Str("kind", string(event.Kind)).
		Str("tool", event.Tool).
		Str("operation", event.Operation).
		Str("provider", string(event.Provider)).
		Str("mode", string(event.Mode)).
		Fields(event.Fields).
		Msg("Analytics event")
	return nil
}
