// Package logs emits structured dispatch events for operators: unresolved
// projects, unhandled webhooks, retries and give-ups. Emission is
// fire-and-forget; a failing sink never affects message processing.
package logs

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tidehook/tidehook/internal/broker"
)

// Emission is one structured dispatch event.
type Emission struct {
	Severity string         `json:"severity"`
	Project  string         `json:"project"`
	UUID     string         `json:"uuid"`
	Event    string         `json:"event"`
	Meta     map[string]any `json:"meta,omitempty"`
	Message  string         `json:"message"`
}

// Sink receives emissions. Implementations must never let a failure
// propagate to the caller.
type Sink interface {
	Emit(ctx context.Context, e Emission)
}

// StreamSink writes each emission to the local log and publishes it to the
// logs queue for the central log collector.
type StreamSink struct {
	publisher broker.Publisher
	queue     string
}

// NewStreamSink builds a sink publishing to the given logs queue. A nil
// publisher degrades to local logging only.
func NewStreamSink(publisher broker.Publisher, queue string) *StreamSink {
	return &StreamSink{publisher: publisher, queue: queue}
}

// Emit logs the emission and forwards it to the logs queue. Publish
// failures are logged and swallowed.
func (s *StreamSink) Emit(ctx context.Context, e Emission) {
	log.WithLevel(severityLevel(e.Severity)).
		Str("project", e.Project).
		Str("uuid", e.UUID).
		Str("event", e.Event).
		Msg(e.Message)

	if s.publisher == nil || s.queue == "" {
		return
	}

	body, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Str("event", e.Event).Msg("Encoding log emission failed")
		return
	}
	pub := broker.Publishing{
		Body:        body,
		ContentType: "application/json",
		AppID:       "tidehook",
		Timestamp:   time.Now(),
	}
	if err := s.publisher.Publish(ctx, s.queue, pub); err != nil {
		log.Error().Err(err).Str("event", e.Event).Msg("Publishing log emission failed")
	}
}

func severityLevel(severity string) zerolog.Level {
	switch severity {
	case "error":
		return zerolog.ErrorLevel
	case "warn":
		return zerolog.WarnLevel
	case "debug":
		return zerolog.DebugLevel
	default:
		return zerolog.InfoLevel
	}
}

// NopSink discards emissions.
type NopSink struct{}

func (NopSink) Emit(context.Context, Emission) {}

// Recorder is a Sink for tests; it stores every emission.
type Recorder struct {
	mu        sync.Mutex
	emissions []Emission
}

// NewRecorder returns an empty recording sink.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Emit(_ context.Context, e Emission) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emissions = append(r.emissions, e)
}

// Emissions returns everything emitted so far.
func (r *Recorder) Emissions() []Emission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Emission(nil), r.emissions...)
}

// ByEvent returns emissions carrying the given event tag.
func (r *Recorder) ByEvent(event string) []Emission {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Emission
	for _, e := range r.emissions {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
