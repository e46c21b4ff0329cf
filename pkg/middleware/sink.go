package middleware

import (
	"github.com/gt8004/gt8004-go/pkg/telemetry"
	"github.com/rs/zerolog"
)

// Sink receives captured entries. Implementations must return quickly: the
// call happens on the request goroutine.
type Sink interface {
	Enqueue(entry telemetry.LogEntry)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(entry telemetry.LogEntry)

func (f SinkFunc) Enqueue(entry telemetry.LogEntry) { f(entry) }

type multiSink []Sink

func (m multiSink) Enqueue(entry telemetry.LogEntry) {
	for _, s := range m {
		s.Enqueue(entry)
	}
}

// Sinks fans one entry out to every non-nil sink in order.
func Sinks(sinks ...Sink) Sink {
	out := make(multiSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// emit hands the entry to the sink and contains any panic so that the
// request path never sees it.
func emit(sink Sink, entry telemetry.LogEntry, log zerolog.Logger) {
	defer func() {
		if p := recover(); p != nil {
			sinkPanics.Inc()
			log.Error().Interface("panic", p).Str("request_id", entry.RequestID).Msg("log sink panicked")
		}
	}()
	sink.Enqueue(entry)
}
