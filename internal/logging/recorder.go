package logging

import (
	"context"
	"strings"
	"sync"
)

// Entry is a single captured log line.
type Entry struct {
	Level  string
	Msg    string
	Fields map[string]any
}

// Recorder is a Logger that keeps every entry in memory. Loggers derived with
// With share the same entry list.
type Recorder struct {
	sink   *recordSink
	fields []Field
}

type recordSink struct {
	mu      sync.Mutex
	entries []Entry
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{sink: &recordSink{}}
}

// Entries returns a copy of the captured entries in order.
func (r *Recorder) Entries() []Entry {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	return append([]Entry(nil), r.sink.entries...)
}

// Contains reports whether an entry at level has a message containing substr.
func (r *Recorder) Contains(level, substr string) bool {
	for _, e := range r.Entries() {
		if e.Level == level && strings.Contains(e.Msg, substr) {
			return true
		}
	}
	return false
}

// Reset drops all captured entries.
func (r *Recorder) Reset() {
	r.sink.mu.Lock()
	r.sink.entries = nil
	r.sink.mu.Unlock()
}

func (r *Recorder) With(fields ...Field) Logger {
	merged := append(append([]Field(nil), r.fields...), fields...)
	return &Recorder{sink: r.sink, fields: merged}
}

func (r *Recorder) Debug(_ context.Context, msg string, fields ...Field) {
	r.record("debug", msg, fields)
}

func (r *Recorder) Info(_ context.Context, msg string, fields ...Field) {
	r.record("info", msg, fields)
}

func (r *Recorder) Warn(_ context.Context, msg string, fields ...Field) {
	r.record("warn", msg, fields)
}

func (r *Recorder) Error(_ context.Context, msg string, fields ...Field) {
	r.record("error", msg, fields)
}

func (r *Recorder) record(level, msg string, fields []Field) {
	e := Entry{Level: level, Msg: msg, Fields: make(map[string]any, len(r.fields)+len(fields))}
	for _, f := range r.fields {
		e.Fields[f.Key] = f.Value
	}
	for _, f := range fields {
		e.Fields[f.Key] = f.Value
	}
	r.sink.mu.Lock()
	r.sink.entries = append(r.sink.entries, e)
	r.sink.mu.Unlock()
}
