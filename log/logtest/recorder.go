/*
Copyright © 2025 Velum Labs GmbH.

Released under MIT license.
*/

package logtest

import (
	"sync"
	"time"

	"github.com/ssgreg/logf"

	"github.com/velumlabs/go-basekit/log"
)

// RecordedEntry is one captured log record.
type RecordedEntry struct {
	LoggerName string
	Fields     []log.Field
	Level      log.Level
	Time       time.Time
	Text       string
}

// FindField returns the entry's field with the given key, if present.
func (re *RecordedEntry) FindField(key string) (*log.Field, bool) {
	for i := range re.Fields {
		if re.Fields[i].Key == key {
			return &re.Fields[i], true
		}
	}
	return nil, false
}

// entrySink accumulates logged entries. It is shared between a Recorder and
// all of its With/WithLevel derivatives, so every entry lands in one place.
type entrySink struct {
	mu      sync.RWMutex
	entries []RecordedEntry
}

//nolint:gocritic
func (s *entrySink) WriteEntry(e logf.Entry) {
	fields := make([]log.Field, 0, len(e.Fields)+len(e.DerivedFields))
	fields = append(fields, e.Fields...)
	fields = append(fields, e.DerivedFields...)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, RecordedEntry{
		LoggerName: e.LoggerName,
		Fields:     fields,
		Level:      recordedLevel(e.Level),
		Time:       e.Time,
		Text:       e.Text,
	})
}

func (s *entrySink) filtered(keep func(RecordedEntry) bool) []RecordedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []RecordedEntry
	for _, entry := range s.entries {
		if keep(entry) {
			res = append(res, entry)
		}
	}
	return res
}

// Recorder is a log.FieldLogger that keeps every entry it receives,
// letting tests assert on what was logged.
type Recorder struct {
	*log.LogfAdapter
	sink *entrySink
}

// NewRecorder creates a Recorder ready to capture entries.
func NewRecorder() *Recorder {
	sink := &entrySink{}
	return &Recorder{
		LogfAdapter: &log.LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, sink)},
		sink:        sink,
	}
}

// With returns a Recorder whose entries carry the additional fields.
func (r *Recorder) With(fs ...log.Field) log.FieldLogger {
	return &Recorder{r.LogfAdapter.With(fs...).(*log.LogfAdapter), r.sink}
}

// WithLevel returns a new Recorder with an additional level check
// (see log.LogfAdapter.WithLevel).
func (r *Recorder) WithLevel(level log.Level) log.FieldLogger {
	return &Recorder{r.LogfAdapter.WithLevel(level).(*log.LogfAdapter), r.sink}
}

// Entries returns a snapshot of everything captured so far.
func (r *Recorder) Entries() []RecordedEntry {
	r.sink.mu.RLock()
	defer r.sink.mu.RUnlock()
	return append([]RecordedEntry{}, r.sink.entries...)
}

// FindEntry returns the first captured entry with the given message.
func (r *Recorder) FindEntry(msg string) (RecordedEntry, bool) {
	return r.FindEntryByFilter(func(entry RecordedEntry) bool {
		return entry.Text == msg
	})
}

// FindEntryByFilter returns the first captured entry accepted by the filter.
func (r *Recorder) FindEntryByFilter(filter func(entry RecordedEntry) bool) (RecordedEntry, bool) {
	if found := r.sink.filtered(filter); len(found) != 0 {
		return found[0], true
	}
	return RecordedEntry{}, false
}

// FindAllEntriesByFilter returns every captured entry accepted by the filter.
func (r *Recorder) FindAllEntriesByFilter(filter func(entry RecordedEntry) bool) []RecordedEntry {
	return r.sink.filtered(filter)
}

// Reset discards everything captured so far.
func (r *Recorder) Reset() {
	r.sink.mu.Lock()
	defer r.sink.mu.Unlock()
	r.sink.entries = nil
}

func recordedLevel(value logf.Level) log.Level {
	switch value {
	case logf.LevelDebug:
		return log.LevelDebug
	case logf.LevelWarn:
		return log.LevelWarn
	case logf.LevelError:
		return log.LevelError
	default:
		return log.LevelInfo
	}
}
