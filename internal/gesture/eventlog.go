package gesture

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/dreamup/touchbot/internal/agent"
)

// LogWriter appends event batches to an EventLog file, one JSON array per line.
type LogWriter struct {
	mu   sync.Mutex
	f    *os.File
	path string
}

// CreateEventLog creates a new log inside dir. The name carries the start
// time and a uuid, and the file must not exist yet.
func CreateEventLog(dir string) (*LogWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, agent.NewStorageError("create event log dir", err)
	}
	name := fmt.Sprintf("events_%s_%s.jsonl", time.Now().Format("20060102_150405"), uuid.NewString())
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, agent.NewStorageError("create event log", err)
	}
	return &LogWriter{f: f, path: path}, nil
}

// Path returns the file path of the log.
func (w *LogWriter) Path() string {
	return w.path
}

// AppendBatch writes events as a single line and syncs it to disk.
func (w *LogWriter) AppendBatch(events []PointerEvent) error {
	line, err := json.Marshal(events)
	if err != nil {
		return agent.NewStorageError("encode event batch", err)
	}
	line = append(line, '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(line); err != nil {
		return agent.NewStorageError("append event batch", err)
	}
	if err := w.f.Sync(); err != nil {
		return agent.NewStorageError("sync event log", err)
	}
	return nil
}

// Close closes the underlying file.
func (w *LogWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// LogStats describes what ReadEventLog accepted.
type LogStats struct {
	Lines  int
	Events int
	// Skipped counts lines that were not JSON arrays.
	Skipped int
	// Dropped counts malformed events inside otherwise readable lines.
	Dropped int
}

// ReadEventLog reads every batch in r and flattens them in order. Lines that
// are not complete JSON arrays, such as a line cut short by a crash, are
// skipped and counted; unreadable events inside a line are dropped and
// counted separately.
func ReadEventLog(r io.Reader) ([]PointerEvent, LogStats, error) {
	var (
		events []PointerEvent
		stats  LogStats
	)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadBytes('\n')
		if len(line) > 0 {
			stats.Lines++
			batch, dropped, ok := parseBatch(line)
			stats.Dropped += dropped
			if ok {
				events = append(events, batch...)
			} else if len(bytes.TrimSpace(line)) > 0 {
				stats.Skipped++
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return events, stats, agent.NewStorageError("read event log", err)
		}
	}
	stats.Events = len(events)
	return events, stats, nil
}

// ReadEventLogFile is ReadEventLog on a file path.
func ReadEventLogFile(path string) ([]PointerEvent, LogStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LogStats{}, agent.NewStorageError("open event log", err)
	}
	defer f.Close()
	return ReadEventLog(f)
}

// parseBatch reads one line. The line must be a complete JSON array;
// elements without a known type or numeric x and y are dropped on their own
// so one malformed event does not cost the rest of its batch.
func parseBatch(line []byte) (batch []PointerEvent, dropped int, ok bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 || !gjson.ValidBytes(line) {
		return nil, 0, false
	}
	arr := gjson.ParseBytes(line)
	if !arr.IsArray() {
		return nil, 0, false
	}
	arr.ForEach(func(_, el gjson.Result) bool {
		e, valid := eventFrom(el)
		if valid {
			batch = append(batch, e)
		} else {
			dropped++
		}
		return true
	})
	return batch, dropped, true
}

func eventFrom(el gjson.Result) (PointerEvent, bool) {
	if !el.IsObject() {
		return PointerEvent{}, false
	}
	kind, err := ParseKind(el.Get("type").String())
	if err != nil {
		return PointerEvent{}, false
	}
	x, y := el.Get("x"), el.Get("y")
	if x.Type != gjson.Number || y.Type != gjson.Number {
		return PointerEvent{}, false
	}
	return PointerEvent{Type: kind, X: x.Float(), Y: y.Float(), Timestamp: el.Get("timestamp").Int()}, true
}
