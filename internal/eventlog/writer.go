// Package eventlog archives agent events as hourly rotated, zstd-compressed
// JSON lines.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/npcsim/internal/agents"
)

// JSONLZstdWriter appends JSON values, one per line, to a compressed file
// per UTC hour.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Flush pushes buffered lines through the encoder.
func (w *JSONLZstdWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Record is one archived event line.
type Record struct {
	Wall    time.Time `json:"wall"`
	At      float64   `json:"at"` // simulated seconds
	AgentID string    `json:"agent_id"`
	Agent   string    `json:"agent"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
}

// Sink archives agent events. Write errors are logged once and the sink
// keeps trying on later events.
type Sink struct {
	w *JSONLZstdWriter

	mu     sync.Mutex
	failed bool
}

// NewSink archives under dir/events-YYYY-MM-DD-HH.jsonl.zst.
func NewSink(dir string) *Sink {
	return &Sink{w: NewJSONLZstdWriter(dir, "events")}
}

func (s *Sink) Publish(ev agents.Event) {
	err := s.w.Write(Record{
		Wall:    s.w.now().UTC(),
		At:      ev.At.Seconds(),
		AgentID: string(ev.AgentID),
		Agent:   ev.Agent,
		Kind:    string(ev.Kind),
		Message: ev.Message,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err != nil && !s.failed:
		slog.Warn("event log write failed", "error", err)
		s.failed = true
	case err == nil:
		s.failed = false
	}
}

func (s *Sink) Flush() error { return s.w.Flush() }
func (s *Sink) Close() error { return s.w.Close() }
