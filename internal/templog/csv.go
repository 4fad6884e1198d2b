// Package templog appends accepted temperature readings to a CSV file so
// runs can be inspected or graphed after the fact.
package templog

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thermawatch/agent/internal/monitor"
	"github.com/thermawatch/agent/pkg/types"
)

var header = []string{"timestamp", "cpu", "gpu", "ssd"}

// Writer is a monitor sink that records each logged cycle as one CSV row.
// Absent readings leave their column empty.
type Writer struct {
	monitor.NoopSink

	log logrus.FieldLogger

	mu   sync.Mutex
	path string
}

// NewWriter builds a CSV writer for path. The file is created lazily on the
// first logged cycle.
func NewWriter(path string, log logrus.FieldLogger) *Writer {
	return &Writer{path: path, log: log}
}

// Path returns the file currently being appended to.
func (w *Writer) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// SetPath switches the target file. Takes effect on the next logged cycle.
func (w *Writer) SetPath(path string) {
	w.mu.Lock()
	w.path = path
	w.mu.Unlock()
}

// OnLog appends one row for the cycle. Errors are logged, not returned; a
// full disk must not take the monitor loop down.
func (w *Writer) OnLog(ts time.Time, snap types.Snapshot) {
	if err := w.append(ts, snap); err != nil {
		w.log.WithError(err).Warn("temperature log write failed")
	}
}

func (w *Writer) append(ts time.Time, snap types.Snapshot) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}

	_, statErr := os.Stat(w.path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open temperature log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if fresh {
		if err := cw.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if err := cw.Write(row(ts, snap)); err != nil {
		return fmt.Errorf("write row: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

func row(ts time.Time, snap types.Snapshot) []string {
	rec := []string{ts.Format(time.RFC3339), "", "", ""}
	for i, dev := range []types.Device{types.DeviceCPU, types.DeviceGPU, types.DeviceSSD} {
		if r, ok := snap[dev]; ok && r.Valid {
			rec[i+1] = types.FormatCelsius(r.Value)
		}
	}
	return rec
}
