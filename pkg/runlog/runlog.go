// Package runlog records the steps of one run. The log file is recreated
// at the start of every run, so it only ever describes the last one.
package runlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// Level is the severity of a notification.
type Level string

const (
	Debug   Level = "DEBUG"
	Info    Level = "INFO"
	Warning Level = "WARNING"
	Error   Level = "ERROR"
)

// Notifier receives human readable status lines.
type Notifier interface {
	Notify(level Level, msg string)
}

// Log writes timestamped lines to a file.
type Log struct {
	mu  sync.Mutex
	w   io.WriteCloser
	now func() time.Time
}

// Create truncates (or creates) the file at path and writes a header line.
func Create(path, header string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cannot create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot create run log: %w", err)
	}
	l := &Log{w: f, now: time.Now}
	if header != "" {
		if _, err := fmt.Fprintf(f, "# %s\n", header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return l, nil
}

// Notify appends one "timestamp LEVEL message" line. Write errors are
// reported on the console only.
func (l *Log) Notify(level Level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now().UTC().Format(time.RFC3339)
	if _, err := fmt.Fprintf(l.w, "%s %s %s\n", ts, level, msg); err != nil {
		klog.Warningf("cannot write run log: %v", err)
	}
}

func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}

// Console forwards notifications to klog.
type Console struct{}

func (Console) Notify(level Level, msg string) {
	switch level {
	case Debug:
		klog.V(1).InfoDepth(1, msg)
	case Warning:
		klog.WarningDepth(1, msg)
	case Error:
		klog.ErrorDepth(1, msg)
	default:
		klog.InfoDepth(1, msg)
	}
}

// Multi fans every notification out to all of its notifiers.
type Multi []Notifier

func (m Multi) Notify(level Level, msg string) {
	for _, n := range m {
		if n != nil {
			n.Notify(level, msg)
		}
	}
}

// Discard drops all notifications.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Level, string) {}

// Recorder keeps notifications in memory. It is meant for tests.
type Recorder struct {
	mu    sync.Mutex
	Lines []string
}

func (r *Recorder) Notify(level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Lines = append(r.Lines, fmt.Sprintf("%s %s", level, msg))
}
