// Package notify delivers user-facing cart error messages.
package notify

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Notifier reports a human-readable message to the user. Delivery is fire-and-forget.
type Notifier interface {
	ReportError(msg string)
}

// Log writes notifications as warn entries.
type Log struct {
	log logrus.FieldLogger
}

func NewLog(log logrus.FieldLogger) *Log {
	return &Log{log: log}
}

func (l *Log) ReportError(msg string) {
	l.log.WithField("notification", true).Warn(msg)
}

// Multi fans a notification out to every wrapped notifier.
type Multi []Notifier

func (m Multi) ReportError(msg string) {
	for _, n := range m {
		n.ReportError(msg)
	}
}

// Notification is a reported message with the time it was received.
type Notification struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Recorder keeps the last N notifications, newest last.
type Recorder struct {
	mu    sync.RWMutex
	limit int
	items []Notification
}

func NewRecorder(limit int) *Recorder {
	if limit <= 0 {
		limit = 1
	}
	return &Recorder{limit: limit}
}

func (r *Recorder) ReportError(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, Notification{Message: msg, At: time.Now()})
	if over := len(r.items) - r.limit; over > 0 {
		r.items = append([]Notification(nil), r.items[over:]...)
	}
}

// Recent returns a copy of the retained notifications.
func (r *Recorder) Recent() []Notification {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Notification{}, r.items...)
}
