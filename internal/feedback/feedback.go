// Package feedback reports the progress and outcome of document operations
// to whoever is watching: a test recorder, the log, or an HTTP response.
package feedback

import (
	"context"
	"sync"

	"clinicrx/internal/shared/telemetry"
)

// Kind classifies a notification.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
)

// Sink receives user-facing notifications and the busy indicator state.
type Sink interface {
	Notify(message string, kind Kind)
	ShowBusy(message string)
	HideBusy()
}

// Track runs fn between ShowBusy and HideBusy. HideBusy is called whether fn
// succeeds, fails or panics. On failure the sink is notified with
// failurePrefix followed by the error text and the error is returned as is.
func Track[T any](ctx context.Context, sink Sink, busyMessage, failurePrefix string, fn func(context.Context) (T, error)) (T, error) {
	if sink == nil {
		sink = Discard
	}
	sink.ShowBusy(busyMessage)
	defer sink.HideBusy()

	out, err := fn(ctx)
	if err != nil {
		sink.Notify(failurePrefix+err.Error(), KindError)
		var zero T
		return zero, err
	}
	return out, nil
}

// Notification is one recorded Notify call.
type Notification struct {
	Message string `json:"message"`
	Kind    Kind   `json:"kind"`
}

// Recorder keeps notifications in memory. Busy state is a depth counter so
// overlapping operations cannot hide each other's indicator.
type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
	depth         int
	busyMessage   string
	shown         int
}

func (r *Recorder) Notify(message string, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, Notification{Message: message, Kind: kind})
}

func (r *Recorder) ShowBusy(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.depth++
	r.shown++
	r.busyMessage = message
}

func (r *Recorder) HideBusy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.depth > 0 {
		r.depth--
	}
	if r.depth == 0 {
		r.busyMessage = ""
	}
}

// Busy reports whether the indicator is visible and the last busy message.
func (r *Recorder) Busy() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.depth > 0, r.busyMessage
}

// BusyShown counts ShowBusy calls.
func (r *Recorder) BusyShown() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shown
}

// Notifications returns a copy of everything recorded so far.
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

// LogSink writes notifications to the telemetry log.
type LogSink struct {
	Fields map[string]any
}

func (s LogSink) fields(extra map[string]any) map[string]any {
	out := make(map[string]any, len(s.Fields)+len(extra))
	for k, v := range s.Fields {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (s LogSink) Notify(message string, kind Kind) {
	fields := s.fields(map[string]any{"kind": string(kind)})
	switch kind {
	case KindError:
		telemetry.Error(message, fields)
	case KindWarning:
		telemetry.Warn(message, fields)
	default:
		telemetry.Info(message, fields)
	}
}

func (s LogSink) ShowBusy(message string) {
	telemetry.Debug("busy", s.fields(map[string]any{"busy_message": message}))
}

func (s LogSink) HideBusy() {
	telemetry.Debug("idle", s.fields(nil))
}

// Multi fans every call out to each sink in order.
type Multi []Sink

func (m Multi) Notify(message string, kind Kind) {
	for _, s := range m {
		s.Notify(message, kind)
	}
}

func (m Multi) ShowBusy(message string) {
	for _, s := range m {
		s.ShowBusy(message)
	}
}

func (m Multi) HideBusy() {
	for _, s := range m {
		s.HideBusy()
	}
}

type discard struct{}

func (discard) Notify(string, Kind) {}
func (discard) ShowBusy(string)     {}
func (discard) HideBusy()           {}

// Discard drops everything.
var Discard Sink = discard{}
