// Package event carries structured warnings and errors from the control path
// to a caller-supplied sink. The core never configures process-wide logging.
package event

import (
	"fmt"
	"log"
	"time"

	"github.com/gwillem/roarm/pkg/units"
)

// Level is the severity of an event.
type Level int8

const (
	Info Level = iota
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Code identifies what happened, independent of the message text.
type Code string

const (
	CodeRangeClamp   Code = "range_clamp"
	CodeRateLimit    Code = "rate_limit"
	CodeUnknownJoint Code = "unknown_joint"
	CodeCycleSkipped Code = "cycle_skipped"
	CodeBridgeState  Code = "bridge_state"
	CodeTorque       Code = "torque"
	CodeConnection   Code = "connection"
)

// Event is one structured occurrence on the control path.
type Event struct {
	Time    time.Time
	Level   Level
	Code    Code
	Joint   units.JointName // empty when not joint-specific
	Session string          // teleoperation session ID, empty otherwise
	Message string
}

func (e Event) String() string {
	s := fmt.Sprintf("[%s] %s", e.Level, e.Code)
	if e.Joint != "" {
		s += fmt.Sprintf(" joint=%s", e.Joint)
	}
	if e.Session != "" {
		s += fmt.Sprintf(" session=%s", e.Session)
	}
	return s + ": " + e.Message
}

// Sink receives events. Emit must not block the control loop.
type Sink interface {
	Emit(Event)
}

// Discard drops all events.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(Event) {}

// ChannelSink buffers events on a channel, dropping the oldest when full so
// a slow consumer never stalls the control loop.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = 16
	}
	return &ChannelSink{ch: make(chan Event, size)}
}

// Events returns the receive side of the sink.
func (s *ChannelSink) Events() <-chan Event {
	return s.ch
}

func (s *ChannelSink) Emit(e Event) {
	select {
	case s.ch <- e:
	default:
		select {
		case <-s.ch:
		default:
		}
		select {
		case s.ch <- e:
		default:
		}
	}
}

// LogSink writes events to a standard library logger.
type LogSink struct {
	l *log.Logger
}

// NewLogSink wraps a *log.Logger as a sink.
func NewLogSink(l *log.Logger) *LogSink {
	return &LogSink{l: l}
}

func (s *LogSink) Emit(e Event) {
	s.l.Print(e.String())
}

// Emitf builds and emits an event in one call.
func Emitf(sink Sink, level Level, code Code, joint units.JointName, format string, args ...any) {
	if sink == nil {
		return
	}
	sink.Emit(Event{
		Time:    time.Now(),
		Level:   level,
		Code:    code,
		Joint:   joint,
		Message: fmt.Sprintf(format, args...),
	})
}
