// Package notify delivers operator notifications about index rebuilds.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Aman-CERP/wikisearch/internal/logging"
)

// Event classifies a notification.
type Event string

const (
	EventPopulated Event = "populated"
	EventTimeout   Event = "timeout"
	EventFailed    Event = "failed"
)

// Stats are the timing figures reported with a rebuild outcome.
type Stats struct {
	Documents int
	Chunks    int
	Skipped   int
	Elapsed   time.Duration
}

// Message is one notification.
type Message struct {
	Event      Event
	Generation string
	Subject    string
	Body       string
}

// Sink delivers messages.
type Sink interface {
	Notify(ctx context.Context, msg Message) error
}

// Populated builds the success message for index.
func Populated(site, index string, st Stats) Message {
	return Message{
		Event:      EventPopulated,
		Generation: index,
		Subject:    fmt.Sprintf("[%s] Index %s completely populated", site, index),
		Body: fmt.Sprintf("Indexed %d documents in %d chunks (%d skipped) in %s.\n"+
			"You may want to promote it now.\n", st.Documents, st.Chunks, st.Skipped, st.Elapsed.Round(time.Second)),
	}
}

// TimedOut builds the soft time limit message for index.
func TimedOut(site, index string, limit time.Duration, st Stats) Message {
	return Message{
		Event:      EventTimeout,
		Generation: index,
		Subject:    fmt.Sprintf("[%s] Index %s population timed out", site, index),
		Body: fmt.Sprintf("Population ran longer than the soft limit of %s after %d documents. "+
			"Needs increasing?\nThe generation stays populating.\n", limit, st.Documents),
	}
}

// Failed builds the failure message for index.
func Failed(site, index string, cause error, st Stats) Message {
	return Message{
		Event:      EventFailed,
		Generation: index,
		Subject:    fmt.Sprintf("[%s] Index %s population failed", site, index),
		Body: fmt.Sprintf("Population stopped after %d documents in %s:\n\n%v\n",
			st.Documents, st.Elapsed.Round(time.Second), cause),
	}
}

// LogSink writes notifications to a logger.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logging.Default(logger).With("component", "notify")}
}

// Notify implements Sink.
func (s *LogSink) Notify(ctx context.Context, msg Message) error {
	level := slog.LevelInfo
	if msg.Event != EventPopulated {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, "operator_notification",
		slog.String("event", string(msg.Event)),
		slog.String("generation", msg.Generation),
		slog.String("subject", msg.Subject),
		slog.String("body", strings.TrimSpace(msg.Body)))
	return nil
}

// Multi delivers to every sink and joins their errors.
type Multi []Sink

// Notify implements Sink.
func (m Multi) Notify(ctx context.Context, msg Message) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
