package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const flushTimeout = 5 * time.Second

// NATSEmitter publishes JSON events on "<prefix>.<platform>.<type>".
type NATSEmitter struct {
	conn          *nats.Conn
	subjectPrefix string
	log           *slog.Logger
}

// Connect dials NATS and returns an emitter owning the connection.
func Connect(url, subjectPrefix string, log *slog.Logger) (*NATSEmitter, error) {
	if log == nil {
		log = slog.Default()
	}
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url,
		nats.Name("pricewatch"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("Disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("Reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("NATS error", "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return NewNATSEmitter(conn, subjectPrefix, log), nil
}

// NewNATSEmitter wraps an existing connection.
func NewNATSEmitter(conn *nats.Conn, subjectPrefix string, log *slog.Logger) *NATSEmitter {
	if log == nil {
		log = slog.Default()
	}
	if subjectPrefix == "" {
		subjectPrefix = "pricewatch"
	}
	return &NATSEmitter{conn: conn, subjectPrefix: subjectPrefix, log: log}
}

// Subject returns the subject an event is published on.
func (e *NATSEmitter) Subject(event *SyncEvent) string {
	return Subject(e.subjectPrefix, event)
}

// Subject builds "<prefix>.<platform>.<type>". Dots in the platform would
// add tokens to the subject, so they are replaced.
func Subject(prefix string, event *SyncEvent) string {
	platform := strings.ReplaceAll(event.Platform, ".", "_")
	return prefix + "." + platform + "." + string(event.Type)
}

func (e *NATSEmitter) Emit(ctx context.Context, event *SyncEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := e.conn.Publish(e.Subject(event), data); err != nil {
		return fmt.Errorf("publish %s: %w", e.Subject(event), err)
	}
	if event.Type == EventCompleted {
		// FlushWithContext rejects contexts without a deadline.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
		defer cancel()
		if err := e.conn.FlushWithContext(fctx); err != nil {
			return fmt.Errorf("flush %s: %w", e.Subject(event), err)
		}
	}
	return nil
}

func (e *NATSEmitter) Close() error {
	if e.conn == nil {
		return nil
	}
	if err := e.conn.Flush(); err != nil {
		e.log.Warn("Failed to flush NATS", "error", err)
	}
	e.conn.Close()
	return nil
}
