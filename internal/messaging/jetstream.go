package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// JetStream publishes events to a NATS JetStream server.
type JetStream struct {
	conn *nats.Conn
	js   nats.JetStreamContext
	log  *zap.Logger
}

// Connect dials url, retrying until timeout elapses, and makes sure the
// events stream exists.
func Connect(url string, timeout time.Duration, logger *zap.Logger) (*JetStream, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	deadline := time.Now().Add(timeout)
	var lastErr error
	for {
		p, err := connect(url, logger)
		if err == nil {
			return p, nil
		}
		lastErr = err
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("connect jetstream timeout after %s: %w", timeout, lastErr)
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func connect(url string, logger *zap.Logger) (*JetStream, error) {
	conn, err := nats.Connect(url, nats.Name("boardhub"))
	if err != nil {
		return nil, err
	}
	js, err := conn.JetStream()
	if err != nil {
		_ = conn.Drain()
		conn.Close()
		return nil, err
	}
	if err := EnsureStream(js); err != nil {
		_ = conn.Drain()
		conn.Close()
		return nil, err
	}
	logger.Info("connected to jetstream", zap.String("url", conn.ConnectedUrlRedacted()))
	return &JetStream{conn: conn, js: js, log: logger}, nil
}

// EnsureStream creates the events stream when it does not exist.
func EnsureStream(js nats.JetStreamContext) error {
	_, err := js.StreamInfo(EventsStream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return err
	}
	_, err = js.AddStream(&nats.StreamConfig{
		Name:       EventsStream,
		Subjects:   []string{"boardhub.event.>"},
		Retention:  nats.LimitsPolicy,
		Storage:    nats.FileStorage,
		Replicas:   1,
		Duplicates: 24 * time.Hour,
	})
	return err
}

// PublishCompleted publishes ev. The message id is derived from the item
// episode so the server drops repeats inside its duplicate window.
func (p *JetStream) PublishCompleted(ctx context.Context, ev CompletionEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = p.js.Publish(SubjectVoteCompleted, payload,
		nats.Context(ctx),
		nats.MsgId(MessageID(ev)))
	return err
}

// MessageID is the JetStream de-duplication id for ev.
func MessageID(ev CompletionEvent) string {
	return fmt.Sprintf("%s:%s:%d", ev.ItemType, ev.ItemID, ev.Episode)
}

// Close drains and closes the connection.
func (p *JetStream) Close() {
	if p == nil || p.conn == nil {
		return
	}
	_ = p.conn.Drain()
	p.conn.Close()
}
