package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// Stream layout
const (
	StreamName    = "DICE_EVENTS"
	SubjectPrefix = "dice."
)

// NATSConfig holds configuration for the JetStream publisher
type NATSConfig struct {
	URL string
	// Maximum age of messages in the stream
	MaxAge time.Duration
	// Storage type (file or memory)
	StorageType nats.StorageType
}

// NATSPublisher publishes events to a JetStream stream
type NATSPublisher struct {
	nc *nats.Conn
	js nats.JetStreamContext
}

// NewNATSPublisher connects to NATS and ensures the event stream exists
func NewNATSPublisher(cfg NATSConfig) (*NATSPublisher, error) {
	nc, err := nats.Connect(cfg.URL, nats.Name("dicesettle"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	streamCfg := &nats.StreamConfig{
		Name:     StreamName,
		Subjects: []string{SubjectPrefix + ">"},
		MaxAge:   cfg.MaxAge,
		Storage:  cfg.StorageType,
	}
	if _, err := js.StreamInfo(StreamName); err != nil {
		if _, err := js.AddStream(streamCfg); err != nil {
			nc.Close()
			return nil, fmt.Errorf("failed to create stream: %w", err)
		}
	}

	return &NATSPublisher{nc: nc, js: js}, nil
}

// Subject returns the subject an event kind is published on
func Subject(kind string) string {
	return SubjectPrefix + kind
}

// Publish implements Publisher
func (p *NATSPublisher) Publish(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	msg := &nats.Msg{
		Subject: Subject(ev.Kind),
		Data:    data,
		Header: nats.Header{
			"Kind":        []string{ev.Kind},
			"Transaction": []string{ev.Transaction},
		},
	}
	if ev.Transaction != "" {
		// Deduplicate redeliveries of the same committed event
		msg.Header.Set(nats.MsgIdHdr, fmt.Sprintf("%s:%d", ev.Transaction, ev.Sequence))
	}

	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close closes the NATS connection
func (p *NATSPublisher) Close() error {
	p.nc.Close()
	return nil
}
