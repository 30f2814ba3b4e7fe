// Package events fans committed settlement events out to subscribers
package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Event kinds emitted by the dice program
const (
	KindBetPlaced   = "bet_placed"
	KindBetResolved = "bet_resolved"
	KindVaultFunded = "vault_funded"
)

// Event is a committed, published fact about the ledger
type Event struct {
	Kind        string          `json:"kind"`
	Transaction string          `json:"transaction"`
	Sequence    int             `json:"sequence"`
	Data        json.RawMessage `json:"data"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Publisher delivers events to an external audience
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Fanout publishes to every publisher and joins their errors
type Fanout []Publisher

// Publish implements Publisher
func (f Fanout) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Publisher
func (f Fanout) Close() error {
	var errs []error
	for _, p := range f {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
