// Package ledger stores accounts and applies changes to them in atomic units of work
package ledger

import (
	"context"
	"errors"
	"time"

	"dicesettle/internal/address"
)

var (
	// ErrAccountNotFound is returned when an account does not exist
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrLamportsOverflow is returned when a balance cannot be represented by the store
	ErrLamportsOverflow = errors.New("ledger: lamports overflow")
)

// Account is the persisted state of one address
type Account struct {
	Address  address.Pubkey `json:"address"`
	Lamports uint64         `json:"lamports"`
	Owner    address.Pubkey `json:"owner"`
	Data     []byte         `json:"data"`
}

// Clone returns a deep copy of the account
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.Data = append([]byte(nil), a.Data...)
	return &c
}

// JournalEntry is an append-only record written in the same unit of work as
// the account changes it describes.
type JournalEntry struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// Tx is the view of the ledger inside a unit of work
type Tx interface {
	Get(ctx context.Context, addr address.Pubkey) (*Account, error)
	Put(ctx context.Context, acct *Account) error
	Delete(ctx context.Context, addr address.Pubkey) error
	Append(ctx context.Context, kind string, payload []byte) error
}

// Store defines the interface for ledger storage backends
type Store interface {
	// WithTx runs fn as one atomic unit; any error discards every change fn made
	WithTx(ctx context.Context, fn func(Tx) error) error
	// Get reads the committed state of an account
	Get(ctx context.Context, addr address.Pubkey) (*Account, error)
	// Journal returns committed journal entries with an ID greater than after
	Journal(ctx context.Context, after int64, limit int) ([]JournalEntry, error)
	Ping(ctx context.Context) error
	Close() error
	Backend() string
}
