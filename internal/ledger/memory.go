package ledger

import (
	"context"
	"sync"
	"time"

	"dicesettle/internal/address"
)

// MemoryStore keeps the ledger in process memory. Units of work are
// serialized and only committed when fn succeeds.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[address.Pubkey]*Account
	journal  []JournalEntry
}

// NewMemoryStore creates an empty in-memory ledger
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[address.Pubkey]*Account),
	}
}

// overlayTx buffers the writes of a unit of work on top of a committed view
type overlayTx struct {
	read    func(addr address.Pubkey) (*Account, error)
	overlay map[address.Pubkey]*Account
	deleted map[address.Pubkey]bool
	journal []JournalEntry
}

func newOverlayTx(read func(addr address.Pubkey) (*Account, error)) *overlayTx {
	return &overlayTx{
		read:    read,
		overlay: make(map[address.Pubkey]*Account),
		deleted: make(map[address.Pubkey]bool),
	}
}

func (t *overlayTx) Get(ctx context.Context, addr address.Pubkey) (*Account, error) {
	if t.deleted[addr] {
		return nil, ErrAccountNotFound
	}
	if acct, ok := t.overlay[addr]; ok {
		return acct.Clone(), nil
	}
	return t.read(addr)
}

func (t *overlayTx) Put(ctx context.Context, acct *Account) error {
	delete(t.deleted, acct.Address)
	t.overlay[acct.Address] = acct.Clone()
	return nil
}

func (t *overlayTx) Delete(ctx context.Context, addr address.Pubkey) error {
	delete(t.overlay, addr)
	t.deleted[addr] = true
	return nil
}

func (t *overlayTx) Append(ctx context.Context, kind string, payload []byte) error {
	t.journal = append(t.journal, JournalEntry{
		Kind:      kind,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

// WithTx implements Store.WithTx
func (m *MemoryStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := newOverlayTx(m.get)
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for addr := range tx.deleted {
		delete(m.accounts, addr)
	}
	for addr, acct := range tx.overlay {
		m.accounts[addr] = acct
	}
	for _, entry := range tx.journal {
		entry.ID = int64(len(m.journal) + 1)
		m.journal = append(m.journal, entry)
	}
	return nil
}

func (m *MemoryStore) get(addr address.Pubkey) (*Account, error) {
	acct, ok := m.accounts[addr]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acct.Clone(), nil
}

// Get implements Store.Get
func (m *MemoryStore) Get(ctx context.Context, addr address.Pubkey) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(addr)
}

// Journal implements Store.Journal
func (m *MemoryStore) Journal(ctx context.Context, after int64, limit int) ([]JournalEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []JournalEntry
	for _, entry := range m.journal {
		if entry.ID <= after {
			continue
		}
		out = append(out, entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Ping implements Store.Ping
func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close implements Store.Close
func (m *MemoryStore) Close() error {
	return nil
}

// Backend implements Store.Backend
func (m *MemoryStore) Backend() string {
	return "memory"
}
