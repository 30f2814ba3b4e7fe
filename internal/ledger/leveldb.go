package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"dicesettle/internal/address"
)

var (
	accountPrefix = []byte("account/")
	journalPrefix = []byte("journal/")
)

// LevelDBStore persists the ledger in an embedded LevelDB database. Each unit
// of work is written as a single synced batch.
type LevelDBStore struct {
	mu     sync.Mutex
	db     *leveldb.DB
	nextID int64
}

// OpenLevelDBStore opens or creates the database at path
func OpenLevelDBStore(path string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening ledger at %s: %w", path, err)
	}

	s := &LevelDBStore{db: db, nextID: 1}

	iter := db.NewIterator(util.BytesPrefix(journalPrefix), nil)
	if iter.Last() {
		s.nextID = journalID(iter.Key()) + 1
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		db.Close()
		return nil, fmt.Errorf("reading journal: %w", err)
	}

	return s, nil
}

func accountKey(addr address.Pubkey) []byte {
	return append(append([]byte(nil), accountPrefix...), addr[:]...)
}

func journalKey(id int64) []byte {
	key := make([]byte, len(journalPrefix)+8)
	copy(key, journalPrefix)
	binary.BigEndian.PutUint64(key[len(journalPrefix):], uint64(id))
	return key
}

func journalID(key []byte) int64 {
	return int64(binary.BigEndian.Uint64(key[len(journalPrefix):]))
}

func (s *LevelDBStore) get(addr address.Pubkey) (*Account, error) {
	data, err := s.db.Get(accountKey(addr), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading account %s: %w", addr, err)
	}

	var acct Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, fmt.Errorf("decoding account %s: %w", addr, err)
	}
	return &acct, nil
}

// WithTx implements Store.WithTx
func (s *LevelDBStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := newOverlayTx(s.get)
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := new(leveldb.Batch)
	for addr := range tx.deleted {
		batch.Delete(accountKey(addr))
	}
	for addr, acct := range tx.overlay {
		data, err := json.Marshal(acct)
		if err != nil {
			return fmt.Errorf("encoding account %s: %w", addr, err)
		}
		batch.Put(accountKey(addr), data)
	}

	id := s.nextID
	for _, entry := range tx.journal {
		entry.ID = id
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encoding journal entry: %w", err)
		}
		batch.Put(journalKey(id), data)
		id++
	}

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("writing batch: %w", err)
	}
	s.nextID = id
	return nil
}

// Get implements Store.Get
func (s *LevelDBStore) Get(ctx context.Context, addr address.Pubkey) (*Account, error) {
	return s.get(addr)
}

// Journal implements Store.Journal
func (s *LevelDBStore) Journal(ctx context.Context, after int64, limit int) ([]JournalEntry, error) {
	rng := util.BytesPrefix(journalPrefix)
	rng.Start = journalKey(after + 1)

	iter := s.db.NewIterator(rng, nil)
	defer iter.Release()

	var out []JournalEntry
	for iter.Next() {
		var entry JournalEntry
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, fmt.Errorf("decoding journal entry %d: %w", journalID(iter.Key()), err)
		}
		out = append(out, entry)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, iter.Error()
}

// Ping implements Store.Ping
func (s *LevelDBStore) Ping(ctx context.Context) error {
	_, err := s.db.GetProperty("leveldb.stats")
	return err
}

// Close implements Store.Close
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}

// Backend implements Store.Backend
func (s *LevelDBStore) Backend() string {
	return "leveldb"
}
