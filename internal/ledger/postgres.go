package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"dicesettle/internal/address"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// PostgresConfig holds database configuration
type PostgresConfig struct {
	URL         string
	MaxConns    int32
	MaxIdleTime time.Duration
	HealthCheck time.Duration
}

// Validate validates the database configuration
func (c *PostgresConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("invalid max connections: %d", c.MaxConns)
	}
	return nil
}

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	pool   *pgxpool.Pool
	cfg    PostgresConfig
	log    logrus.FieldLogger
	cancel context.CancelFunc
}

// NewPostgresStore connects to the database and applies the schema
func NewPostgresStore(ctx context.Context, cfg PostgresConfig, log logrus.FieldLogger) (*PostgresStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	if cfg.MaxIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	hcCtx, cancel := context.WithCancel(context.Background())
	s := &PostgresStore{
		pool:   pool,
		cfg:    cfg,
		log:    log.WithField("component", "ledger"),
		cancel: cancel,
	}

	if err := InitSchema(ctx, s); err != nil {
		s.Close()
		return nil, err
	}

	if cfg.HealthCheck > 0 {
		go s.startHealthCheck(hcCtx)
	}

	return s, nil
}

// startHealthCheck starts periodic health checks
func (s *PostgresStore) startHealthCheck(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HealthCheck)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := s.Ping(pingCtx); err != nil {
				s.log.WithError(err).Warn("Database health check failed")
			}
			cancel()
		}
	}
}

// withPgxTx executes a function within a database transaction
func (s *PostgresStore) withPgxTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rolling back transaction: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// WithTx implements Store.WithTx. Accounts read inside the unit are locked
// until it commits or rolls back.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	return s.withPgxTx(ctx, func(tx pgx.Tx) error {
		return fn(&postgresTx{tx: tx})
	})
}

// Get implements Store.Get
func (s *PostgresStore) Get(ctx context.Context, addr address.Pubkey) (*Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT lamports, owner, data FROM accounts WHERE address = $1`, addr.String())
	return scanAccount(addr, row)
}

// Journal implements Store.Journal
func (s *PostgresStore) Journal(ctx context.Context, after int64, limit int) ([]JournalEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, kind, payload, created_at FROM ledger_journal WHERE id > $1 ORDER BY id LIMIT $2`,
		after, limit)
	if err != nil {
		return nil, fmt.Errorf("querying journal: %w", err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ping checks database connectivity
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	s.cancel()
	s.pool.Close()
	return nil
}

// Backend implements Store.Backend
func (s *PostgresStore) Backend() string {
	return "postgres"
}

type postgresTx struct {
	tx     pgx.Tx
	locked map[address.Pubkey]struct{}
}

// lock serializes units touching addr until the transaction ends. FOR UPDATE
// alone takes no lock on a row that does not exist yet, so two units creating
// the same account would both read it as missing and the later upsert wins.
func (t *postgresTx) lock(ctx context.Context, addr address.Pubkey) error {
	if _, ok := t.locked[addr]; ok {
		return nil
	}
	if _, err := t.tx.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, addr.String()); err != nil {
		return fmt.Errorf("locking account %s: %w", addr, err)
	}
	if t.locked == nil {
		t.locked = make(map[address.Pubkey]struct{})
	}
	t.locked[addr] = struct{}{}
	return nil
}

func (t *postgresTx) Get(ctx context.Context, addr address.Pubkey) (*Account, error) {
	if err := t.lock(ctx, addr); err != nil {
		return nil, err
	}
	row := t.tx.QueryRow(ctx,
		`SELECT lamports, owner, data FROM accounts WHERE address = $1 FOR UPDATE`, addr.String())
	return scanAccount(addr, row)
}

func (t *postgresTx) Put(ctx context.Context, acct *Account) error {
	if acct.Lamports > math.MaxInt64 {
		return ErrLamportsOverflow
	}
	if err := t.lock(ctx, acct.Address); err != nil {
		return err
	}
	data := acct.Data
	if data == nil {
		data = []byte{}
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO accounts (address, lamports, owner, data, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (address) DO UPDATE SET
			lamports = EXCLUDED.lamports,
			owner = EXCLUDED.owner,
			data = EXCLUDED.data,
			updated_at = NOW()`,
		acct.Address.String(), int64(acct.Lamports), acct.Owner.String(), data)
	if err != nil {
		return fmt.Errorf("writing account %s: %w", acct.Address, err)
	}
	return nil
}

func (t *postgresTx) Delete(ctx context.Context, addr address.Pubkey) error {
	if err := t.lock(ctx, addr); err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM accounts WHERE address = $1`, addr.String()); err != nil {
		return fmt.Errorf("deleting account %s: %w", addr, err)
	}
	return nil
}

func (t *postgresTx) Append(ctx context.Context, kind string, payload []byte) error {
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO ledger_journal (kind, payload) VALUES ($1, $2)`, kind, payload); err != nil {
		return fmt.Errorf("appending journal entry: %w", err)
	}
	return nil
}

func scanAccount(addr address.Pubkey, row pgx.Row) (*Account, error) {
	var (
		lamports int64
		owner    string
		data     []byte
	)
	if err := row.Scan(&lamports, &owner, &data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("reading account %s: %w", addr, err)
	}

	ownerKey, err := address.FromBase58(owner)
	if err != nil {
		return nil, fmt.Errorf("account %s has invalid owner: %w", addr, err)
	}

	return &Account{
		Address:  addr,
		Lamports: uint64(lamports),
		Owner:    ownerKey,
		Data:     data,
	}, nil
}
