// Package runtime executes transactions against the ledger: it checks
// signatures, runs the signature-verification facility, dispatches
// instructions to programs and commits or discards their effects as a unit.
package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/decred/base58"
	"github.com/sirupsen/logrus"

	"dicesettle/internal/address"
	"dicesettle/internal/events"
	"dicesettle/internal/ledger"
	"dicesettle/internal/protocol"
	"dicesettle/internal/sigverify"
)

// Receipt describes the outcome of a transaction
type Receipt struct {
	Signature string         `json:"signature"`
	Status    string         `json:"status"`
	Logs      []string       `json:"logs"`
	Events    []events.Event `json:"events"`
}

// Executor runs transactions against a ledger store
type Executor struct {
	store     ledger.Store
	programs  map[address.Pubkey]Program
	log       logrus.FieldLogger
	metrics   *Metrics
	publisher events.Publisher
}

// Option configures an Executor
type Option func(*Executor)

// WithLogger sets the executor logger
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Executor) { e.log = log }
}

// WithMetrics sets the executor metrics
func WithMetrics(m *Metrics) Option {
	return func(e *Executor) { e.metrics = m }
}

// WithPublisher sets where committed events are published
func WithPublisher(p events.Publisher) Option {
	return func(e *Executor) { e.publisher = p }
}

// NewExecutor creates an executor with the system program and the given programs
func NewExecutor(store ledger.Store, programs []Program, opts ...Option) *Executor {
	e := &Executor{
		store:    store,
		programs: make(map[address.Pubkey]Program),
		log:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = NewMetrics(nil)
	}

	e.Register(SystemProgram{})
	for _, p := range programs {
		e.Register(p)
	}
	return e
}

// Register adds a program, replacing any program with the same id
func (e *Executor) Register(p Program) {
	e.programs[p.ID()] = p
}

// Store returns the ledger the executor writes to
func (e *Executor) Store() ledger.Store {
	return e.store
}

// Metrics returns the executor metrics
func (e *Executor) Metrics() *Metrics {
	return e.metrics
}

// TransactionID returns the identifier of a transaction, the base58 form of
// its fee payer's signature.
func TransactionID(tx *protocol.Transaction) string {
	if len(tx.Signatures) == 0 || len(tx.Signatures[0]) == 0 {
		return ""
	}
	return base58.Encode(tx.Signatures[0])
}

// Execute runs every instruction of tx as one atomic unit. On failure no
// account change is kept and the returned receipt carries the logs produced
// up to the failing instruction.
func (e *Executor) Execute(ctx context.Context, tx *protocol.Transaction) (*Receipt, error) {
	start := time.Now()
	defer func() {
		e.metrics.ExecutionLatency.Observe(time.Since(start).Seconds())
	}()

	receipt := &Receipt{Signature: TransactionID(tx), Status: StatusRejected}
	log := e.log.WithField("transaction", receipt.Signature)

	if err := tx.VerifySignatures(); err != nil {
		e.metrics.Transactions.WithLabelValues(StatusRejected).Inc()
		log.WithError(err).Warn("Rejected transaction")
		return receipt, err
	}

	exec := &execution{}
	var published []events.Event
	err := e.store.WithTx(ctx, func(ltx ledger.Tx) error {
		if err := e.verifyPrecompiles(tx); err != nil {
			return err
		}

		for i, ix := range tx.Instructions {
			if err := ctx.Err(); err != nil {
				return err
			}
			if ix.ProgramID == sigverify.ProgramID {
				continue
			}

			program, ok := e.programs[ix.ProgramID]
			if !ok {
				return &InstructionError{Index: i, Err: fmt.Errorf("%w: %s", ErrUnknownProgram, ix.ProgramID)}
			}

			ictx := &InvokeContext{
				ctx:          ctx,
				ledger:       ltx,
				tx:           tx,
				instruction:  ix,
				instructions: protocol.NewInstructions(tx.Instructions, i),
				log:          log.WithFields(logrus.Fields{"program": program.Name(), "instruction": i}),
				exec:         exec,
			}
			exec.logs = append(exec.logs, fmt.Sprintf("Program %s invoke [%d]", ix.ProgramID, i))
			if err := program.Process(ictx); err != nil {
				exec.logs = append(exec.logs, fmt.Sprintf("Program %s failed: %v", ix.ProgramID, err))
				return &InstructionError{Index: i, Err: err}
			}
			exec.logs = append(exec.logs, fmt.Sprintf("Program %s success", ix.ProgramID))
		}

		var err error
		published, err = e.journal(ctx, ltx, receipt.Signature, exec.events)
		return err
	})

	receipt.Logs = exec.logs
	if err != nil {
		receipt.Status = StatusFailed
		e.metrics.Transactions.WithLabelValues(StatusFailed).Inc()
		var ixErr *InstructionError
		if errors.As(err, &ixErr) {
			e.metrics.InstructionErrors.WithLabelValues(ErrorName(ixErr.Err)).Inc()
		}
		log.WithError(err).Info("Transaction failed")
		return receipt, err
	}

	receipt.Status = StatusCommitted
	receipt.Events = published
	e.metrics.Transactions.WithLabelValues(StatusCommitted).Inc()
	for _, ev := range exec.events {
		e.observe(ev)
	}
	log.WithField("events", len(published)).Info("Transaction committed")

	e.publish(ctx, log, published)
	return receipt, nil
}

// verifyPrecompiles checks every verification record before any program runs
func (e *Executor) verifyPrecompiles(tx *protocol.Transaction) error {
	var data [][]byte
	for i, ix := range tx.Instructions {
		if ix.ProgramID != sigverify.ProgramID {
			continue
		}
		if data == nil {
			data = make([][]byte, len(tx.Instructions))
			for j, other := range tx.Instructions {
				data[j] = other.Data
			}
		}
		if err := sigverify.Verify(ix.Data, data); err != nil {
			return &InstructionError{Index: i, Err: fmt.Errorf("%w: %w", ErrPrecompileFailed, err)}
		}
	}
	return nil
}

// journal encodes pending events and appends them in the unit of work
func (e *Executor) journal(ctx context.Context, ltx ledger.Tx, txID string, pending []pendingEvent) ([]events.Event, error) {
	out := make([]events.Event, 0, len(pending))
	now := time.Now().UTC()
	for i, p := range pending {
		data, err := json.Marshal(p.payload)
		if err != nil {
			return nil, fmt.Errorf("encoding %s event: %w", p.kind, err)
		}
		ev := events.Event{
			Kind:        p.kind,
			Transaction: txID,
			Sequence:    i,
			Data:        data,
			Timestamp:   now,
		}
		record, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		if err := ltx.Append(ctx, p.kind, record); err != nil {
			return nil, fmt.Errorf("journaling %s event: %w", p.kind, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func (e *Executor) observe(ev pendingEvent) {
	switch p := ev.payload.(type) {
	case events.BetPlaced:
		e.metrics.BetsPlaced.Inc()
	case events.BetResolved:
		outcome := "lost"
		if p.Won {
			outcome = "won"
			e.metrics.PayoutLamports.Add(float64(p.Payout))
		}
		e.metrics.BetsResolved.WithLabelValues(outcome).Inc()
	}
}

// publish delivers committed events. Failures are logged; the ledger and its
// journal remain the source of truth.
func (e *Executor) publish(ctx context.Context, log logrus.FieldLogger, evs []events.Event) {
	if e.publisher == nil {
		return
	}
	for _, ev := range evs {
		if err := e.publisher.Publish(ctx, ev); err != nil {
			log.WithError(err).WithField("kind", ev.Kind).Warn("Failed to publish event")
		}
	}
}

// Airdrop credits lamports to a system account outside of any transaction
func Airdrop(ctx context.Context, store ledger.Store, to address.Pubkey, lamports uint64) error {
	return store.WithTx(ctx, func(ltx ledger.Tx) error {
		acct, err := ltx.Get(ctx, to)
		if errors.Is(err, ledger.ErrAccountNotFound) {
			acct = &ledger.Account{Address: to, Owner: address.SystemProgramID}
		} else if err != nil {
			return err
		}
		if acct.Lamports+lamports < acct.Lamports {
			return ErrArithmeticOverflow
		}
		acct.Lamports += lamports
		return ltx.Put(ctx, acct)
	})
}
