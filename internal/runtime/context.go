package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"dicesettle/internal/address"
	"dicesettle/internal/ledger"
	"dicesettle/internal/protocol"
)

// Program is an on-ledger program the executor dispatches instructions to
type Program interface {
	ID() address.Pubkey
	Name() string
	Process(ictx *InvokeContext) error
}

type pendingEvent struct {
	kind    string
	payload any
}

// execution collects output across the instructions of one transaction
type execution struct {
	logs   []string
	events []pendingEvent
}

// InvokeContext is everything a program may see and do while processing one
// instruction. Account mutations go through the enclosing unit of work and
// are discarded if any instruction of the transaction fails.
type InvokeContext struct {
	ctx          context.Context
	ledger       ledger.Tx
	tx           *protocol.Transaction
	instruction  protocol.Instruction
	instructions *protocol.Instructions
	log          logrus.FieldLogger
	exec         *execution
}

// Context returns the context of the transaction
func (c *InvokeContext) Context() context.Context {
	return c.ctx
}

// ProgramID returns the id of the program being invoked
func (c *InvokeContext) ProgramID() address.Pubkey {
	return c.instruction.ProgramID
}

// Data returns the instruction data
func (c *InvokeContext) Data() []byte {
	return c.instruction.Data
}

// NumAccounts returns the number of accounts passed to the instruction
func (c *InvokeContext) NumAccounts() int {
	return len(c.instruction.Accounts)
}

// AccountMeta returns the i-th account passed to the instruction
func (c *InvokeContext) AccountMeta(i int) (protocol.AccountMeta, error) {
	if i < 0 || i >= len(c.instruction.Accounts) {
		return protocol.AccountMeta{}, ErrNotEnoughAccounts
	}
	return c.instruction.Accounts[i], nil
}

// Instructions returns the introspection view of the executing transaction
func (c *InvokeContext) Instructions() *protocol.Instructions {
	return c.instructions
}

// IsSigner reports whether pk is marked as signer and actually signed
func (c *InvokeContext) IsSigner(pk address.Pubkey) bool {
	for _, meta := range c.instruction.Accounts {
		if meta.Pubkey == pk && meta.IsSigner {
			return c.tx.IsSigner(pk)
		}
	}
	return false
}

// IsWritable reports whether pk is passed to the instruction as writable
func (c *InvokeContext) IsWritable(pk address.Pubkey) bool {
	for _, meta := range c.instruction.Accounts {
		if meta.Pubkey == pk && meta.IsWritable {
			return true
		}
	}
	return false
}

func (c *InvokeContext) isListed(pk address.Pubkey) bool {
	for _, meta := range c.instruction.Accounts {
		if meta.Pubkey == pk {
			return true
		}
	}
	return false
}

// Load reads an account passed to the instruction
func (c *InvokeContext) Load(pk address.Pubkey) (*ledger.Account, error) {
	if !c.isListed(pk) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotListed, pk)
	}
	return c.ledger.Get(c.ctx, pk)
}

// loadOrEmpty reads an account, treating a missing one as an empty system account
func (c *InvokeContext) loadOrEmpty(pk address.Pubkey) (*ledger.Account, error) {
	acct, err := c.ledger.Get(c.ctx, pk)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return &ledger.Account{Address: pk, Owner: address.SystemProgramID}, nil
	}
	return acct, err
}

func (c *InvokeContext) store(acct *ledger.Account) error {
	// Empty system accounts are not kept
	if acct.Lamports == 0 && len(acct.Data) == 0 && acct.Owner == address.SystemProgramID {
		return c.ledger.Delete(c.ctx, acct.Address)
	}
	return c.ledger.Put(c.ctx, acct)
}

func (c *InvokeContext) requireWritable(pks ...address.Pubkey) error {
	for _, pk := range pks {
		if !c.IsWritable(pk) {
			return fmt.Errorf("%w: %s", ErrAccountNotWritable, pk)
		}
	}
	return nil
}

// Transfer moves lamports out of a system account whose key signed the transaction
func (c *InvokeContext) Transfer(from, to address.Pubkey, lamports uint64) error {
	if !c.IsSigner(from) {
		return fmt.Errorf("%w: %s", ErrMissingSignature, from)
	}
	return c.transfer(from, to, lamports)
}

// TransferSigned moves lamports out of a derived system account. The seeds
// must resolve to from under the invoking program.
func (c *InvokeContext) TransferSigned(from, to address.Pubkey, lamports uint64, seeds address.SignerSeeds) error {
	signed, err := seeds.Resolve(c.ProgramID())
	if err != nil || signed != from {
		return fmt.Errorf("%w: %s", ErrInvalidSeeds, from)
	}
	return c.transfer(from, to, lamports)
}

func (c *InvokeContext) transfer(from, to address.Pubkey, lamports uint64) error {
	if err := c.requireWritable(from, to); err != nil {
		return err
	}

	src, err := c.loadOrEmpty(from)
	if err != nil {
		return err
	}
	if src.Owner != address.SystemProgramID || len(src.Data) != 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTransferFrom, from)
	}
	if src.Lamports < lamports {
		return fmt.Errorf("%w: %s has %d, needs %d", ErrInsufficientFunds, from, src.Lamports, lamports)
	}
	if from == to {
		return nil
	}

	dst, err := c.loadOrEmpty(to)
	if err != nil {
		return err
	}
	if dst.Lamports+lamports < dst.Lamports {
		return ErrArithmeticOverflow
	}

	src.Lamports -= lamports
	dst.Lamports += lamports
	if err := c.store(src); err != nil {
		return err
	}
	return c.store(dst)
}

// CreateAccount allocates a derived account owned by the invoking program,
// funded to rent exemption by payer.
func (c *InvokeContext) CreateAccount(payer, addr address.Pubkey, space int, seeds address.SignerSeeds) error {
	signed, err := seeds.Resolve(c.ProgramID())
	if err != nil || signed != addr {
		return fmt.Errorf("%w: %s", ErrInvalidSeeds, addr)
	}
	if err := c.requireWritable(addr); err != nil {
		return err
	}

	existing, err := c.loadOrEmpty(addr)
	if err != nil {
		return err
	}
	if existing.Owner != address.SystemProgramID || len(existing.Data) != 0 {
		return fmt.Errorf("%w: %s", ErrAccountInUse, addr)
	}

	rent := ledger.RentExemptMinimum(space)
	if existing.Lamports < rent {
		if err := c.Transfer(payer, addr, rent-existing.Lamports); err != nil {
			return err
		}
	}

	acct, err := c.loadOrEmpty(addr)
	if err != nil {
		return err
	}
	acct.Owner = c.ProgramID()
	acct.Data = make([]byte, space)
	return c.ledger.Put(c.ctx, acct)
}

// WriteData overwrites the start of a program-owned account's data
func (c *InvokeContext) WriteData(addr address.Pubkey, data []byte) error {
	if err := c.requireWritable(addr); err != nil {
		return err
	}
	acct, err := c.ledger.Get(c.ctx, addr)
	if err != nil {
		return err
	}
	if acct.Owner != c.ProgramID() {
		return fmt.Errorf("%w: %s", ErrExternalAccount, addr)
	}
	if len(data) > len(acct.Data) {
		return ErrAccountDataTooSmall
	}
	copy(acct.Data, data)
	return c.ledger.Put(c.ctx, acct)
}

// CloseAccount wipes a program-owned account and returns its lamports to dest
func (c *InvokeContext) CloseAccount(addr, dest address.Pubkey) error {
	if err := c.requireWritable(addr, dest); err != nil {
		return err
	}
	if addr == dest {
		return fmt.Errorf("%w: close destination is the closed account", ErrInvalidInstruction)
	}
	acct, err := c.ledger.Get(c.ctx, addr)
	if err != nil {
		return err
	}
	if acct.Owner != c.ProgramID() {
		return fmt.Errorf("%w: %s", ErrExternalAccount, addr)
	}

	dst, err := c.loadOrEmpty(dest)
	if err != nil {
		return err
	}
	if dst.Lamports+acct.Lamports < dst.Lamports {
		return ErrArithmeticOverflow
	}
	dst.Lamports += acct.Lamports

	if err := c.ledger.Delete(c.ctx, addr); err != nil {
		return err
	}
	return c.store(dst)
}

// Logf appends a line to the transaction logs
func (c *InvokeContext) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	c.exec.logs = append(c.exec.logs, fmt.Sprintf("Program %s: %s", c.ProgramID(), line))
	c.log.Debug(line)
}

// Emit records an event, published only if the transaction commits
func (c *InvokeContext) Emit(kind string, payload any) {
	c.exec.events = append(c.exec.events, pendingEvent{kind: kind, payload: payload})
}
