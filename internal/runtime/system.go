package runtime

import (
	"encoding/binary"
	"fmt"

	"dicesettle/internal/address"
	"dicesettle/internal/protocol"
)

// System program instruction tags
const (
	SystemTransfer uint32 = 2
)

// SystemProgram moves lamports between keyed system accounts
type SystemProgram struct{}

// ID implements Program
func (SystemProgram) ID() address.Pubkey {
	return address.SystemProgramID
}

// Name implements Program
func (SystemProgram) Name() string {
	return "system"
}

// Process implements Program
func (SystemProgram) Process(ictx *InvokeContext) error {
	data := ictx.Data()
	if len(data) < 4 {
		return ErrInvalidInstruction
	}

	switch tag := binary.LittleEndian.Uint32(data); tag {
	case SystemTransfer:
		if len(data) != 12 {
			return ErrInvalidInstruction
		}
		from, err := ictx.AccountMeta(0)
		if err != nil {
			return err
		}
		to, err := ictx.AccountMeta(1)
		if err != nil {
			return err
		}
		lamports := binary.LittleEndian.Uint64(data[4:])
		ictx.Logf("transfer %d lamports %s -> %s", lamports, from.Pubkey, to.Pubkey)
		return ictx.Transfer(from.Pubkey, to.Pubkey, lamports)
	default:
		return fmt.Errorf("%w: system instruction %d", ErrInvalidInstruction, tag)
	}
}

// NewTransferInstruction builds a system transfer
func NewTransferInstruction(from, to address.Pubkey, lamports uint64) protocol.Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data, SystemTransfer)
	binary.LittleEndian.PutUint64(data[4:], lamports)
	return protocol.Instruction{
		ProgramID: address.SystemProgramID,
		Accounts: []protocol.AccountMeta{
			protocol.NewAccountMeta(from, true, true),
			protocol.Writable(to),
		},
		Data: data,
	}
}
