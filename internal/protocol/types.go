package protocol

import (
	"dicesettle/internal/address"
)

// AccountMeta references an account used by an instruction
type AccountMeta struct {
	Pubkey     address.Pubkey `json:"pubkey"`
	IsSigner   bool           `json:"is_signer"`
	IsWritable bool           `json:"is_writable"`
}

// Instruction is a single program invocation inside a transaction
type Instruction struct {
	ProgramID address.Pubkey `json:"program_id"`
	Accounts  []AccountMeta  `json:"accounts"`
	Data      []byte         `json:"data"`
}

// NewAccountMeta creates an account reference
func NewAccountMeta(pk address.Pubkey, signer, writable bool) AccountMeta {
	return AccountMeta{Pubkey: pk, IsSigner: signer, IsWritable: writable}
}

// Readonly references an account that is neither signed nor written
func Readonly(pk address.Pubkey) AccountMeta {
	return AccountMeta{Pubkey: pk}
}

// Writable references an account the instruction mutates
func Writable(pk address.Pubkey) AccountMeta {
	return AccountMeta{Pubkey: pk, IsWritable: true}
}

// Clone returns a deep copy of the instruction
func (ix Instruction) Clone() Instruction {
	out := Instruction{
		ProgramID: ix.ProgramID,
		Accounts:  append([]AccountMeta(nil), ix.Accounts...),
		Data:      append([]byte(nil), ix.Data...),
	}
	return out
}
