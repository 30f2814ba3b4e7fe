package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"dicesettle/internal/address"
	"dicesettle/internal/crypto"
)

var (
	// ErrNoInstructions is returned for a transaction without instructions
	ErrNoInstructions = errors.New("protocol: transaction has no instructions")
	// ErrSignatureCount is returned when signatures and signers differ in number
	ErrSignatureCount = errors.New("protocol: signature count does not match signers")
	// ErrBadSignature is returned when a transaction signature does not verify
	ErrBadSignature = errors.New("protocol: invalid transaction signature")
	// ErrMessageTooLarge is returned when a count does not fit its field in the message encoding
	ErrMessageTooLarge = errors.New("protocol: transaction exceeds message encoding limits")
	// ErrUnknownSigner is returned when a keypair is not among the declared signers
	ErrUnknownSigner = errors.New("protocol: keypair is not a declared signer")
)

// Transaction is an ordered list of instructions executed as one atomic unit
type Transaction struct {
	Signers      []address.Pubkey `json:"signers"`
	Instructions []Instruction    `json:"instructions"`
	Signatures   [][]byte         `json:"signatures"`
}

// NewTransaction creates an unsigned transaction. Signers are collected from
// the instructions' signer metas, fee payer first.
func NewTransaction(payer address.Pubkey, instructions ...Instruction) *Transaction {
	signers := []address.Pubkey{payer}
	seen := map[address.Pubkey]bool{payer: true}
	for _, ix := range instructions {
		for _, meta := range ix.Accounts {
			if meta.IsSigner && !seen[meta.Pubkey] {
				seen[meta.Pubkey] = true
				signers = append(signers, meta.Pubkey)
			}
		}
	}

	return &Transaction{
		Signers:      signers,
		Instructions: instructions,
		Signatures:   make([][]byte, len(signers)),
	}
}

// Message returns the canonical bytes covered by the transaction signatures
func (tx *Transaction) Message() []byte {
	var buf bytes.Buffer
	var scratch [4]byte

	buf.WriteByte(uint8(len(tx.Signers)))
	for _, s := range tx.Signers {
		buf.Write(s[:])
	}

	binary.LittleEndian.PutUint16(scratch[:2], uint16(len(tx.Instructions)))
	buf.Write(scratch[:2])
	for _, ix := range tx.Instructions {
		buf.Write(ix.ProgramID[:])
		binary.LittleEndian.PutUint16(scratch[:2], uint16(len(ix.Accounts)))
		buf.Write(scratch[:2])
		for _, meta := range ix.Accounts {
			buf.Write(meta.Pubkey[:])
			var flags byte
			if meta.IsSigner {
				flags |= 1
			}
			if meta.IsWritable {
				flags |= 2
			}
			buf.WriteByte(flags)
		}
		binary.LittleEndian.PutUint32(scratch[:], uint32(len(ix.Data)))
		buf.Write(scratch[:])
		buf.Write(ix.Data)
	}

	return buf.Bytes()
}

// Sign adds signatures from the given keypairs
func (tx *Transaction) Sign(signers ...crypto.Signer) error {
	if len(tx.Signatures) != len(tx.Signers) {
		tx.Signatures = make([][]byte, len(tx.Signers))
	}

	msg := tx.Message()
	for _, s := range signers {
		idx := tx.signerIndex(s.PublicKey())
		if idx < 0 {
			return fmt.Errorf("%w: %s", ErrUnknownSigner, s.PublicKey())
		}
		sig, err := s.Sign(msg)
		if err != nil {
			return fmt.Errorf("signing transaction: %w", err)
		}
		tx.Signatures[idx] = sig
	}
	return nil
}

// VerifySignatures checks that every declared signer signed the message
func (tx *Transaction) VerifySignatures() error {
	if len(tx.Instructions) == 0 {
		return ErrNoInstructions
	}
	if err := tx.checkEncodable(); err != nil {
		return err
	}
	if len(tx.Signatures) != len(tx.Signers) {
		return ErrSignatureCount
	}

	msg := tx.Message()
	for i, signer := range tx.Signers {
		if !crypto.Verify(signer, msg, tx.Signatures[i]) {
			return fmt.Errorf("%w: signer %s", ErrBadSignature, signer)
		}
	}
	return nil
}

// IsSigner reports whether pk signed the transaction
func (tx *Transaction) IsSigner(pk address.Pubkey) bool {
	return tx.signerIndex(pk) >= 0
}

func (tx *Transaction) signerIndex(pk address.Pubkey) int {
	for i, s := range tx.Signers {
		if s == pk {
			return i
		}
	}
	return -1
}

// Encode serializes a transaction to JSON
func (tx *Transaction) Encode() ([]byte, error) {
	return json.Marshal(tx)
}

// DecodeTransaction deserializes a transaction from JSON
func DecodeTransaction(data []byte) (*Transaction, error) {
	var tx Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// checkEncodable rejects transactions whose counts Message would truncate
func (tx *Transaction) checkEncodable() error {
	if len(tx.Signers) > math.MaxUint8 {
		return fmt.Errorf("%w: %d signers", ErrMessageTooLarge, len(tx.Signers))
	}
	if len(tx.Instructions) > math.MaxUint16 {
		return fmt.Errorf("%w: %d instructions", ErrMessageTooLarge, len(tx.Instructions))
	}
	for i, ix := range tx.Instructions {
		if len(ix.Accounts) > math.MaxUint16 {
			return fmt.Errorf("%w: instruction %d has %d accounts", ErrMessageTooLarge, i, len(ix.Accounts))
		}
		if uint64(len(ix.Data)) > math.MaxUint32 {
			return fmt.Errorf("%w: instruction %d has %d data bytes", ErrMessageTooLarge, i, len(ix.Data))
		}
	}
	return nil
}
