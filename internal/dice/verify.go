package dice

import (
	"bytes"

	"dicesettle/internal/protocol"
	"dicesettle/internal/sigverify"
)

// RecordIndex is the position the verification record must occupy
const RecordIndex = 0

// VerifyEd25519Signature checks that the transaction carries, at position
// 0 ahead of the executing instruction, a verification record holding exactly one self-contained entry in which
// the bet's player signed the bet's canonical bytes producing sig.
//
// The facility itself has already checked the signature cryptographically;
// this binds what it checked to the bet being resolved.
func VerifyEd25519Signature(ixs *protocol.Instructions, sig []byte, bet *Bet) error {
	if ixs.CurrentIndex() <= RecordIndex {
		return ErrRecordMissing
	}
	record, err := ixs.LoadInstructionAt(RecordIndex)
	if err != nil {
		return ErrRecordMissing
	}
	if record.ProgramID != sigverify.ProgramID {
		return ErrWrongVerifier
	}
	if len(record.Accounts) != 0 {
		return ErrUnexpectedAccounts
	}

	entries, err := sigverify.Unpack(record.Data)
	if err != nil {
		return ErrMalformedRecord
	}
	if len(entries) != 1 {
		return ErrWrongSignatureCount
	}

	entry := entries[0]
	if !entry.Verifiable {
		return ErrMissingVerifiabilityFlag
	}

	signer, ok := entry.PublicKey.Get()
	if !ok {
		return ErrSignerMissing
	}
	if signer != bet.Player {
		return ErrSignerMismatch
	}

	signature, ok := entry.Signature.Get()
	if !ok {
		return ErrSignatureMissing
	}
	if !bytes.Equal(signature[:], sig) {
		return ErrSignatureMismatch
	}

	message, ok := entry.Message.Get()
	if !ok {
		return ErrMessageMissing
	}
	if !bytes.Equal(message, bet.ToSlice()) {
		return ErrMessageMismatch
	}

	return nil
}
