package dice

import (
	"fmt"
)

// Error is a dice program error with a stable numeric code
type Error struct {
	Code uint32
	Name string
	Msg  string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Name, e.Code, e.Msg)
}

// ErrorCode implements runtime.CodedError
func (e *Error) ErrorCode() uint32 { return e.Code }

// ErrorName implements runtime.CodedError
func (e *Error) ErrorName() string { return e.Name }

const errorCodeBase = 6000

func newError(offset uint32, name, msg string) *Error {
	return &Error{Code: errorCodeBase + offset, Name: name, Msg: msg}
}

// Arithmetic and argument errors
var (
	ErrOverflow           = newError(0, "Overflow", "arithmetic overflow")
	ErrInvalidRoll        = newError(1, "InvalidRoll", "roll must be between 1 and 100")
	ErrInvalidAmount      = newError(2, "InvalidAmount", "amount must be greater than zero")
	ErrInvalidInstruction = newError(3, "InvalidInstruction", "instruction data could not be decoded")
)

// Provenance of the verification record
var (
	ErrRecordMissing            = newError(4, "RecordMissing", "no instruction at position 0")
	ErrWrongVerifier            = newError(5, "WrongVerifier", "instruction 0 is not an Ed25519 verification record")
	ErrUnexpectedAccounts       = newError(6, "UnexpectedAccounts", "verification record must not reference accounts")
	ErrMalformedRecord          = newError(7, "MalformedRecord", "verification record is malformed")
	ErrWrongSignatureCount      = newError(8, "WrongSignatureCount", "verification record must hold exactly one signature")
	ErrMissingVerifiabilityFlag = newError(9, "MissingVerifiabilityFlag", "signature entry is not verifiable in place")
)

// Content of the verification record
var (
	ErrSignerMissing     = newError(10, "SignerMissing", "signature entry has no public key")
	ErrSignerMismatch    = newError(11, "SignerMismatch", "signature entry public key is not the player")
	ErrSignatureMissing  = newError(12, "SignatureMissing", "signature entry has no signature")
	ErrSignatureMismatch = newError(13, "SignatureMismatch", "signature entry does not match the submitted signature")
	ErrMessageMissing    = newError(14, "MessageMissing", "signature entry has no message")
	ErrMessageMismatch   = newError(15, "MessageMismatch", "signed message is not the bet")
)

// Account binding
var (
	ErrVaultMismatch      = newError(16, "VaultMismatch", "vault is not derived from the house")
	ErrBetAddressMismatch = newError(17, "BetAddressMismatch", "bet address is not derived from the vault and seed")
	ErrBetNotFound        = newError(18, "BetNotFound", "bet account does not exist")
	ErrInvalidBetData     = newError(19, "InvalidBetData", "bet account data could not be decoded")
	ErrPlayerMismatch     = newError(20, "PlayerMismatch", "bet belongs to another player")
	ErrInstructionsSysvar = newError(21, "InstructionsSysvar", "account is not the instructions sysvar")
	ErrSystemProgram      = newError(22, "SystemProgram", "account is not the system program")
)

// Errors lists every dice error in code order
var Errors = []*Error{
	ErrOverflow,
	ErrInvalidRoll,
	ErrInvalidAmount,
	ErrInvalidInstruction,
	ErrRecordMissing,
	ErrWrongVerifier,
	ErrUnexpectedAccounts,
	ErrMalformedRecord,
	ErrWrongSignatureCount,
	ErrMissingVerifiabilityFlag,
	ErrSignerMissing,
	ErrSignerMismatch,
	ErrSignatureMissing,
	ErrSignatureMismatch,
	ErrMessageMissing,
	ErrMessageMismatch,
	ErrVaultMismatch,
	ErrBetAddressMismatch,
	ErrBetNotFound,
	ErrInvalidBetData,
	ErrPlayerMismatch,
	ErrInstructionsSysvar,
	ErrSystemProgram,
}

// ErrorByCode looks up a dice error by its numeric code
func ErrorByCode(code uint32) (*Error, bool) {
	if code < errorCodeBase || code >= errorCodeBase+uint32(len(Errors)) {
		return nil, false
	}
	return Errors[code-errorCodeBase], true
}
