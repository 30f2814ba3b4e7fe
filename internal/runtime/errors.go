package runtime

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProgram      = errors.New("runtime: unknown program")
	ErrNotEnoughAccounts   = errors.New("runtime: not enough account keys")
	ErrMissingSignature    = errors.New("runtime: missing required signature")
	ErrAccountNotWritable  = errors.New("runtime: account is not writable")
	ErrAccountNotListed    = errors.New("runtime: account not passed to instruction")
	ErrInsufficientFunds   = errors.New("runtime: insufficient funds")
	ErrInvalidTransferFrom = errors.New("runtime: transfer source must be a system account")
	ErrInvalidSeeds        = errors.New("runtime: seeds do not sign for account")
	ErrExternalAccount     = errors.New("runtime: program modified an account it does not own")
	ErrAccountInUse        = errors.New("runtime: account already in use")
	ErrAccountDataTooSmall = errors.New("runtime: account data too small")
	ErrArithmeticOverflow  = errors.New("runtime: arithmetic overflow")
	ErrInvalidInstruction  = errors.New("runtime: invalid instruction data")
	ErrPrecompileFailed    = errors.New("runtime: signature verification failed")
)

// CodedError is an error that carries a stable numeric code, as program
// error catalogs do.
type CodedError interface {
	error
	ErrorCode() uint32
	ErrorName() string
}

// InstructionError reports the instruction that aborted a transaction
type InstructionError struct {
	Index int
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("instruction %d: %v", e.Index, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}

var platformErrorNames = []struct {
	err  error
	name string
}{
	{ErrUnknownProgram, "UnknownProgram"},
	{ErrNotEnoughAccounts, "NotEnoughAccountKeys"},
	{ErrMissingSignature, "MissingRequiredSignature"},
	{ErrAccountNotWritable, "AccountNotWritable"},
	{ErrAccountNotListed, "AccountNotListed"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrInvalidTransferFrom, "InvalidTransferSource"},
	{ErrInvalidSeeds, "InvalidSeeds"},
	{ErrExternalAccount, "ExternalAccountModified"},
	{ErrAccountInUse, "AccountAlreadyInUse"},
	{ErrAccountDataTooSmall, "AccountDataTooSmall"},
	{ErrArithmeticOverflow, "ArithmeticOverflow"},
	{ErrInvalidInstruction, "InvalidInstructionData"},
	{ErrPrecompileFailed, "PrecompileVerificationFailed"},
}

// ErrorName returns a short label for err, used in metrics and API responses
func ErrorName(err error) string {
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.ErrorName()
	}
	for _, e := range platformErrorNames {
		if errors.Is(err, e.err) {
			return e.name
		}
	}
	return "Unknown"
}
