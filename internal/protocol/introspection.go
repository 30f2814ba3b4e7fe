package protocol

import (
	"errors"
)

// ErrInstructionIndex is returned when introspecting past the end of a transaction
var ErrInstructionIndex = errors.New("protocol: instruction index out of range")

// Instructions is a read-only view of the executing transaction, offered to
// programs through the instructions sysvar.
type Instructions struct {
	list    []Instruction
	current int
}

// NewInstructions builds the view for the instruction at index current
func NewInstructions(list []Instruction, current int) *Instructions {
	return &Instructions{list: list, current: current}
}

// CurrentIndex returns the index of the executing instruction
func (in *Instructions) CurrentIndex() int {
	return in.current
}

// LoadInstructionAt returns a copy of the instruction at index
func (in *Instructions) LoadInstructionAt(index int) (Instruction, error) {
	if index < 0 || index >= len(in.list) {
		return Instruction{}, ErrInstructionIndex
	}
	return in.list[index].Clone(), nil
}
