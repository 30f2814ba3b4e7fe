package sigverify

import (
	"fmt"

	"dicesettle/internal/address"
	"dicesettle/internal/crypto"
	"dicesettle/internal/protocol"
)

// ProgramID is the address of the verification facility
var ProgramID = address.Ed25519ProgramID

// NewInstruction builds a verification instruction for a single signed message
func NewInstruction(signer address.Pubkey, message, signature []byte) (protocol.Instruction, error) {
	data, err := Pack(SignedMessage{PublicKey: signer, Signature: signature, Message: message})
	if err != nil {
		return protocol.Instruction{}, err
	}
	return protocol.Instruction{ProgramID: ProgramID, Data: data}, nil
}

// Verify checks every entry of a record. Parts referenced through another
// instruction index are read from that instruction's data in instructions.
func Verify(data []byte, instructions [][]byte) error {
	if len(data) < OffsetsStart {
		return ErrDataLength
	}

	count := int(data[0])
	if count == 0 && len(data) > OffsetsStart {
		return ErrDataLength
	}
	if len(data) < OffsetsStart+count*OffsetsSize {
		return ErrDataLength
	}

	for i := 0; i < count; i++ {
		start := OffsetsStart + i*OffsetsSize
		offsets := readOffsets(data[start : start+OffsetsSize])

		sig, err := locate(data, instructions, offsets.SignatureInstructionIndex, offsets.SignatureOffset, crypto.SignatureSize)
		if err != nil {
			return err
		}
		pk, err := locate(data, instructions, offsets.PublicKeyInstructionIndex, offsets.PublicKeyOffset, address.Size)
		if err != nil {
			return err
		}
		msg, err := locate(data, instructions, offsets.MessageInstructionIndex, offsets.MessageDataOffset, int(offsets.MessageDataSize))
		if err != nil {
			return err
		}

		signer, err := address.FromBytes(pk)
		if err != nil {
			return err
		}
		if !crypto.Verify(signer, msg, sig) {
			return fmt.Errorf("%w: entry %d", ErrInvalidSignature, i)
		}
	}

	return nil
}

func locate(self []byte, instructions [][]byte, index, offset uint16, size int) ([]byte, error) {
	src := self
	if index != ThisInstruction {
		if int(index) >= len(instructions) {
			return nil, ErrDataOffsets
		}
		src = instructions[index]
	}
	return slice(src, offset, size)
}
