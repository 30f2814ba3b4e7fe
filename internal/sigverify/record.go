// Package sigverify implements the Ed25519 signature-verification facility and
// the codec for the records it consumes.
//
// A record is laid out as
//
//	num_signatures u8 | padding u8 | num_signatures * offsets | payload
//
// where each 14-byte offsets block holds little-endian u16 fields pointing at
// the signature, public key and message. An instruction index of 0xFFFF
// refers to the record itself.
package sigverify

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"dicesettle/internal/address"
	"dicesettle/internal/crypto"
)

// Layout constants
const (
	OffsetsStart    = 2
	OffsetsSize     = 14
	ThisInstruction = math.MaxUint16
)

var (
	// ErrDataLength is returned when the record is truncated or an offset points past the data
	ErrDataLength = errors.New("sigverify: invalid instruction data length")
	// ErrDataOffsets is returned when an offset references a missing instruction
	ErrDataOffsets = errors.New("sigverify: invalid data offsets")
	// ErrInvalidSignature is returned when an entry's signature does not verify
	ErrInvalidSignature = errors.New("sigverify: signature verification failed")
)

// Offsets locates the parts of one signature entry
type Offsets struct {
	SignatureOffset           uint16
	SignatureInstructionIndex uint16
	PublicKeyOffset           uint16
	PublicKeyInstructionIndex uint16
	MessageDataOffset         uint16
	MessageDataSize           uint16
	MessageInstructionIndex   uint16
}

// SelfContained reports whether every part lives in the record itself
func (o Offsets) SelfContained() bool {
	return o.SignatureInstructionIndex == ThisInstruction &&
		o.PublicKeyInstructionIndex == ThisInstruction &&
		o.MessageInstructionIndex == ThisInstruction
}

func (o Offsets) put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:], o.SignatureOffset)
	binary.LittleEndian.PutUint16(b[2:], o.SignatureInstructionIndex)
	binary.LittleEndian.PutUint16(b[4:], o.PublicKeyOffset)
	binary.LittleEndian.PutUint16(b[6:], o.PublicKeyInstructionIndex)
	binary.LittleEndian.PutUint16(b[8:], o.MessageDataOffset)
	binary.LittleEndian.PutUint16(b[10:], o.MessageDataSize)
	binary.LittleEndian.PutUint16(b[12:], o.MessageInstructionIndex)
}

func readOffsets(b []byte) Offsets {
	return Offsets{
		SignatureOffset:           binary.LittleEndian.Uint16(b[0:]),
		SignatureInstructionIndex: binary.LittleEndian.Uint16(b[2:]),
		PublicKeyOffset:           binary.LittleEndian.Uint16(b[4:]),
		PublicKeyInstructionIndex: binary.LittleEndian.Uint16(b[6:]),
		MessageDataOffset:         binary.LittleEndian.Uint16(b[8:]),
		MessageDataSize:           binary.LittleEndian.Uint16(b[10:]),
		MessageInstructionIndex:   binary.LittleEndian.Uint16(b[12:]),
	}
}

// Entry is one parsed signature entry. Only self-contained entries carry
// their public key, signature and message.
type Entry struct {
	Verifiable bool
	Offsets    Offsets
	PublicKey  Optional[address.Pubkey]
	Signature  Optional[[crypto.SignatureSize]byte]
	Message    Optional[[]byte]
}

// SignedMessage is the input for building a self-contained entry
type SignedMessage struct {
	PublicKey address.Pubkey
	Signature []byte
	Message   []byte
}

// Unpack parses a record into its entries
func Unpack(data []byte) ([]Entry, error) {
	if len(data) < OffsetsStart {
		return nil, ErrDataLength
	}

	count := int(data[0])
	if len(data) < OffsetsStart+count*OffsetsSize {
		return nil, ErrDataLength
	}

	entries := make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		start := OffsetsStart + i*OffsetsSize
		offsets := readOffsets(data[start : start+OffsetsSize])

		entry := Entry{
			Verifiable: offsets.SelfContained(),
			Offsets:    offsets,
			PublicKey:  None[address.Pubkey](),
			Signature:  None[[crypto.SignatureSize]byte](),
			Message:    None[[]byte](),
		}

		if entry.Verifiable {
			pk, err := slice(data, offsets.PublicKeyOffset, address.Size)
			if err != nil {
				return nil, err
			}
			sig, err := slice(data, offsets.SignatureOffset, crypto.SignatureSize)
			if err != nil {
				return nil, err
			}
			msg, err := slice(data, offsets.MessageDataOffset, int(offsets.MessageDataSize))
			if err != nil {
				return nil, err
			}

			var key address.Pubkey
			copy(key[:], pk)
			var signature [crypto.SignatureSize]byte
			copy(signature[:], sig)

			entry.PublicKey = Some(key)
			entry.Signature = Some(signature)
			entry.Message = Some(append([]byte(nil), msg...))
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// Pack builds a record whose entries are all self-contained
func Pack(msgs ...SignedMessage) ([]byte, error) {
	if len(msgs) > math.MaxUint8 {
		return nil, fmt.Errorf("too many signatures: %d", len(msgs))
	}

	headerLen := OffsetsStart + len(msgs)*OffsetsSize
	data := make([]byte, headerLen)
	data[0] = uint8(len(msgs))

	for i, m := range msgs {
		if len(m.Signature) != crypto.SignatureSize {
			return nil, fmt.Errorf("entry %d: signature must be %d bytes", i, crypto.SignatureSize)
		}

		pkOffset := len(data)
		data = append(data, m.PublicKey[:]...)
		sigOffset := len(data)
		data = append(data, m.Signature...)
		msgOffset := len(data)
		data = append(data, m.Message...)

		if len(data) > math.MaxUint16 || len(m.Message) > math.MaxUint16 {
			return nil, ErrDataLength
		}

		Offsets{
			SignatureOffset:           uint16(sigOffset),
			SignatureInstructionIndex: ThisInstruction,
			PublicKeyOffset:           uint16(pkOffset),
			PublicKeyInstructionIndex: ThisInstruction,
			MessageDataOffset:         uint16(msgOffset),
			MessageDataSize:           uint16(len(m.Message)),
			MessageInstructionIndex:   ThisInstruction,
		}.put(data[OffsetsStart+i*OffsetsSize:])
	}

	return data, nil
}

func slice(data []byte, offset uint16, size int) ([]byte, error) {
	start := int(offset)
	end := start + size
	if size < 0 || end > len(data) {
		return nil, ErrDataLength
	}
	return data[start:end], nil
}
