package dice

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dicesettle/internal/address"
	"dicesettle/internal/crypto"
	"dicesettle/internal/protocol"
	"dicesettle/internal/sigverify"
)

// Positions inside a single-entry record built by sigverify.Pack
const (
	recordPublicKeyAt = sigverify.OffsetsStart + sigverify.OffsetsSize
	recordSignatureAt = recordPublicKeyAt + address.Size
	recordMessageAt   = recordSignatureAt + crypto.SignatureSize
)

type verifyFixture struct {
	player *crypto.Keypair
	bet    *Bet
	sig    []byte
	record protocol.Instruction
}

func newVerifyFixture(t *testing.T) *verifyFixture {
	seed := crypto.Hash([]byte("player"))
	player, err := crypto.KeypairFromSeed(seed[:])
	require.NoError(t, err)

	bet := testBet()
	bet.Player = player.PublicKey()
	sig, err := player.Sign(bet.ToSlice())
	require.NoError(t, err)

	record, err := sigverify.NewInstruction(bet.Player, bet.ToSlice(), sig)
	require.NoError(t, err)

	return &verifyFixture{player: player, bet: bet, sig: sig, record: record}
}

func (f *verifyFixture) view(record protocol.Instruction) *protocol.Instructions {
	resolve := protocol.Instruction{ProgramID: ProgramID}
	return protocol.NewInstructions([]protocol.Instruction{record, resolve}, 1)
}

func TestVerifyEd25519Signature(t *testing.T) {
	f := newVerifyFixture(t)
	require.NoError(t, VerifyEd25519Signature(f.view(f.record), f.sig, f.bet))
}

func TestVerifyEd25519SignatureRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet)
		wantErr error
	}{
		{
			name: "no instructions",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				return protocol.NewInstructions(nil, 0), f.sig, f.bet
			},
			wantErr: ErrRecordMissing,
		},
		{
			name: "wrong verifier",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				rec := f.record.Clone()
				rec.ProgramID = address.SystemProgramID
				return f.view(rec), f.sig, f.bet
			},
			wantErr: ErrWrongVerifier,
		},
		{
			name: "record at position one",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				resolve := protocol.Instruction{ProgramID: ProgramID}
				return protocol.NewInstructions([]protocol.Instruction{resolve, f.record}, 0), f.sig, f.bet
			},
			wantErr: ErrRecordMissing,
		},
		{
			name: "record after a leading resolve",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				resolve := protocol.Instruction{ProgramID: ProgramID}
				other := protocol.Instruction{ProgramID: address.SystemProgramID}
				return protocol.NewInstructions([]protocol.Instruction{other, resolve, f.record}, 1), f.sig, f.bet
			},
			wantErr: ErrWrongVerifier,
		},
		{
			name: "executing from the record position",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				resolve := protocol.Instruction{ProgramID: ProgramID}
				return protocol.NewInstructions([]protocol.Instruction{f.record, resolve}, 0), f.sig, f.bet
			},
			wantErr: ErrRecordMissing,
		},
		{
			name: "record with accounts",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				rec := f.record.Clone()
				rec.Accounts = []protocol.AccountMeta{protocol.Readonly(f.bet.Player)}
				return f.view(rec), f.sig, f.bet
			},
			wantErr: ErrUnexpectedAccounts,
		},
		{
			name: "truncated record",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				rec := f.record.Clone()
				rec.Data = rec.Data[:recordMessageAt]
				return f.view(rec), f.sig, f.bet
			},
			wantErr: ErrMalformedRecord,
		},
		{
			name: "two signatures",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				msg := sigverify.SignedMessage{PublicKey: f.bet.Player, Signature: f.sig, Message: f.bet.ToSlice()}
				data, err := sigverify.Pack(msg, msg)
				require.NoError(t, err)
				return f.view(protocol.Instruction{ProgramID: sigverify.ProgramID, Data: data}), f.sig, f.bet
			},
			wantErr: ErrWrongSignatureCount,
		},
		{
			name: "no signatures",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				return f.view(protocol.Instruction{ProgramID: sigverify.ProgramID, Data: []byte{0, 0}}), f.sig, f.bet
			},
			wantErr: ErrWrongSignatureCount,
		},
		{
			name: "entry references another instruction",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				rec := f.record.Clone()
				// signature_instruction_index
				binary.LittleEndian.PutUint16(rec.Data[sigverify.OffsetsStart+2:], 1)
				return f.view(rec), f.sig, f.bet
			},
			wantErr: ErrMissingVerifiabilityFlag,
		},
		{
			name: "tampered signer",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				rec := f.record.Clone()
				rec.Data[recordPublicKeyAt] ^= 1
				return f.view(rec), f.sig, f.bet
			},
			wantErr: ErrSignerMismatch,
		},
		{
			name: "tampered record signature",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				rec := f.record.Clone()
				rec.Data[recordSignatureAt] ^= 1
				return f.view(rec), f.sig, f.bet
			},
			wantErr: ErrSignatureMismatch,
		},
		{
			name: "tampered submitted signature",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				sig := append([]byte(nil), f.sig...)
				sig[63] ^= 1
				return f.view(f.record), sig, f.bet
			},
			wantErr: ErrSignatureMismatch,
		},
		{
			name: "short submitted signature",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				return f.view(f.record), f.sig[:32], f.bet
			},
			wantErr: ErrSignatureMismatch,
		},
		{
			name: "tampered message",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				rec := f.record.Clone()
				rec.Data[recordMessageAt] ^= 1
				return f.view(rec), f.sig, f.bet
			},
			wantErr: ErrMessageMismatch,
		},
		{
			name: "signature for another bet",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				other := *f.bet
				other.Seed = NewSeed(8)
				return f.view(f.record), f.sig, &other
			},
			wantErr: ErrMessageMismatch,
		},
		{
			name: "bet of another player",
			mutate: func(f *verifyFixture) (*protocol.Instructions, []byte, *Bet) {
				other := *f.bet
				other.Player[0] ^= 1
				return f.view(f.record), f.sig, &other
			},
			wantErr: ErrSignerMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newVerifyFixture(t)
			view, sig, bet := tt.mutate(f)
			err := VerifyEd25519Signature(view, sig, bet)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestVerifyEd25519SignatureDoesNotMutate(t *testing.T) {
	f := newVerifyFixture(t)
	before := f.record.Clone()
	betBefore := *f.bet
	view := f.view(f.record)

	require.NoError(t, VerifyEd25519Signature(view, f.sig, f.bet))

	after, err := view.LoadInstructionAt(0)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, betBefore, *f.bet)
}
