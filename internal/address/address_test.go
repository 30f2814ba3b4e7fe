package address

import (
	"crypto/ed25519"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWellKnownAddresses(t *testing.T) {
	assert.True(t, SystemProgramID.IsZero())
	assert.Equal(t, "Ed25519SigVerify111111111111111111111111111", Ed25519ProgramID.String())
	assert.Equal(t, "Sysvar1nstructions1111111111111111111111111", InstructionsSysvarID.String())
	assert.False(t, Ed25519ProgramID.Equal(InstructionsSysvarID))
}

func TestFromBase58(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expectErr bool
	}{
		{name: "valid", input: Ed25519ProgramID.String()},
		{name: "invalid characters", input: "0OIl", expectErr: true},
		{name: "too short", input: "abc", expectErr: true},
		{name: "empty", input: "", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pk, err := FromBase58(tt.input)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, pk.String())
		})
	}
}

func TestPubkeyJSON(t *testing.T) {
	type wrapper struct {
		Key Pubkey `json:"key"`
	}
	in := wrapper{Key: Ed25519ProgramID}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"Ed25519SigVerify111111111111111111111111111"}`, string(data))

	var out wrapper
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestIsOnCurve(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	pk, err := FromBytes(pub)
	require.NoError(t, err)
	assert.True(t, IsOnCurve(pk))
}

func TestFindProgramAddress(t *testing.T) {
	program := Ed25519ProgramID
	seeds := [][]byte{[]byte("vault"), InstructionsSysvarID[:]}

	pk, bump, err := FindProgramAddress(seeds, program)
	require.NoError(t, err)
	assert.False(t, IsOnCurve(pk))

	again, againBump, err := FindProgramAddress(seeds, program)
	require.NoError(t, err)
	assert.Equal(t, pk, again)
	assert.Equal(t, bump, againBump)

	recreated, err := CreateProgramAddress(append(seeds, []byte{bump}), program)
	require.NoError(t, err)
	assert.Equal(t, pk, recreated)

	other, _, err := FindProgramAddress(seeds, SystemProgramID)
	require.NoError(t, err)
	assert.NotEqual(t, pk, other)
}

func TestCreateProgramAddressLimits(t *testing.T) {
	_, err := CreateProgramAddress([][]byte{make([]byte, MaxSeedLength+1)}, SystemProgramID)
	assert.ErrorIs(t, err, ErrMaxSeedLength)

	seeds := make([][]byte, MaxSeeds+1)
	_, err = CreateProgramAddress(seeds, SystemProgramID)
	assert.ErrorIs(t, err, ErrTooManySeeds)
}

func TestDerivedSigner(t *testing.T) {
	d, err := Derive(SystemProgramID, []byte("vault"), Ed25519ProgramID[:])
	require.NoError(t, err)

	resolved, err := d.Signer().Resolve(SystemProgramID)
	require.NoError(t, err)
	assert.Equal(t, d.Address, resolved)

	// Same seeds under another program sign for a different account
	foreign, err := d.Signer().Resolve(Ed25519ProgramID)
	if err == nil {
		assert.NotEqual(t, d.Address, foreign)
	}

	withBump, err := DeriveWithBump(SystemProgramID, d.Bump, []byte("vault"), Ed25519ProgramID[:])
	require.NoError(t, err)
	assert.Equal(t, d.Address, withBump.Address)

	var empty SignerSeeds
	_, err = empty.Resolve(SystemProgramID)
	assert.Error(t, err)
}
