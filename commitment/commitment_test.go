package commitment

import (
	"strings"
	"testing"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lalalune/babylon-oracle/secrets"
)

const testSalt = "0x00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

func TestComputeDeterministic(t *testing.T) {
	first, err := Compute(true, testSalt)
	require.NoError(t, err)

	second, err := Compute(true, testSalt)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.NotEqual(t, ethcommon.Hash{}, first)
}

func TestComputeBinding(t *testing.T) {
	base, err := Compute(true, testSalt)
	require.NoError(t, err)

	// Flipping the outcome changes the commitment.
	flipped, err := Compute(false, testSalt)
	require.NoError(t, err)
	assert.NotEqual(t, base, flipped)

	// Changing the salt changes the commitment.
	otherSalt := "0x" + strings.Repeat("11", 32)
	reSalted, err := Compute(true, otherSalt)
	require.NoError(t, err)
	assert.NotEqual(t, base, reSalted)
}

func TestComputeWithGeneratedSalts(t *testing.T) {
	seen := make(map[ethcommon.Hash]bool)
	for i := 0; i < 16; i++ {
		salt, err := secrets.GenerateSalt()
		require.NoError(t, err)

		h, err := Compute(i%2 == 0, salt)
		require.NoError(t, err)
		assert.False(t, seen[h], "commitments must not collide for distinct salts")
		seen[h] = true
	}
}

func TestParseSalt(t *testing.T) {
	testCases := []struct {
		name    string
		salt    string
		wantErr bool
	}{
		{name: "valid with prefix", salt: testSalt},
		{name: "valid without prefix", salt: strings.TrimPrefix(testSalt, "0x")},
		{name: "too short", salt: "0xdeadbeef", wantErr: true},
		{name: "not hex", salt: "0x" + strings.Repeat("zz", 32), wantErr: true},
		{name: "empty", salt: "", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := ParseSalt(tc.salt)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, byte(0x00), parsed[0])
			assert.Equal(t, byte(0xff), parsed[31])
		})
	}
}

func TestVerify(t *testing.T) {
	h, err := Compute(true, testSalt)
	require.NoError(t, err)

	ok, err := Verify(true, testSalt, h)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Verify(false, testSalt, h)
	require.NoError(t, err)
	assert.False(t, ok)
}
