// Package commitment computes the public hash binding a secret outcome and
// salt. The encoding must match the on-chain verifier exactly: ABI-encoded
// (bool, bytes32), hashed with keccak256. Any deviation makes reveal fail
// on-chain.
package commitment

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	oerrors "github.com/lalalune/babylon-oracle/errors"
)

var commitmentArgs abi.Arguments

func init() {
	boolType, err := abi.NewType("bool", "", nil)
	if err != nil {
		panic(err)
	}
	bytes32Type, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		panic(err)
	}
	commitmentArgs = abi.Arguments{
		{Type: boolType},
		{Type: bytes32Type},
	}
}

// ParseSalt converts a 0x-prefixed 64-character hex salt into its fixed
// 32-byte form.
func ParseSalt(salt string) ([32]byte, error) {
	var out [32]byte

	trimmed := strings.TrimPrefix(salt, "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return out, oerrors.NewValidationError(fmt.Sprintf("salt is not valid hex: %v", err))
	}
	if len(raw) != 32 {
		return out, oerrors.NewValidationError(
			fmt.Sprintf("salt must be 32 bytes, got %d", len(raw)))
	}

	copy(out[:], raw)
	return out, nil
}

// Compute returns keccak256(abi.encode(outcome, salt)). It is deterministic:
// the same (outcome, salt) pair always yields the same commitment.
func Compute(outcome bool, salt string) (ethcommon.Hash, error) {
	saltBytes, err := ParseSalt(salt)
	if err != nil {
		return ethcommon.Hash{}, err
	}

	encoded, err := commitmentArgs.Pack(outcome, saltBytes)
	if err != nil {
		return ethcommon.Hash{}, oerrors.NewInternalError("failed to encode commitment preimage", err)
	}

	return crypto.Keccak256Hash(encoded), nil
}

// Verify recomputes the commitment for (outcome, salt) and compares it with
// the expected hash. Used before submitting a reveal to catch local
// corruption early, since a mismatch would revert on-chain.
func Verify(outcome bool, salt string, expected ethcommon.Hash) (bool, error) {
	got, err := Compute(outcome, salt)
	if err != nil {
		return false, err
	}
	return got == expected, nil
}
