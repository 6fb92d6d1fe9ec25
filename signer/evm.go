package signer

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// authMessageDigest hashes the canonical auth message for EVM signing. The
// server verifies the raw keccak-256 hash; there is no EIP-191 prefix here,
// and adding one would produce a signature the server rejects.
func authMessageDigest(message string) []byte {
	return crypto.Keccak256([]byte(message))
}

// hashTypedData computes the EIP-712 digest:
// keccak256("\x19\x01" || domainSeparator || structHash).
func hashTypedData(typed apitypes.TypedData) ([]byte, error) {
	domainSeparator, err := typed.HashStruct("EIP712Domain", typed.Domain.Map())
	if err != nil {
		return nil, fmt.Errorf("failed to hash domain: %w", err)
	}

	structHash, err := typed.HashStruct(typed.PrimaryType, typed.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to hash message: %w", err)
	}

	rawData := append([]byte{0x19, 0x01}, append(domainSeparator, structHash...)...)
	return crypto.Keccak256(rawData), nil
}

// signEVMDigest signs a 32-byte digest with secp256k1 and adjusts the
// recovery byte to the Ethereum convention (27/28).
func signEVMDigest(key *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return nil, err
	}
	sig[64] += 27
	return sig, nil
}
