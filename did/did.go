// Package did parses and validates Xache decentralized identifiers.
//
// A DID has the form did:<agent|owner>:<evm|sol>:<address>. The chain type
// and address are derived by parsing and never stored redundantly; a DID is
// immutable once constructed.
package did

import (
	"fmt"
	"regexp"

	"github.com/xacheai/xache-go"
)

// EntityType is the kind of actor a DID identifies.
type EntityType string

const (
	EntityAgent EntityType = "agent"
	EntityOwner EntityType = "owner"
)

// ChainType is the blockchain a DID's address lives on.
type ChainType string

const (
	ChainEVM    ChainType = "evm"
	ChainSolana ChainType = "sol"
)

var (
	didRegex = regexp.MustCompile(`^did:(agent|owner):(evm|sol):([1-9A-HJ-NP-Za-km-z0-9xX]+)$`)

	// evmAddressRegex matches 0x followed by exactly 40 hex characters.
	evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// solanaAddressRegex matches base58 strings of 32-44 characters. The
	// base58 alphabet excludes 0, O, I, and l.
	solanaAddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
)

// DID is a parsed, validated identifier. The zero value is not valid; use
// Parse.
type DID struct {
	raw     string
	entity  EntityType
	chain   ChainType
	address string
}

// Parse validates and decomposes a DID string.
func Parse(s string) (DID, error) {
	m := didRegex.FindStringSubmatch(s)
	if m == nil {
		return DID{}, fmt.Errorf("%w: %q", xache.ErrInvalidDID, s)
	}

	chain := ChainType(m[2])
	address := m[3]
	switch chain {
	case ChainEVM:
		if !evmAddressRegex.MatchString(address) {
			return DID{}, fmt.Errorf("%w: %q: bad EVM address", xache.ErrInvalidDID, s)
		}
	case ChainSolana:
		if !solanaAddressRegex.MatchString(address) {
			return DID{}, fmt.Errorf("%w: %q: bad Solana address", xache.ErrInvalidDID, s)
		}
	}

	return DID{
		raw:     s,
		entity:  EntityType(m[1]),
		chain:   chain,
		address: address,
	}, nil
}

// MustParse is Parse for known-good inputs; it panics on error.
func MustParse(s string) DID {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// IsValid reports whether s is a well-formed DID.
func IsValid(s string) bool {
	_, err := Parse(s)
	return err == nil
}

// String returns the original DID string.
func (d DID) String() string { return d.raw }

// Entity returns the entity type (agent or owner).
func (d DID) Entity() EntityType { return d.entity }

// Chain returns the chain type encoded in the DID.
func (d DID) Chain() ChainType { return d.chain }

// Address returns the embedded chain address.
func (d DID) Address() string { return d.address }

// IsZero reports whether d is the zero DID.
func (d DID) IsZero() bool { return d.raw == "" }
