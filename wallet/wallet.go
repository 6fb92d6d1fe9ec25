// Package wallet derives and loads signing keys for agent identities. It
// covers BIP-39 mnemonics (with BIP-44 derivation for EVM, seed truncation
// for Solana), and geth-format encrypted keystore files. The derived hex
// keys plug straight into signer.Config.PrivateKey.
package wallet

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	"github.com/xacheai/xache-go"
)

// Key is a derived keypair ready for signer configuration.
type Key struct {
	// PrivateKeyHex is the private key as lowercase hex without a 0x
	// prefix, the form signer.Config.PrivateKey accepts.
	PrivateKeyHex string

	// Address is the EVM checksum address or Solana base58 public key.
	Address string
}

// NewMnemonic generates a fresh BIP-39 mnemonic with the given entropy in
// bits (128 for 12 words, 256 for 24).
func NewMnemonic(bits int) (string, error) {
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("%w: %v", xache.ErrInvalidMnemonic, err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("%w: %v", xache.ErrInvalidMnemonic, err)
	}
	return mnemonic, nil
}

// DeriveEVMKey derives an Ethereum keypair from a mnemonic along the
// standard BIP-44 path m/44'/60'/0'/0/{index}.
func DeriveEVMKey(mnemonic string, index uint32) (Key, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return Key{}, xache.ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")

	key, err := deriveEthereumKey(seed, index)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", xache.ErrInvalidMnemonic, err)
	}
	return Key{
		PrivateKeyHex: hex.EncodeToString(crypto.FromECDSA(key)),
		Address:       crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}, nil
}

// DeriveSolanaKey derives an ed25519 keypair from a mnemonic. The first 32
// bytes of the BIP-39 seed become the ed25519 seed, matching common Solana
// wallet behavior for non-HD accounts.
func DeriveSolanaKey(mnemonic string) (Key, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return Key{}, xache.ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, "")

	key := ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])
	return Key{
		PrivateKeyHex: hex.EncodeToString(seed[:ed25519.SeedSize]),
		Address:       base58.Encode(key.Public().(ed25519.PublicKey)),
	}, nil
}

// LoadKeystoreKey decrypts a geth-format keystore file.
func LoadKeystoreKey(path, password string) (Key, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Key{}, fmt.Errorf("%w: %v", xache.ErrInvalidKeystore, err)
	}

	var keyJSON struct {
		Crypto keystore.CryptoJSON `json:"crypto"`
	}
	if err := json.Unmarshal(data, &keyJSON); err != nil {
		return Key{}, fmt.Errorf("%w: invalid JSON format", xache.ErrInvalidKeystore)
	}

	raw, err := keystore.DecryptDataV3(keyJSON.Crypto, password)
	if err != nil {
		return Key{}, fmt.Errorf("%w: decryption failed", xache.ErrInvalidKeystore)
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return Key{}, fmt.Errorf("%w: invalid private key", xache.ErrInvalidKeystore)
	}
	return Key{
		PrivateKeyHex: hex.EncodeToString(crypto.FromECDSA(key)),
		Address:       crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}, nil
}

// deriveEthereumKey walks the BIP-44 path m/44'/60'/0'/0/{index}.
func deriveEthereumKey(seed []byte, index uint32) (*ecdsa.PrivateKey, error) {
	masterKey, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, err
	}

	path := []uint32{
		bip32.FirstHardenedChild + 44, // purpose
		bip32.FirstHardenedChild + 60, // Ethereum coin type
		bip32.FirstHardenedChild + 0,  // account 0
		0,                             // external chain
		index,
	}
	key := masterKey
	for _, segment := range path {
		if key, err = key.NewChildKey(segment); err != nil {
			return nil, err
		}
	}
	return crypto.ToECDSA(key.Key)
}
