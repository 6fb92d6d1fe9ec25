package signer

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xacheai/xache-go"
)

const (
	testEVMKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	testEVMDID = "did:agent:evm:0x1234567890abcdef1234567890abcdef12345678"
	testSolDID = "did:agent:sol:EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func testSolanaSeed() []byte {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i + 1)
	}
	return seed
}

func sampleTypedData(t *testing.T) apitypes.TypedData {
	t.Helper()
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              "USD Coin",
			Version:           "2",
			ChainId:           math.NewHexOrDecimal256(8453),
			VerifyingContract: "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913",
		},
		Message: apitypes.TypedDataMessage{
			"from":        "0x1234567890abcdef1234567890abcdef12345678",
			"to":          "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd",
			"value":       (*math.HexOrDecimal256)(big.NewInt(1000)),
			"validAfter":  (*math.HexOrDecimal256)(big.NewInt(1_700_000_000)),
			"validBefore": (*math.HexOrDecimal256)(big.NewInt(1_700_000_300)),
			"nonce":       "0x" + hex.EncodeToString(bytesOf(32, 7)),
		},
	}
}

func bytesOf(n int, fill byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = fill
	}
	return b
}

func TestFactorySelection(t *testing.T) {
	extKey := "8da4ef21b864d2cc526dbdb2a120bd2874c36c9d0a1fb7f8c63d7f7a8b41de8f"
	ext, err := NewLocalEVMSigner(extKey)
	require.NoError(t, err)

	t.Run("raw key wins over external and provider", func(t *testing.T) {
		s, err := New(Config{
			DID:        testEVMDID,
			PrivateKey: testEVMKey,
			External:   ext,
			Provider: func(context.Context) (ExternalSigner, error) {
				return ext, nil
			},
		})
		require.NoError(t, err)

		key, _ := crypto.HexToECDSA(testEVMKey)
		want := crypto.PubkeyToAddress(key.PublicKey).Hex()
		addr, err := s.Address(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, addr)
	})

	t.Run("external wins over provider", func(t *testing.T) {
		s, err := New(Config{
			DID:      testEVMDID,
			External: ext,
			Provider: func(context.Context) (ExternalSigner, error) {
				t.Fatal("provider must not be used when an external signer is present")
				return nil, nil
			},
		})
		require.NoError(t, err)
		addr, err := s.Address(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ext.Address(), addr)
	})

	t.Run("no key material yields read-only", func(t *testing.T) {
		s, err := New(Config{DID: testEVMDID})
		require.NoError(t, err)
		assert.False(t, s.CanSign())
	})

	t.Run("missing DID rejected", func(t *testing.T) {
		_, err := New(Config{PrivateKey: testEVMKey})
		require.Error(t, err)
	})

	t.Run("malformed DID rejected", func(t *testing.T) {
		_, err := New(Config{DID: "did:admin:evm:0x1234"})
		require.ErrorIs(t, err, xache.ErrInvalidDID)
	})

	t.Run("malformed key rejected", func(t *testing.T) {
		_, err := New(Config{DID: testEVMDID, PrivateKey: "zz"})
		require.ErrorIs(t, err, xache.ErrInvalidKey)
	})
}

func TestSignAuthMessageDeterminism(t *testing.T) {
	s, err := New(Config{DID: testEVMDID, PrivateKey: testEVMKey})
	require.NoError(t, err)

	msg := "GET\n/v1/memories?scope=all\nabc\n1700000000000\n" + testEVMDID
	first, err := s.SignAuthMessage(context.Background(), msg)
	require.NoError(t, err)
	second, err := s.SignAuthMessage(context.Background(), msg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 130) // 65 bytes, lowercase hex, no 0x prefix
	assert.NotContains(t, first, "0x")
}

func TestEVMAuthSignatureShape(t *testing.T) {
	s, err := New(Config{DID: testEVMDID, PrivateKey: testEVMKey})
	require.NoError(t, err)

	msg := "POST\n/v1/knowledge\nhash\n1700000000000\n" + testEVMDID
	sigHex, err := s.SignAuthMessage(context.Background(), msg)
	require.NoError(t, err)

	sig, err := hex.DecodeString(sigHex)
	require.NoError(t, err)
	require.Len(t, sig, 65)

	// The digest is the raw keccak-256 of the message, not an EIP-191 hash.
	digest := crypto.Keccak256([]byte(msg))
	recoverable := append(append([]byte{}, sig[:64]...), sig[64]-27)
	pub, err := crypto.SigToPub(digest, recoverable)
	require.NoError(t, err)

	key, _ := crypto.HexToECDSA(testEVMKey)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(*pub))
}

func TestCrossBackendParity(t *testing.T) {
	raw, err := New(Config{DID: testEVMDID, PrivateKey: testEVMKey})
	require.NoError(t, err)

	local, err := NewLocalEVMSigner(testEVMKey)
	require.NoError(t, err)
	ext, err := New(Config{DID: testEVMDID, External: local})
	require.NoError(t, err)

	msg := "GET\n/v1/reputation\nhash\n1700000000000\n" + testEVMDID
	rawSig, err := raw.SignAuthMessage(context.Background(), msg)
	require.NoError(t, err)
	extSig, err := ext.SignAuthMessage(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, rawSig, extSig)

	typed := sampleTypedData(t)
	rawTyped, err := raw.SignTypedData(context.Background(), typed)
	require.NoError(t, err)
	extTyped, err := ext.SignTypedData(context.Background(), typed)
	require.NoError(t, err)
	assert.Equal(t, rawTyped, extTyped)
}

func TestDomainSeparation(t *testing.T) {
	s, err := New(Config{DID: testEVMDID, PrivateKey: testEVMKey})
	require.NoError(t, err)

	typed := sampleTypedData(t)
	typedSig, err := s.SignTypedData(context.Background(), typed)
	require.NoError(t, err)

	// Signing the JSON rendering of the same logical payload as an auth
	// message must not produce an interchangeable signature.
	authSig, err := s.SignAuthMessage(context.Background(), fmt.Sprintf("%v", typed.Message))
	require.NoError(t, err)

	assert.NotEqual(t, typedSig, "0x"+authSig)
}

func TestSolanaAuthSignature(t *testing.T) {
	seed := testSolanaSeed()
	s, err := New(Config{DID: testSolDID, PrivateKey: hex.EncodeToString(seed)})
	require.NoError(t, err)

	msg := "GET\n/v1/memories\nhash\n1700000000000\n" + testSolDID
	sigB58, err := s.SignAuthMessage(context.Background(), msg)
	require.NoError(t, err)

	sig, err := base58.Decode(sigB58)
	require.NoError(t, err)
	require.Len(t, sig, 64)

	// Solana signs the raw message bytes; no pre-hash.
	key := ed25519.NewKeyFromSeed(seed)
	assert.True(t, ed25519.Verify(key.Public().(ed25519.PublicKey), []byte(msg), sig))
}

func TestChainCapabilityErrors(t *testing.T) {
	evmSigner, err := New(Config{DID: testEVMDID, PrivateKey: testEVMKey})
	require.NoError(t, err)
	solSigner, err := New(Config{DID: testSolDID, PrivateKey: hex.EncodeToString(testSolanaSeed())})
	require.NoError(t, err)

	_, err = solSigner.SignTypedData(context.Background(), sampleTypedData(t))
	require.ErrorIs(t, err, xache.ErrChainMismatch)

	err = evmSigner.SignSolanaTransaction(context.Background(), &solana.Transaction{})
	require.ErrorIs(t, err, xache.ErrChainMismatch)
}

func TestReadOnlySigner(t *testing.T) {
	s, err := New(Config{DID: testEVMDID})
	require.NoError(t, err)

	addr, err := s.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x1234567890abcdef1234567890abcdef12345678", addr)

	_, err = s.SignAuthMessage(context.Background(), "anything")
	require.ErrorIs(t, err, xache.ErrSigningUnavailable)

	seed, err := s.EncryptionSeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0x1234567890abcdef1234567890abcdef12345678", seed)
}

func TestEncryptionSeed(t *testing.T) {
	t.Run("raw key returns the key", func(t *testing.T) {
		s, err := New(Config{DID: testEVMDID, PrivateKey: "0x" + testEVMKey})
		require.NoError(t, err)
		seed, err := s.EncryptionSeed(context.Background())
		require.NoError(t, err)
		assert.Equal(t, testEVMKey, seed)
	})

	t.Run("explicit override wins", func(t *testing.T) {
		s, err := New(Config{DID: testEVMDID, PrivateKey: testEVMKey, EncryptionSecret: "override"})
		require.NoError(t, err)
		seed, err := s.EncryptionSeed(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "override", seed)
	})

	t.Run("external falls back to address", func(t *testing.T) {
		local, err := NewLocalEVMSigner(testEVMKey)
		require.NoError(t, err)
		s, err := New(Config{DID: testEVMDID, External: local})
		require.NoError(t, err)
		seed, err := s.EncryptionSeed(context.Background())
		require.NoError(t, err)
		assert.Equal(t, local.Address(), seed)
	})
}

func TestProviderSingleFlight(t *testing.T) {
	var resolutions atomic.Int32
	local, err := NewLocalEVMSigner(testEVMKey)
	require.NoError(t, err)

	s, err := New(Config{
		DID: testEVMDID,
		Provider: func(context.Context) (ExternalSigner, error) {
			resolutions.Add(1)
			time.Sleep(20 * time.Millisecond)
			return local, nil
		},
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			addr, err := s.Address(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, local.Address(), addr)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, resolutions.Load())
}

func TestProviderErrorNotMemoized(t *testing.T) {
	var calls atomic.Int32
	local, err := NewLocalEVMSigner(testEVMKey)
	require.NoError(t, err)

	s, err := New(Config{
		DID: testEVMDID,
		Provider: func(context.Context) (ExternalSigner, error) {
			if calls.Add(1) == 1 {
				return nil, errors.New("wallet locked")
			}
			return local, nil
		},
	})
	require.NoError(t, err)

	_, err = s.Address(context.Background())
	require.Error(t, err)

	addr, err := s.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, local.Address(), addr)
	assert.EqualValues(t, 2, calls.Load())
}

func TestSignSolanaTransaction(t *testing.T) {
	seed := testSolanaSeed()
	key := ed25519.NewKeyFromSeed(seed)
	owner := solana.PublicKeyFromBytes(key.Public().(ed25519.PublicKey))
	feePayer := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	buildTx := func(t *testing.T) *solana.Transaction {
		t.Helper()
		inst := solana.NewInstruction(
			solana.TokenProgramID,
			solana.AccountMetaSlice{
				solana.Meta(solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")).WRITE(),
				solana.Meta(owner).SIGNER(),
			},
			[]byte{3, 0, 0, 0, 0, 0, 0, 0, 0},
		)
		tx, err := solana.NewTransaction(
			[]solana.Instruction{inst},
			solana.Hash{},
			solana.TransactionPayer(feePayer),
		)
		require.NoError(t, err)
		return tx
	}

	t.Run("writes signature into matching slot", func(t *testing.T) {
		s, err := New(Config{DID: testSolDID, PrivateKey: hex.EncodeToString(seed)})
		require.NoError(t, err)

		tx := buildTx(t)
		require.NoError(t, s.SignSolanaTransaction(context.Background(), tx))

		numSigners := int(tx.Message.Header.NumRequiredSignatures)
		require.Equal(t, 2, numSigners)
		require.Len(t, tx.Signatures, numSigners)

		// Fee payer slot stays empty for the facilitator.
		assert.True(t, tx.Signatures[0].IsZero())

		msg, err := tx.Message.MarshalBinary()
		require.NoError(t, err)
		assert.True(t, ed25519.Verify(key.Public().(ed25519.PublicKey), msg, tx.Signatures[1][:]))
	})

	t.Run("unmatched signer key is fatal", func(t *testing.T) {
		otherSeed := bytesOf(ed25519.SeedSize, 0x42)
		s, err := New(Config{DID: testSolDID, PrivateKey: hex.EncodeToString(otherSeed)})
		require.NoError(t, err)

		err = s.SignSolanaTransaction(context.Background(), buildTx(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not a required signer")
	})
}
