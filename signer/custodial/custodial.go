// Package custodial signs through a remote wallet service that holds the
// key material. It satisfies signer.ExternalSigner, so a custodial account
// plugs into the adapter like any other external signer:
//
//	remote, err := custodial.NewRemoteSigner(custodial.Config{...})
//	s, err := signer.New(signer.Config{DID: did, External: remote})
//
// Requests are authenticated with short-lived JWTs signed by the service
// API key; the wallet service never sees the API key itself.
package custodial

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"

	"github.com/xacheai/xache-go"
)

// bearerTokenTTL bounds how long a stolen token stays usable.
const bearerTokenTTL = 2 * time.Minute

// Auth generates per-request JWT bearer tokens for the wallet service. It
// is immutable after construction and safe for concurrent use.
type Auth struct {
	keyID      string
	host       string
	privateKey interface{}
	alg        jose.SignatureAlgorithm
}

// tokenClaims extends the standard claims with the request binding the
// wallet service verifies.
type tokenClaims struct {
	*jwt.Claims

	// URI is "{METHOD} {host}{path}".
	URI string `json:"uri"`

	// ReqHash is the hex SHA-256 of the request body, when there is one.
	ReqHash string `json:"reqHash,omitempty"`
}

// NewAuth parses a PEM-encoded ECDSA or Ed25519 API key. The host is the
// wallet service hostname bound into each token's uri claim.
func NewAuth(keyID, pemKey, host string) (*Auth, error) {
	if keyID == "" {
		return nil, xache.NewProtocolError(xache.ErrCodeInvalidConfig,
			"wallet service key id must not be empty", xache.ErrInvalidKey)
	}

	block, _ := pem.Decode([]byte(pemKey))
	if block == nil {
		return nil, xache.NewProtocolError(xache.ErrCodeInvalidConfig,
			"API key is not valid PEM", xache.ErrInvalidKey)
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		// PKCS8 covers both ECDSA and Ed25519.
		pkcs8, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, xache.NewProtocolError(xache.ErrCodeInvalidConfig,
				"failed to parse API key", xache.ErrInvalidKey)
		}
		alg := jose.SignatureAlgorithm(jose.EdDSA)
		if _, ok := pkcs8.(*ecdsa.PrivateKey); ok {
			alg = jose.ES256
		}
		return &Auth{keyID: keyID, host: host, privateKey: pkcs8, alg: alg}, nil
	}
	return &Auth{keyID: keyID, host: host, privateKey: key, alg: jose.ES256}, nil
}

// BearerToken signs a short-lived JWT bound to one request.
func (a *Auth) BearerToken(method, path string, body []byte) (string, error) {
	sig, err := jose.NewSigner(
		jose.SigningKey{Algorithm: a.alg, Key: a.privateKey},
		(&jose.SignerOptions{}).WithType("JWT").WithHeader("kid", a.keyID),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create token signer: %w", err)
	}

	var reqHash string
	if len(body) > 0 {
		sum := sha256.Sum256(body)
		reqHash = hex.EncodeToString(sum[:])
	}

	now := time.Now()
	claims := &tokenClaims{
		Claims: &jwt.Claims{
			Subject:   a.keyID,
			Issuer:    "xache-wallet",
			NotBefore: jwt.NewNumericDate(now),
			Expiry:    jwt.NewNumericDate(now.Add(bearerTokenTTL)),
		},
		URI:     fmt.Sprintf("%s %s%s", method, a.host, path),
		ReqHash: reqHash,
	}

	token, err := jwt.Signed(sig).Claims(claims).CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("failed to serialize token: %w", err)
	}
	return token, nil
}

// Config parameterizes a RemoteSigner.
type Config struct {
	// Auth signs the per-request bearer tokens. Required.
	Auth *Auth

	// BaseURL is the wallet service endpoint. Required.
	BaseURL string

	// Address is the custodial account's chain address. Required; the
	// service derives the chain from the account, not the request.
	Address string

	// HTTPClient overrides the default client (10s timeout).
	HTTPClient *http.Client
}

// RemoteSigner asks the wallet service to sign on behalf of a custodial
// account. It implements signer.ExternalSigner.
type RemoteSigner struct {
	auth    *Auth
	base    *url.URL
	address string
	http    *http.Client
}

// NewRemoteSigner validates the configuration and builds a RemoteSigner.
func NewRemoteSigner(cfg Config) (*RemoteSigner, error) {
	if cfg.Auth == nil || cfg.BaseURL == "" || cfg.Address == "" {
		return nil, xache.NewProtocolError(xache.ErrCodeInvalidConfig,
			"custodial signer requires auth, base URL, and address", errors.New("incomplete config"))
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, xache.NewProtocolError(xache.ErrCodeInvalidConfig,
			"invalid wallet service URL", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &RemoteSigner{
		auth:    cfg.Auth,
		base:    base,
		address: cfg.Address,
		http:    client,
	}, nil
}

// Address returns the custodial account address.
func (r *RemoteSigner) Address() string { return r.address }

// SignMessage signs arbitrary message bytes with the custodial key. The
// service applies the chain's rules (keccak+secp256k1 for EVM accounts,
// raw ed25519 for Solana accounts), keeping the adapter parity contract.
func (r *RemoteSigner) SignMessage(message []byte) ([]byte, error) {
	path := fmt.Sprintf("/v1/accounts/%s/sign/message", r.address)
	return r.sign(path, map[string]string{
		"message": base64.StdEncoding.EncodeToString(message),
	})
}

// SignTypedData has the service produce an EIP-712 signature. EVM accounts
// only.
func (r *RemoteSigner) SignTypedData(typed apitypes.TypedData) ([]byte, error) {
	path := fmt.Sprintf("/v1/accounts/%s/sign/typed-data", r.address)
	return r.sign(path, typed)
}

func (r *RemoteSigner) sign(path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signing request: %w", err)
	}

	token, err := r.auth.BearerToken(http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}

	endpoint := *r.base
	endpoint.Path = path
	req, err := http.NewRequest(http.MethodPost, endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: wallet service: %v", xache.ErrNetworkFailure, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading wallet service response: %v", xache.ErrNetworkFailure, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, xache.NewProtocolError(xache.ErrCodeSigningUnavailable,
			fmt.Sprintf("wallet service returned %d", resp.StatusCode), xache.ErrSigningUnavailable).
			WithDetails("address", r.address)
	}

	var result struct {
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unparseable wallet service response: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(result.Signature)
	if err != nil {
		return nil, fmt.Errorf("wallet service returned invalid signature encoding: %w", err)
	}
	return sig, nil
}
