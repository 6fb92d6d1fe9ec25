package payment

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/xacheai/xache-go"
)

// authorizationValidity is how long a signed transferWithAuthorization stays
// redeemable. The window opens immediately: validAfter is the signing time,
// not a point in the past.
const authorizationValidity = 300 // seconds

func (h *Handler) evmPayload(ctx context.Context, ch xache.PaymentChallenge, network xache.NetworkConfig, asset string, amount *big.Int) (xache.ExactEVMPayload, error) {
	owner, err := h.signer.Address(ctx)
	if err != nil {
		return xache.ExactEVMPayload{}, err
	}

	// Balance probe. A definite shortfall is fatal and names the exact
	// amount to fund; an RPC failure is only logged, since the facilitator
	// will reject an unfunded authorization anyway.
	balance, err := h.evm.TokenBalance(ctx, network, asset, owner)
	switch {
	case err != nil:
		h.log.Warn("balance probe failed, proceeding unverified", map[string]any{
			"network": network.NetworkID,
			"error":   err.Error(),
		})
	case balance.Cmp(amount) < 0:
		shortfall := new(big.Int).Sub(amount, balance)
		return xache.ExactEVMPayload{}, xache.NewProtocolError(xache.ErrCodeInsufficientFunds,
			fmt.Sprintf("insufficient USDC on %s: need %s, have %s, short %s; fund %s",
				network.NetworkID,
				xache.FormatTokenAmount(amount, network.Decimals),
				xache.FormatTokenAmount(balance, network.Decimals),
				xache.FormatTokenAmount(shortfall, network.Decimals),
				owner),
			xache.ErrInsufficientFunds).
			WithDetails("required", xache.FormatTokenAmount(amount, network.Decimals)).
			WithDetails("available", xache.FormatTokenAmount(balance, network.Decimals)).
			WithDetails("shortfall", xache.FormatTokenAmount(shortfall, network.Decimals)).
			WithDetails("address", owner)
	}

	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return xache.ExactEVMPayload{}, fmt.Errorf("failed to generate authorization nonce: %w", err)
	}

	// Nonce collisions on 32 random bytes do not happen, so a consumed
	// answer means this exact authorization was already settled. The probe
	// itself is advisory: an RPC failure must not block payment.
	used, err := h.evm.AuthorizationState(ctx, network, asset, owner, nonce)
	if err != nil {
		h.log.Warn("authorization state probe failed, proceeding", map[string]any{
			"network": network.NetworkID,
			"error":   err.Error(),
		})
	} else if used {
		return xache.ExactEVMPayload{}, xache.NewProtocolError(xache.ErrCodeNonceConflict,
			"authorization nonce already consumed on-chain", xache.ErrNonceUsed).
			WithDetails("nonce", hexutil.Encode(nonce[:]))
	}

	now := h.now().Unix()
	auth := xache.ERC3009Authorization{
		From:        owner,
		To:          ch.PayTo,
		Value:       amount.String(),
		ValidAfter:  strconv.FormatInt(now, 10),
		ValidBefore: strconv.FormatInt(now+authorizationValidity, 10),
		Nonce:       hexutil.Encode(nonce[:]),
	}
	domain := xache.EIP712Domain{
		Name:              xache.USDCDomainName(network.NetworkID),
		Version:           "2",
		ChainID:           network.ChainID,
		VerifyingContract: asset,
	}

	signature, err := h.signer.SignTypedData(ctx, transferAuthorizationTypedData(domain, auth))
	if err != nil {
		return xache.ExactEVMPayload{}, err
	}

	return xache.ExactEVMPayload{
		Signature:     signature,
		Authorization: auth,
		Domain:        domain,
	}, nil
}

// transferAuthorizationTypedData builds the EIP-712 structure for an
// ERC-3009 transferWithAuthorization. The wire types carry the numeric
// fields as decimal strings, which apitypes accepts for uint256 directly.
func transferAuthorizationTypedData(domain xache.EIP712Domain, auth xache.ERC3009Authorization) apitypes.TypedData {
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
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           math.NewHexOrDecimal256(domain.ChainID),
			VerifyingContract: domain.VerifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"from":        auth.From,
			"to":          auth.To,
			"value":       auth.Value,
			"validAfter":  auth.ValidAfter,
			"validBefore": auth.ValidBefore,
			"nonce":       auth.Nonce,
		},
	}
}

// Minimal ERC-20/ERC-3009 read surface. balanceOf is universal;
// authorizationState is the ERC-3009 nonce registry USDC exposes.
const erc20ReadABI = `[
	{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"authorizer","type":"address"},{"name":"nonce","type":"bytes32"}],"name":"authorizationState","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"}
]`

// rpcEVMReader probes token contracts over the network's public RPC
// endpoint, dialing each endpoint at most once.
type rpcEVMReader struct {
	erc20 abi.ABI

	mu      sync.Mutex
	clients map[string]*ethclient.Client
}

func newRPCEVMReader() *rpcEVMReader {
	parsed, err := abi.JSON(strings.NewReader(erc20ReadABI))
	if err != nil {
		panic("payment: invalid embedded ERC-20 ABI: " + err.Error())
	}
	return &rpcEVMReader{
		erc20:   parsed,
		clients: make(map[string]*ethclient.Client),
	}
}

func (r *rpcEVMReader) client(network xache.NetworkConfig) (*ethclient.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[network.NetworkID]; ok {
		return c, nil
	}
	c, err := ethclient.Dial(network.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: dialing %s: %v", xache.ErrNetworkFailure, network.RPCURL, err)
	}
	r.clients[network.NetworkID] = c
	return c, nil
}

func (r *rpcEVMReader) call(ctx context.Context, network xache.NetworkConfig, token string, method string, args ...interface{}) ([]interface{}, error) {
	client, err := r.client(network)
	if err != nil {
		return nil, err
	}

	data, err := r.erc20.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s call: %w", method, err)
	}

	contract := common.HexToAddress(token)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s call on %s: %v", xache.ErrNetworkFailure, method, network.NetworkID, err)
	}

	vals, err := r.erc20.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return vals, nil
}

func (r *rpcEVMReader) TokenBalance(ctx context.Context, network xache.NetworkConfig, token, owner string) (*big.Int, error) {
	vals, err := r.call(ctx, network, token, "balanceOf", common.HexToAddress(owner))
	if err != nil {
		return nil, err
	}
	balance, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result type %T", vals[0])
	}
	return balance, nil
}

func (r *rpcEVMReader) AuthorizationState(ctx context.Context, network xache.NetworkConfig, token, authorizer string, nonce [32]byte) (bool, error) {
	vals, err := r.call(ctx, network, token, "authorizationState", common.HexToAddress(authorizer), nonce)
	if err != nil {
		return false, err
	}
	used, ok := vals[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected authorizationState result type %T", vals[0])
	}
	return used, nil
}
