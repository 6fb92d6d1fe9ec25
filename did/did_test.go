package did

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	evmAddr = "0x1234567890abcdef1234567890abcdef12345678"
	solAddr = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		entity  EntityType
		chain   ChainType
		address string
	}{
		{
			name:    "agent evm",
			input:   "did:agent:evm:" + evmAddr,
			entity:  EntityAgent,
			chain:   ChainEVM,
			address: evmAddr,
		},
		{
			name:    "owner evm",
			input:   "did:owner:evm:" + evmAddr,
			entity:  EntityOwner,
			chain:   ChainEVM,
			address: evmAddr,
		},
		{
			name:    "agent solana",
			input:   "did:agent:sol:" + solAddr,
			entity:  EntityAgent,
			chain:   ChainSolana,
			address: solAddr,
		},
		{
			name:    "evm address too short",
			input:   "did:agent:evm:0x12345678",
			wantErr: true,
		},
		{
			name:    "evm address 39 hex chars",
			input:   "did:agent:evm:0x" + strings.Repeat("a", 39),
			wantErr: true,
		},
		{
			name:    "unknown entity type",
			input:   "did:admin:evm:" + evmAddr,
			wantErr: true,
		},
		{
			name:    "unknown chain",
			input:   "did:agent:cosmos:" + evmAddr,
			wantErr: true,
		},
		{
			name:    "solana address with excluded chars",
			input:   "did:agent:sol:" + strings.Repeat("O0Il", 9),
			wantErr: true,
		},
		{
			name:    "solana address too short",
			input:   "did:agent:sol:" + strings.Repeat("a", 31),
			wantErr: true,
		},
		{
			name:    "empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "missing address",
			input:   "did:agent:evm:",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Parse(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.False(t, IsValid(tt.input))
				return
			}
			require.NoError(t, err)
			assert.True(t, IsValid(tt.input))
			assert.Equal(t, tt.entity, d.Entity())
			assert.Equal(t, tt.chain, d.Chain())
			assert.Equal(t, tt.address, d.Address())
			assert.Equal(t, tt.input, d.String())
		})
	}
}

func TestParseSolana44Chars(t *testing.T) {
	addr := strings.Repeat("1", 44)
	d, err := Parse("did:agent:sol:" + addr)
	require.NoError(t, err)
	assert.Equal(t, addr, d.Address())
	assert.Equal(t, ChainSolana, d.Chain())
}

func TestMustParsePanics(t *testing.T) {
	assert.Panics(t, func() { MustParse("did:agent:evm:nothex") })
}

func TestZeroValue(t *testing.T) {
	var d DID
	assert.True(t, d.IsZero())
	assert.False(t, MustParse("did:agent:evm:"+evmAddr).IsZero())
}
