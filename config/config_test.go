package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ubook.toml")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

func TestLoadAppliesNetworkDefaults(t *testing.T) {
	path := writeConfig(t, `
Operator = "0x00000000000000000000000000000000000000A1"
PlatformFeeBps = 500
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, NetworkAlfajores, cfg.NetworkName)
	require.Equal(t, uint64(44787), cfg.ChainID)
	require.Equal(t, ":8546", cfg.ListenAddress)
	require.Equal(t, common.HexToAddress("0xa1"), cfg.OperatorAddress())
	// Treasury falls back to the operator when unset.
	require.Equal(t, cfg.OperatorAddress(), cfg.FeeTreasuryAddress())
}

func TestLoadMainnetProfile(t *testing.T) {
	path := writeConfig(t, `
NetworkName = "mainnet"
Operator = "0x00000000000000000000000000000000000000A1"
FeeTreasury = "0x00000000000000000000000000000000000000B2"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, uint64(42220), cfg.ChainID)
	require.Equal(t, common.HexToAddress("0xb2"), cfg.FeeTreasuryAddress())
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"missing operator": `
NetworkName = "alfajores"
`,
		"bad operator": `
Operator = "not-an-address"
`,
		"fee out of range": `
Operator = "0x00000000000000000000000000000000000000A1"
PlatformFeeBps = 10001
`,
		"unknown network": `
NetworkName = "devnet9"
Operator = "0x00000000000000000000000000000000000000A1"
`,
		"bad fee treasury": `
Operator = "0x00000000000000000000000000000000000000A1"
FeeTreasury = "not-an-address"
`,
		"bad genesis balance": `
Operator = "0x00000000000000000000000000000000000000A1"

[[GenesisAccount]]
Address = "0x00000000000000000000000000000000000000C3"
Balance = "-5"
`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, data))
			require.Error(t, err)
		})
	}
}

func TestGenesisBalances(t *testing.T) {
	path := writeConfig(t, `
Operator = "0x00000000000000000000000000000000000000A1"

[[GenesisAccount]]
Address = "0x00000000000000000000000000000000000000C3"
Balance = "100000000000000000000"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	balances, err := cfg.GenesisBalances()
	require.NoError(t, err)
	require.Len(t, balances, 1)
	bal := balances[common.HexToAddress("0xc3")]
	require.NotNil(t, bal)
	require.Equal(t, "100000000000000000000", bal.String())
}

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh", "ubook.toml")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, NetworkAlfajores, cfg.NetworkName)
	require.Equal(t, uint32(500), cfg.PlatformFeeBps)

	// The written default (no FeeTreasury) must load back cleanly, so a node
	// started once with defaults can restart.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, reloaded.OperatorAddress(), reloaded.FeeTreasuryAddress())
}

func TestRPCSecretEnvOverride(t *testing.T) {
	path := writeConfig(t, `
Operator = "0x00000000000000000000000000000000000000A1"
RPCSecret = "file-secret"
`)
	t.Setenv("UBOOK_RPC_SECRET", "env-secret")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "env-secret", cfg.RPCSecret)
}
