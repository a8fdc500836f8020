package config

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Named network profiles carried over from the Celo deployments the platform
// targets.
const (
	NetworkAlfajores = "alfajores"
	NetworkMainnet   = "mainnet"
	NetworkLocal     = "local"
)

var networkChainIDs = map[string]uint64{
	NetworkAlfajores: 44787,
	NetworkMainnet:   42220,
	NetworkLocal:     1337,
}

// GenesisAccount seeds an account balance at first start. Balance is a
// decimal base-unit amount.
type GenesisAccount struct {
	Address string `toml:"Address"`
	Balance string `toml:"Balance"`
}

// Config captures the runtime configuration of the booking node.
type Config struct {
	ListenAddress  string           `toml:"ListenAddress"`
	DataDir        string           `toml:"DataDir"`
	NetworkName    string           `toml:"NetworkName"`
	ChainID        uint64           `toml:"ChainID"`
	Operator       string           `toml:"Operator"`
	FeeTreasury    string           `toml:"FeeTreasury"`
	PlatformFeeBps uint32           `toml:"PlatformFeeBps"`
	CatalogFile    string           `toml:"CatalogFile"`
	RPCSecret      string           `toml:"RPCSecret"`
	Genesis        []GenesisAccount `toml:"GenesisAccount"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists. UBOOK_RPC_SECRET overrides the on-disk RPC secret so the
// credential can stay out of the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if secret := strings.TrimSpace(os.Getenv("UBOOK_RPC_SECRET")); secret != "" {
		cfg.RPCSecret = secret
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8546"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./data"
	}
	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = NetworkAlfajores
	}
	cfg.NetworkName = strings.ToLower(strings.TrimSpace(cfg.NetworkName))
	if cfg.ChainID == 0 {
		cfg.ChainID = networkChainIDs[cfg.NetworkName]
	}
}

func validate(cfg *Config) error {
	if cfg.ChainID == 0 {
		return fmt.Errorf("config: unknown network %q and no ChainID set", cfg.NetworkName)
	}
	if cfg.PlatformFeeBps > 10_000 {
		return fmt.Errorf("config: PlatformFeeBps out of range: %d", cfg.PlatformFeeBps)
	}
	if _, err := parseAddress(cfg.Operator, true); err != nil {
		return fmt.Errorf("config: Operator: %w", err)
	}
	if _, err := parseAddress(cfg.FeeTreasury, false); err != nil {
		return fmt.Errorf("config: FeeTreasury: %w", err)
	}
	for i, acc := range cfg.Genesis {
		if _, err := parseAddress(acc.Address, true); err != nil {
			return fmt.Errorf("config: GenesisAccount %d: %w", i, err)
		}
		if _, err := parseBalance(acc.Balance); err != nil {
			return fmt.Errorf("config: GenesisAccount %d: %w", i, err)
		}
	}
	return nil
}

// OperatorAddress returns the parsed operator address.
func (c *Config) OperatorAddress() common.Address {
	addr, _ := parseAddress(c.Operator, true)
	return addr
}

// FeeTreasuryAddress returns the parsed treasury address, falling back to the
// operator when unset.
func (c *Config) FeeTreasuryAddress() common.Address {
	addr, err := parseAddress(c.FeeTreasury, true)
	if err != nil {
		return c.OperatorAddress()
	}
	return addr
}

// GenesisBalances returns the parsed genesis allocation.
func (c *Config) GenesisBalances() (map[common.Address]*big.Int, error) {
	out := make(map[common.Address]*big.Int, len(c.Genesis))
	for _, acc := range c.Genesis {
		addr, err := parseAddress(acc.Address, true)
		if err != nil {
			return nil, err
		}
		balance, err := parseBalance(acc.Balance)
		if err != nil {
			return nil, err
		}
		out[addr] = balance
	}
	return out, nil
}

func parseAddress(raw string, required bool) (common.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if required {
			return common.Address{}, fmt.Errorf("address required")
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(trimmed) {
		return common.Address{}, fmt.Errorf("invalid address %q", raw)
	}
	return common.HexToAddress(trimmed), nil
}

func parseBalance(raw string) (*big.Int, error) {
	balance, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || balance.Sign() < 0 {
		return nil, fmt.Errorf("invalid balance %q", raw)
	}
	return balance, nil
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:  ":8546",
		DataDir:        "./data",
		NetworkName:    NetworkAlfajores,
		PlatformFeeBps: 500,
		Operator:       "0x0000000000000000000000000000000000000001",
	}
	applyDefaults(cfg)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
