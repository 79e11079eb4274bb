package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pelletier/go-toml/v2"
	"github.com/tyler-smith/go-bip39"

	"github.com/GPTx-global/flightsurety/oracle/log"
	"github.com/GPTx-global/flightsurety/oracle/types"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

const FileName = "config.toml"

// DefaultMnemonic is the development mnemonic of the local truffle network.
const DefaultMnemonic = "tribe report come suffer program orbit mobile almost split hurt verify blouse"

type Config struct {
	Chain  ChainConfig  `toml:"chain"`
	Wallet WalletConfig `toml:"wallet"`
	Oracle OracleConfig `toml:"oracle"`
	Gas    GasConfig    `toml:"gas"`
	Server ServerConfig `toml:"server"`
	Dapp   DappConfig   `toml:"dapp"`
	Log    LogConfig    `toml:"log"`

	home string
}

type ChainConfig struct {
	Endpoint   string `toml:"endpoint"`
	ChainID    uint64 `toml:"chain_id"`
	AppAddress string `toml:"app_address"`
	Artifact   string `toml:"artifact"`
}

type WalletConfig struct {
	Mnemonic string `toml:"mnemonic"`
	Accounts int    `toml:"accounts"`
	HDPath   string `toml:"hd_path"`
}

type OracleConfig struct {
	StartBlock   string `toml:"start_block"`
	IndexPolicy  string `toml:"index_policy"`
	StatusSource string `toml:"status_source"`
	StatusCode   uint8  `toml:"status_code"`
	StatusURL    string `toml:"status_url"`
	StatusPath   string `toml:"status_path"`
	WaitMined    bool   `toml:"wait_mined"`
}

type GasConfig struct {
	Limit uint64 `toml:"limit"`
	Price string `toml:"price"`
}

type ServerConfig struct {
	Listen      string   `toml:"listen"`
	CORSOrigins []string `toml:"cors_origins"`
}

type DappConfig struct {
	Account         int    `toml:"account"`
	Airline         string `toml:"airline"`
	Listen          string `toml:"listen"`
	ResponseTimeout string `toml:"response_timeout"`
}

type LogConfig struct {
	Debug bool `toml:"debug"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		Chain: ChainConfig{
			Endpoint: "ws://127.0.0.1:7545",
		},
		Wallet: WalletConfig{
			Mnemonic: DefaultMnemonic,
			Accounts: 50,
			HDPath:   "m/44'/60'/0'/0/%d",
		},
		Oracle: OracleConfig{
			StartBlock:   "genesis",
			IndexPolicy:  string(types.IndexPolicyRefetch),
			StatusSource: "fixed",
			StatusCode:   uint8(types.StatusOnTime),
			WaitMined:    true,
		},
		Gas: GasConfig{
			Limit: 3000000,
			Price: "0",
		},
		Server: ServerConfig{
			Listen:      ":3000",
			CORSOrigins: []string{"*"},
		},
		Dapp: DappConfig{
			Account:         0,
			Listen:          ":8000",
			ResponseTimeout: "0s",
		},
	}
}

// DefaultHome is ~/.oracled.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".oracled"
	}

	return filepath.Join(home, ".oracled")
}

// Load reads <home>/config.toml, writing the default file first when it does not exist.
func Load(home string) (*Config, error) {
	if home == "" {
		home = DefaultHome()
	}
	path := filepath.Join(home, FileName)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefaultConfig(path); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		log.Infof("created default config at %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}
	cfg.home = home

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Infof("loaded config from %s", path)

	return cfg, nil
}

func createDefaultConfig(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := toml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("failed to marshal TOML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Save writes c to <home>/config.toml.
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal TOML: %w", err)
	}
	if err := os.MkdirAll(c.Home(), 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", c.Home(), err)
	}

	return os.WriteFile(filepath.Join(c.Home(), FileName), data, 0644)
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks every field the daemon depends on.
func (c *Config) Validate() error {
	if c.Chain.Endpoint == "" {
		return invalid("chain endpoint is required")
	}

	if c.Chain.AppAddress != "" && !common.IsHexAddress(c.Chain.AppAddress) {
		return invalid("app address %q is not a hex address", c.Chain.AppAddress)
	}

	if !bip39.IsMnemonicValid(c.Wallet.Mnemonic) {
		return invalid("wallet mnemonic is not a valid BIP-39 mnemonic")
	}

	if c.Wallet.Accounts <= 0 {
		return invalid("wallet accounts must be positive")
	}

	if !strings.Contains(c.Wallet.HDPath, "%d") {
		return invalid("hd path %q must contain %%d for the account index", c.Wallet.HDPath)
	}

	if _, err := types.ParseStartBlock(c.Oracle.StartBlock); err != nil {
		return invalid("%v", err)
	}

	if _, err := types.ParseIndexPolicy(c.Oracle.IndexPolicy); err != nil {
		return invalid("%v", err)
	}

	switch c.Oracle.StatusSource {
	case "fixed":
		if !types.StatusCode(c.Oracle.StatusCode).Valid() {
			return invalid("status code %d is not a defined status", c.Oracle.StatusCode)
		}
	case "http":
		if c.Oracle.StatusURL == "" || c.Oracle.StatusPath == "" {
			return invalid("http status source needs status_url and status_path")
		}
	default:
		return invalid("unknown status source %q", c.Oracle.StatusSource)
	}

	if c.Gas.Limit == 0 {
		return invalid("gas limit is required")
	}

	if price, ok := new(big.Int).SetString(c.Gas.Price, 10); !ok {
		return invalid("gas price %q is not a decimal wei amount", c.Gas.Price)
	} else if price.Sign() < 0 {
		return invalid("gas price %s is negative", c.Gas.Price)
	}

	if c.Dapp.Account < 0 || c.Dapp.Account >= c.Wallet.Accounts {
		return invalid("dapp account %d outside the wallet pool", c.Dapp.Account)
	}

	if c.Dapp.Airline != "" && !common.IsHexAddress(c.Dapp.Airline) {
		return invalid("dapp airline %q is not a hex address", c.Dapp.Airline)
	}

	if d, err := time.ParseDuration(c.Dapp.ResponseTimeout); err != nil {
		return invalid("dapp response timeout: %v", err)
	} else if d < 0 {
		return invalid("dapp response timeout %s is negative", d)
	}

	return nil
}

func (c *Config) Home() string {
	if c.home == "" {
		return DefaultHome()
	}

	return c.home
}

// SetHome overrides the home directory of a config built in memory.
func (c *Config) SetHome(home string) {
	c.home = home
}

func (c *Config) AppAddress() common.Address {
	return common.HexToAddress(c.Chain.AppAddress)
}

func (c *Config) StartBlock() types.StartBlock {
	b, _ := types.ParseStartBlock(c.Oracle.StartBlock)
	return b
}

func (c *Config) IndexPolicy() types.IndexPolicy {
	p, _ := types.ParseIndexPolicy(c.Oracle.IndexPolicy)
	return p
}

// GasPrice returns nil when the node should suggest a price.
func (c *Config) GasPrice() *big.Int {
	price, ok := new(big.Int).SetString(c.Gas.Price, 10)
	if !ok || price.Sign() == 0 {
		return nil
	}

	return price
}

func (c *Config) DappAirline() common.Address {
	return common.HexToAddress(c.Dapp.Airline)
}

func (c *Config) ResponseTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Dapp.ResponseTimeout)
	return d
}

// Print logs the effective configuration with the mnemonic masked.
func (c *Config) Print() {
	log.Infof("%-16s: %s", "Home", c.Home())
	log.Infof("%-16s: %s", "Chain Endpoint", c.Chain.Endpoint)
	log.Infof("%-16s: %d", "Chain ID", c.Chain.ChainID)
	log.Infof("%-16s: %s", "App Address", c.Chain.AppAddress)
	log.Infof("%-16s: %s", "Mnemonic", maskMnemonic(c.Wallet.Mnemonic))
	log.Infof("%-16s: %d", "Accounts", c.Wallet.Accounts)
	log.Infof("%-16s: %s", "Start Block", c.StartBlock())
	log.Infof("%-16s: %s", "Index Policy", c.IndexPolicy())
	log.Infof("%-16s: %s", "Status Source", c.Oracle.StatusSource)
	log.Infof("%-16s: %d", "Gas Limit", c.Gas.Limit)
	log.Infof("%-16s: %s", "Server Listen", c.Server.Listen)
}

func maskMnemonic(m string) string {
	words := strings.Fields(m)
	if len(words) == 0 {
		return ""
	}

	return fmt.Sprintf("%s ... (%d words)", words[0], len(words))
}
