package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"homestead/crypto"
)

// Config carries the node configuration. The inspector and lender role
// accounts are fixed for the lifetime of the node; listings record their
// seller and buyer at creation time.
type Config struct {
	RPCAddress         string `toml:"RPCAddress"`
	GatewayAddress     string `toml:"GatewayAddress"`
	DataDir            string `toml:"DataDir"`
	Env                string `toml:"Env"`
	InspectorAddress   string `toml:"InspectorAddress"`
	LenderAddress      string `toml:"LenderAddress"`
	MetadataGatewayURL string `toml:"MetadataGatewayURL"`
	RateLimitPerMinute int    `toml:"RateLimitPerMinute"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks that the configured role accounts decode and are distinct.
func (c *Config) Validate() error {
	inspector, err := c.InspectorAccount()
	if err != nil {
		return fmt.Errorf("InspectorAddress: %w", err)
	}
	lender, err := c.LenderAccount()
	if err != nil {
		return fmt.Errorf("LenderAddress: %w", err)
	}
	if inspector == lender {
		return fmt.Errorf("inspector and lender must be distinct accounts")
	}
	return nil
}

// InspectorAccount decodes the configured inspector role account.
func (c *Config) InspectorAccount() ([20]byte, error) {
	return decodeRole(c.InspectorAddress)
}

// LenderAccount decodes the configured lender role account.
func (c *Config) LenderAccount() ([20]byte, error) {
	return decodeRole(c.LenderAddress)
}

func decodeRole(encoded string) ([20]byte, error) {
	trimmed := strings.TrimSpace(encoded)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("address required")
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, err
	}
	return addr.Array(), nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		cfg.RPCAddress = ":8545"
	}
	if strings.TrimSpace(cfg.GatewayAddress) == "" {
		cfg.GatewayAddress = ":8080"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./homestead-data"
	}
	if strings.TrimSpace(cfg.MetadataGatewayURL) == "" {
		cfg.MetadataGatewayURL = "https://ipfs.io/ipfs/"
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = 120
	}
}

// createDefault creates and saves a default configuration file. Fresh role
// keys are generated alongside the config so a development node starts
// without manual setup.
func createDefault(path string) (*Config, error) {
	dir := filepath.Dir(path)
	inspectorKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	lenderKey, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	if err := crypto.SaveKey(filepath.Join(dir, "inspector.key"), inspectorKey); err != nil {
		return nil, err
	}
	if err := crypto.SaveKey(filepath.Join(dir, "lender.key"), lenderKey); err != nil {
		return nil, err
	}

	cfg := &Config{
		InspectorAddress: inspectorKey.PubKey().Address().String(),
		LenderAddress:    lenderKey.PubKey().Address().String(),
	}
	applyDefaults(cfg)

	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
