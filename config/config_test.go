package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"homestead/crypto"
)

func testAddress(t *testing.T) string {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	return key.PubKey().Address().String()
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, ":8545", cfg.RPCAddress)
	require.Equal(t, ":8080", cfg.GatewayAddress)
	require.NotEmpty(t, cfg.InspectorAddress)
	require.NotEmpty(t, cfg.LenderAddress)
	require.NoError(t, cfg.Validate())

	// Role key files are written next to the config.
	_, err = os.Stat(filepath.Join(dir, "inspector.key"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "lender.key"))
	require.NoError(t, err)

	// A second load reads the persisted file back.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.InspectorAddress, reloaded.InspectorAddress)
	require.Equal(t, cfg.LenderAddress, reloaded.LenderAddress)
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := "InspectorAddress = \"" + testAddress(t) + "\"\n" +
		"LenderAddress = \"" + testAddress(t) + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "./homestead-data", cfg.DataDir)
	require.Equal(t, "https://ipfs.io/ipfs/", cfg.MetadataGatewayURL)
	require.Equal(t, 120, cfg.RateLimitPerMinute)
}

func TestValidateRejectsBadRoles(t *testing.T) {
	addr := testAddress(t)

	cfg := &Config{InspectorAddress: "not-an-address", LenderAddress: addr}
	require.Error(t, cfg.Validate())

	cfg = &Config{InspectorAddress: addr, LenderAddress: addr}
	require.Error(t, cfg.Validate())
}
