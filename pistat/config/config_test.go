package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	internal "github.com/ZanzyTHEbar/pistat/pistat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// ConfigTestSuite tests the config package functionality
type ConfigTestSuite struct {
	suite.Suite
	tempDir string
	origDir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	var err error
	suite.origDir, err = os.Getwd()
	require.NoError(suite.T(), err)

	// Nested so the ".." search path stays inside the temp tree.
	tempDir, err := os.MkdirTemp("", "pistat-config-test-*")
	require.NoError(suite.T(), err)
	suite.tempDir = tempDir
	work := filepath.Join(tempDir, "work")
	require.NoError(suite.T(), os.Mkdir(work, 0o755))

	require.NoError(suite.T(), os.Chdir(work))
}

func (suite *ConfigTestSuite) TearDownTest() {
	if suite.origDir != "" {
		os.Chdir(suite.origDir)
	}
	if suite.tempDir != "" {
		os.RemoveAll(suite.tempDir)
	}
}

func (suite *ConfigTestSuite) TestLoadConfigWithDefaults() {
	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	require.NotNil(suite.T(), cfg)

	assert.Equal(suite.T(), internal.DefaultSession, cfg.Session)
	assert.Equal(suite.T(), internal.DefaultBackend, cfg.Backend)
	assert.NotEmpty(suite.T(), cfg.Worker)
	assert.Equal(suite.T(), internal.DefaultLogLevel, cfg.Logging.Level)
	assert.Equal(suite.T(), internal.DefaultListenAddr, cfg.Transport.ListenAddr)
	assert.Empty(suite.T(), cfg.Transport.Peers)
	assert.Equal(suite.T(), time.Duration(internal.DefaultSendTimeout)*time.Second, cfg.Transport.SendTimeout())
	assert.Equal(suite.T(), internal.DefaultArchivePath, cfg.Archive.DSN)
	assert.Equal(suite.T(), internal.DefaultLedgerPath, cfg.Ledger.Path)
	assert.True(suite.T(), cfg.Ledger.SyncWrites)
	assert.Equal(suite.T(), "pistat", cfg.Metrics.Namespace)
	assert.Equal(suite.T(), *cfg, AppConfig)
}

func (suite *ConfigTestSuite) TestLoadConfigWithFile() {
	configContent := `
session: solve-7
worker: node-a
logging:
  level: debug
  file: /tmp/pistat-test.log
  maxSizeMB: 5
transport:
  listenAddr: 0.0.0.0:9000
  peers:
    - ws://node-b:9000/
    - ws://node-c:9000/
  queueSize: 8
ledger:
  inMemory: true
  path: ""
metrics:
  enabled: true
`
	configPath := filepath.Join(suite.tempDir, "work", "config.yaml")
	require.NoError(suite.T(), os.WriteFile(configPath, []byte(configContent), 0o644))

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)

	assert.Equal(suite.T(), "solve-7", cfg.Session)
	assert.Equal(suite.T(), "node-a", cfg.Worker)
	assert.Equal(suite.T(), "debug", cfg.Logging.Level)
	assert.Equal(suite.T(), 5, cfg.Logging.MaxSizeMB)
	assert.Equal(suite.T(), 3, cfg.Logging.MaxBackups, "unset keys keep defaults")
	assert.Equal(suite.T(), []string{"ws://node-b:9000/", "ws://node-c:9000/"}, cfg.Transport.Peers)
	assert.Equal(suite.T(), 8, cfg.Transport.QueueSize)
	assert.True(suite.T(), cfg.Ledger.InMemory)
	assert.True(suite.T(), cfg.Metrics.Enabled)
}

func (suite *ConfigTestSuite) TestLoadConfigExplicitPath() {
	configPath := filepath.Join(suite.tempDir, "custom.yaml")
	require.NoError(suite.T(), os.WriteFile(configPath, []byte("session: explicit\n"), 0o644))

	cfg, err := LoadConfig(configPath)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "explicit", cfg.Session)
}

func (suite *ConfigTestSuite) TestEnvironmentOverrides() {
	suite.T().Setenv("PISTAT_SESSION", "from-env")
	suite.T().Setenv("PISTAT_TRANSPORT_QUEUESIZE", "3")

	cfg, err := LoadConfig("")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "from-env", cfg.Session)
	assert.Equal(suite.T(), 3, cfg.Transport.QueueSize)
}

func (suite *ConfigTestSuite) TestInvalidConfig() {
	configPath := filepath.Join(suite.tempDir, "bad.yaml")
	require.NoError(suite.T(), os.WriteFile(configPath, []byte("transport:\n  queueSize: 0\n"), 0o644))
	_, err := LoadConfig(configPath)
	assert.Error(suite.T(), err)

	require.NoError(suite.T(), os.WriteFile(configPath, []byte("session: [unclosed\n"), 0o644))
	_, err = LoadConfig(configPath)
	assert.Error(suite.T(), err, "malformed yaml")
}
