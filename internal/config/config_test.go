// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blinklabs-io/herdledger/database/plugin"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPluginOptions struct {
	dir     string
	workers int
}

func init() {
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeBlob,
		Name:               "config-test",
		Description:        "config test plugin",
		NewFromOptionsFunc: func() plugin.Plugin { return nil },
		Options: []plugin.PluginOption{
			{
				Name:         "dir",
				Type:         plugin.PluginOptionTypeString,
				DefaultValue: "default-dir",
				Dest:         &testPluginOptions.dir,
			},
			{
				Name: "workers",
				Type: plugin.PluginOptionTypeInt,
				Dest: &testPluginOptions.workers,
			},
		},
	})
}

// isolate keeps the user's and system config files out of the test
func isolate(t *testing.T) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "herdledger.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("blob", DefaultBlobPlugin, "")
	fs.String("metadata", DefaultMetadataPlugin, "")
	return fs
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)
	if _, err := os.Stat("/etc/herdledger/herdledger.yaml"); err == nil {
		t.Skip("system config file present")
	}
	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, "0.0.0.0:8080", cfg.ApiListenAddress())
	timeout, err := cfg.ShutdownTimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, timeout)
}

func TestLoadConfigSection(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
config:
  databasePath: /var/lib/herdledger
  apiPort: 9000
  ledger:
    defaultStatus: pending
  lock:
    strategy: redis
    redis:
      addr: "localhost:6379"
      expiry: 5s
  kafka:
    brokers: ["k1:9092", "k2:9092"]
    topic: settlements
database:
  metadata:
    plugin: postgres
  blob:
    plugin: config-test
    config-test:
      dir: /data/receipts
      workers: 4
`)
	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/herdledger", cfg.DatabasePath)
	assert.Equal(t, uint(9000), cfg.ApiPort)
	assert.Equal(t, "pending", cfg.Ledger.DefaultStatus)
	assert.Equal(t, "redis", cfg.Lock.Strategy)
	assert.Equal(t, "localhost:6379", cfg.Lock.Redis.Addr)
	assert.Equal(t, 5*time.Second, cfg.Lock.Redis.Expiry)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "postgres", cfg.MetadataPlugin)
	assert.Equal(t, "config-test", cfg.BlobPlugin)
	assert.Equal(t, "/data/receipts", testPluginOptions.dir)
	assert.Equal(t, 4, testPluginOptions.workers)
	// Untouched values keep their defaults
	assert.Equal(t, uint(12799), cfg.MetricsPort)
}

func TestLoadFlatFile(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
bindAddr: 127.0.0.1
metricsPort: 0
blobPlugin: s3
`)
	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.BindAddr)
	assert.Equal(t, uint(0), cfg.MetricsPort)
	assert.Equal(t, "s3", cfg.BlobPlugin)
}

func TestLoadPrecedence(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
metadataPlugin: mysql
blobPlugin: gcs
apiPort: 9000
`)
	t.Setenv("HERDLEDGER_API_PORT", "9100")
	t.Setenv("HERDLEDGER_DATABASE_BLOB_PLUGIN", "s3")
	t.Setenv("HERDLEDGER_AUTH_JWT_SECRET", "s3cret")
	t.Setenv("HERDLEDGER_LEDGER_DEFAULT_STATUS", "pending")

	fs := newFlagSet()
	require.NoError(t, fs.Parse([]string{"--metadata", "postgres"}))
	cfg, err := LoadConfig(path, fs)
	require.NoError(t, err)
	assert.Equal(t, uint(9100), cfg.ApiPort)
	assert.Equal(t, "s3", cfg.BlobPlugin)
	assert.Equal(t, "postgres", cfg.MetadataPlugin)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "pending", cfg.Ledger.DefaultStatus)
}

func TestLoadInvalid(t *testing.T) {
	isolate(t)
	testDefs := map[string]string{
		"lock strategy":    "lock:\n  strategy: zookeeper\n",
		"tracing exporter": "tracing:\n  exporter: jaeger\n",
		"kafka topic":      "kafka:\n  brokers: [\"k1:9092\"]\n",
		"shutdown timeout": "shutdownTimeout: soon\n",
		"api port":         "apiPort: 70000\n",
		"yaml":             "apiPort: [\n",
	}
	for name, content := range testDefs {
		_, err := LoadConfig(writeConfig(t, content), nil)
		assert.Error(t, err, name)
	}
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestLoadSopsDocumentWithoutKeys(t *testing.T) {
	isolate(t)
	path := writeConfig(t, `
apiPort: ENC[AES256_GCM,data:AAAA,iv:AAAA,tag:AAAA,type:int]
sops:
  mac: ENC[AES256_GCM,data:AAAA,iv:AAAA,tag:AAAA,type:str]
  version: 3.11.0
`)
	_, err := LoadConfig(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrypting config file")
}

func TestListPlugins(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.ListPlugins())
	cfg.BlobPlugin = "list"
	require.ErrorIs(t, cfg.ListPlugins(), ErrPluginListRequested)
	cfg = DefaultConfig()
	cfg.MetadataPlugin = "list"
	require.ErrorIs(t, cfg.ListPlugins(), ErrPluginListRequested)
}

func TestContext(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	cfg := DefaultConfig()
	ctx := WithContext(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}
