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

package plugin_test

import (
	"errors"
	"testing"

	"github.com/blinklabs-io/herdledger/database/plugin"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPlugin struct {
	started bool
}

func (m *mockPlugin) Start() error {
	m.started = true
	return nil
}

func (m *mockPlugin) Stop() error { return nil }

type testOptions struct {
	dir     string
	enabled bool
	workers int
	size    uint64
}

func registerTestPlugin(t *testing.T, opts *testOptions) string {
	t.Helper()
	name := "test-" + t.Name()
	plugin.Register(plugin.PluginEntry{
		Type:               plugin.PluginTypeBlob,
		Name:               name,
		NewFromOptionsFunc: func() plugin.Plugin { return &mockPlugin{} },
		Options: []plugin.PluginOption{
			{
				Name:         "dir",
				Type:         plugin.PluginOptionTypeString,
				DefaultValue: "default-dir",
				Dest:         &opts.dir,
			},
			{
				Name: "enabled",
				Type: plugin.PluginOptionTypeBool,
				Dest: &opts.enabled,
			},
			{
				Name: "workers",
				Type: plugin.PluginOptionTypeInt,
				Dest: &opts.workers,
			},
			{
				Name: "size",
				Type: plugin.PluginOptionTypeUint,
				Dest: &opts.size,
			},
		},
	})
	return name
}

func TestRegisterAndGetPlugin(t *testing.T) {
	name := registerTestPlugin(t, &testOptions{})

	p := plugin.GetPlugin(plugin.PluginTypeBlob, name)
	require.NotNil(t, p)
	assert.IsType(t, &mockPlugin{}, p)

	found := false
	for _, entry := range plugin.GetPlugins(plugin.PluginTypeBlob) {
		if entry.Name == name {
			found = true
		}
	}
	assert.True(t, found, "plugin not in GetPlugins list")
	for _, entry := range plugin.GetPlugins(plugin.PluginTypeMetadata) {
		assert.NotEqual(t, name, entry.Name)
	}

	assert.Nil(t, plugin.GetPlugin(plugin.PluginTypeBlob, "missing-"+t.Name()))
}

func TestStartPlugin(t *testing.T) {
	name := registerTestPlugin(t, &testOptions{})
	p, err := plugin.StartPlugin(plugin.PluginTypeBlob, name)
	require.NoError(t, err)
	assert.True(t, p.(*mockPlugin).started)

	_, err = plugin.StartPlugin(plugin.PluginTypeBlob, "missing-"+t.Name())
	require.Error(t, err)

	failName := "fail-" + t.Name()
	plugin.Register(plugin.PluginEntry{
		Type: plugin.PluginTypeBlob,
		Name: failName,
		NewFromOptionsFunc: func() plugin.Plugin {
			return plugin.NewErrorPlugin(errors.New("boom"))
		},
	})
	_, err = plugin.StartPlugin(plugin.PluginTypeBlob, failName)
	require.ErrorContains(t, err, "boom")
}

func TestSetPluginOption(t *testing.T) {
	opts := &testOptions{}
	name := registerTestPlugin(t, opts)

	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeBlob, name, "dir", "/tmp/x"))
	assert.Equal(t, "/tmp/x", opts.dir)
	require.Error(t, plugin.SetPluginOption(plugin.PluginTypeBlob, name, "dir", 123))

	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeBlob, name, "enabled", true))
	assert.True(t, opts.enabled)

	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeBlob, name, "size", 42))
	assert.Equal(t, uint64(42), opts.size)
	require.Error(t, plugin.SetPluginOption(plugin.PluginTypeBlob, name, "size", -1))

	// unknown options are ignored
	require.NoError(t, plugin.SetPluginOption(plugin.PluginTypeBlob, name, "nope", "x"))
	// unknown plugins are not
	require.Error(t, plugin.SetPluginOption(plugin.PluginTypeBlob, "missing-"+t.Name(), "dir", "x"))
}

func TestProcessConfigAndEnv(t *testing.T) {
	opts := &testOptions{}
	name := registerTestPlugin(t, opts)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, plugin.PopulateCmdlineOptions(fs))
	assert.Equal(t, "default-dir", opts.dir)

	require.NoError(t, plugin.ProcessConfig(
		map[string]map[string]map[string]any{
			"blob": {
				name: {"dir": "from-config", "workers": 3, "size": 7},
			},
		},
		fs,
	))
	assert.Equal(t, "from-config", opts.dir)
	assert.Equal(t, 3, opts.workers)
	assert.Equal(t, uint64(7), opts.size)

	// explicit flags win over the config file
	require.NoError(t, fs.Set("blob-"+name+"-dir", "from-flag"))
	require.NoError(t, plugin.ProcessConfig(
		map[string]map[string]map[string]any{
			"blob": {name: {"dir": "from-config"}},
		},
		fs,
	))
	assert.Equal(t, "from-flag", opts.dir)
}
