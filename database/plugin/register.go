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

package plugin

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/spf13/pflag"
)

type PluginType int

const (
	PluginTypeMetadata PluginType = 1
	PluginTypeBlob     PluginType = 2
)

func PluginTypeName(pluginType PluginType) string {
	switch pluginType {
	case PluginTypeMetadata:
		return "metadata"
	case PluginTypeBlob:
		return "blob"
	default:
		return ""
	}
}

type PluginOptionType int

const (
	PluginOptionTypeString PluginOptionType = 1
	PluginOptionTypeBool   PluginOptionType = 2
	PluginOptionTypeInt    PluginOptionType = 3
	PluginOptionTypeUint   PluginOptionType = 4
)

type PluginOption struct {
	DefaultValue any
	Dest         any
	Name         string
	Description  string
	Type         PluginOptionType
}

type PluginEntry struct {
	NewFromOptionsFunc func() Plugin
	Name               string
	Description        string
	Options            []PluginOption
	Type               PluginType
}

// envPrefix is prepended to plugin option environment variables, giving
// names like HERDLEDGER_METADATA_POSTGRES_HOST
const envPrefix = "HERDLEDGER"

var (
	pluginEntries []PluginEntry
	registryMutex sync.RWMutex
)

// Register adds a plugin to the registry. It is normally called from the
// init() function of the plugin package
func Register(pluginEntry PluginEntry) {
	registryMutex.Lock()
	defer registryMutex.Unlock()
	pluginEntries = append(pluginEntries, pluginEntry)
}

// GetPlugins returns the registered plugins of the given type, sorted by name
func GetPlugins(pluginType PluginType) []PluginEntry {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	ret := []PluginEntry{}
	for _, entry := range pluginEntries {
		if entry.Type == pluginType {
			ret = append(ret, entry)
		}
	}
	slices.SortFunc(ret, func(a, b PluginEntry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return ret
}

// GetPlugin returns a new instance of the named plugin, or nil if no such
// plugin is registered
func GetPlugin(pluginType PluginType, pluginName string) Plugin {
	registryMutex.RLock()
	var newFunc func() Plugin
	for _, entry := range pluginEntries {
		if entry.Type == pluginType && entry.Name == pluginName {
			newFunc = entry.NewFromOptionsFunc
			break
		}
	}
	registryMutex.RUnlock()
	if newFunc == nil {
		return nil
	}
	return newFunc()
}

func flagName(entry PluginEntry, opt PluginOption) string {
	return fmt.Sprintf(
		"%s-%s-%s",
		PluginTypeName(entry.Type),
		entry.Name,
		opt.Name,
	)
}

func envName(entry PluginEntry, opt PluginOption) string {
	return strings.ToUpper(
		strings.ReplaceAll(
			fmt.Sprintf(
				"%s_%s_%s_%s",
				envPrefix,
				PluginTypeName(entry.Type),
				entry.Name,
				opt.Name,
			),
			"-",
			"_",
		),
	)
}

// PopulateCmdlineOptions adds a flag for every option of every registered
// plugin to the provided flag set
func PopulateCmdlineOptions(fs *pflag.FlagSet) error {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	for _, entry := range pluginEntries {
		for _, opt := range entry.Options {
			name := flagName(entry, opt)
			switch opt.Type {
			case PluginOptionTypeString:
				dest, ok := opt.Dest.(*string)
				if !ok {
					return fmt.Errorf("invalid destination for option %s", name)
				}
				def, _ := opt.DefaultValue.(string)
				fs.StringVar(dest, name, def, opt.Description)
			case PluginOptionTypeBool:
				dest, ok := opt.Dest.(*bool)
				if !ok {
					return fmt.Errorf("invalid destination for option %s", name)
				}
				def, _ := opt.DefaultValue.(bool)
				fs.BoolVar(dest, name, def, opt.Description)
			case PluginOptionTypeInt:
				dest, ok := opt.Dest.(*int)
				if !ok {
					return fmt.Errorf("invalid destination for option %s", name)
				}
				def, _ := opt.DefaultValue.(int)
				fs.IntVar(dest, name, def, opt.Description)
			case PluginOptionTypeUint:
				dest, ok := opt.Dest.(*uint64)
				if !ok {
					return fmt.Errorf("invalid destination for option %s", name)
				}
				def, _ := opt.DefaultValue.(uint64)
				fs.Uint64Var(dest, name, def, opt.Description)
			default:
				return fmt.Errorf("unknown plugin option type %d for option %s", opt.Type, name)
			}
		}
	}
	return nil
}

// ProcessConfig applies plugin options from the config file. The map is keyed
// by plugin type name, then plugin name, then option name. Options whose
// command-line flag was explicitly set are left alone.
func ProcessConfig(
	pluginConfig map[string]map[string]map[string]any,
	fs *pflag.FlagSet,
) error {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	for _, entry := range pluginEntries {
		opts, ok := pluginConfig[PluginTypeName(entry.Type)][entry.Name]
		if !ok {
			continue
		}
		for _, opt := range entry.Options {
			val, ok := opts[opt.Name]
			if !ok {
				continue
			}
			if fs != nil && fs.Changed(flagName(entry, opt)) {
				continue
			}
			if err := opt.set(normalizeConfigValue(opt, val)); err != nil {
				return fmt.Errorf(
					"%s plugin %s: %w",
					PluginTypeName(entry.Type),
					entry.Name,
					err,
				)
			}
		}
	}
	return nil
}

// ProcessEnvVars applies plugin options from environment variables
func ProcessEnvVars() error {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	for _, entry := range pluginEntries {
		for _, opt := range entry.Options {
			raw, ok := os.LookupEnv(envName(entry, opt))
			if !ok {
				continue
			}
			val, err := parseOptionString(opt, raw)
			if err != nil {
				return fmt.Errorf("%s: %w", envName(entry, opt), err)
			}
			if err := opt.set(val); err != nil {
				return err
			}
		}
	}
	return nil
}

func parseOptionString(opt PluginOption, raw string) (any, error) {
	switch opt.Type {
	case PluginOptionTypeBool:
		return strconv.ParseBool(raw)
	case PluginOptionTypeInt:
		return strconv.Atoi(raw)
	case PluginOptionTypeUint:
		return strconv.ParseUint(raw, 10, 64)
	default:
		return raw, nil
	}
}

// normalizeConfigValue converts values decoded from YAML, where all numbers
// are int, into the type expected by the option
func normalizeConfigValue(opt PluginOption, val any) any {
	switch opt.Type {
	case PluginOptionTypeString:
		switch v := val.(type) {
		case int:
			return strconv.Itoa(v)
		case bool:
			return strconv.FormatBool(v)
		}
	case PluginOptionTypeUint:
		if v, ok := val.(int); ok && v >= 0 {
			return uint64(v)
		}
	}
	return val
}
