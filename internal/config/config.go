// Package config contains dmsocket Config and the code to load it.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/snapcircle/dmsocket/internal/configtypes"
	"github.com/snapcircle/dmsocket/internal/transport"

	"github.com/go-viper/mapstructure/v2"
	"github.com/hashicorp/go-envparse"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix of environment variables, e.g. DMSOCKET_AUTH_TOKEN.
const EnvPrefix = "DMSOCKET"

type Config struct {
	// API is the REST API of the messaging server.
	API configtypes.API `mapstructure:"api" json:"api" toml:"api" yaml:"api"`
	// Socket is a configuration of the real-time connection.
	Socket configtypes.Socket `mapstructure:"socket" json:"socket" toml:"socket" yaml:"socket"`
	// Reconnect is a configuration of retries after unplanned disconnects.
	Reconnect configtypes.Reconnect `mapstructure:"reconnect" json:"reconnect" toml:"reconnect" yaml:"reconnect"`
	// Typing is a configuration of typing indicator debounce.
	Typing configtypes.Typing `mapstructure:"typing" json:"typing" toml:"typing" yaml:"typing"`
	// Auth is the identity to connect with.
	Auth configtypes.Auth `mapstructure:"auth" json:"auth" toml:"auth" yaml:"auth"`
	// Log is a configuration for logging.
	Log configtypes.Log `mapstructure:"log" json:"log" toml:"log" yaml:"log"`
	// Prometheus metrics configuration.
	Prometheus configtypes.Prometheus `mapstructure:"prometheus" json:"prometheus" toml:"prometheus" yaml:"prometheus"`
}

type Meta struct {
	FileNotFound bool
	UnknownKeys  []string
	UnknownEnvs  []string
	KnownEnvVars []string
}

// defaults are applied for every key not set in file, env or flags.
func defaults() Config {
	return Config{
		API: configtypes.API{
			BaseURL: "http://localhost:3000/api",
			Timeout: configtypes.Duration(10 * time.Second),
		},
		Socket: configtypes.Socket{
			Path:             transport.DefaultPath,
			Namespace:        "/chat",
			HandshakeTimeout: configtypes.Duration(10 * time.Second),
			WriteTimeout:     configtypes.Duration(time.Second),
			AckTimeout:       configtypes.Duration(10 * time.Second),
		},
		Reconnect: configtypes.Reconnect{
			MaxAttempts: 5,
			BaseDelay:   configtypes.Duration(3 * time.Second),
		},
		Typing: configtypes.Typing{
			QuietPeriod: configtypes.Duration(3 * time.Second),
		},
		Auth: configtypes.Auth{
			UserIDClaim: "sub",
		},
		Log: configtypes.Log{
			Level: "info",
		},
		Prometheus: configtypes.Prometheus{
			Address:       "127.0.0.1:9464",
			HandlerPrefix: "/metrics",
		},
	}
}

var bindPFlags = []string{
	"api.base_url", "socket.url", "socket.namespace", "auth.user_id", "auth.token",
	"log.level", "log.file", "prometheus.enabled", "prometheus.address",
}

func DefineFlags(rootCmd *cobra.Command) {
	rootCmd.Flags().StringP("api.base_url", "u", "", "REST API base URL, websocket endpoint is derived from it")
	rootCmd.Flags().StringP("socket.url", "", "", "explicit websocket endpoint")
	rootCmd.Flags().StringP("socket.namespace", "", "", "Socket.IO namespace to join")
	rootCmd.Flags().Int64P("auth.user_id", "", 0, "user id to connect as")
	rootCmd.Flags().StringP("auth.token", "t", "", "bearer token")
	rootCmd.Flags().StringP("log.level", "", "", "set the log level: trace, debug, info, warn, error, fatal or none")
	rootCmd.Flags().StringP("log.file", "", "", "optional log file - if not specified logs go to STDOUT")
	rootCmd.Flags().BoolP("prometheus.enabled", "", false, "enable Prometheus metrics endpoint")
	rootCmd.Flags().StringP("prometheus.address", "", "", "address of Prometheus metrics endpoint")
}

func GetConfig(cmd *cobra.Command, configFile string) (Config, Meta, error) {
	v := viper.NewWithOptions(viper.WithDecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		configtypes.StringToDurationHookFunc(),
	)))
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	keys := map[string]any{}
	flattenDefaults(reflect.ValueOf(defaults()), "", keys)
	for key, value := range keys {
		v.SetDefault(key, value)
	}

	if cmd != nil {
		for _, flag := range bindPFlags {
			if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
				_ = v.BindPFlag(flag, f)
			}
		}
	}

	meta := Meta{}

	if configFile != "" {
		v.SetConfigFile(configFile)
		err := v.ReadInConfig()
		if err != nil {
			var configFileNotFoundError *os.PathError
			if errors.As(err, &configFileNotFoundError) {
				meta.FileNotFound = true
			} else {
				return Config{}, Meta{}, fmt.Errorf("error reading config file %s: %w", configFile, err)
			}
		}
	}

	conf := &Config{}

	err := v.Unmarshal(conf)
	if err != nil {
		return Config{}, Meta{}, fmt.Errorf("error unmarshaling config: %w", err)
	}

	knownEnvVars := make(map[string]struct{}, len(keys))
	for key := range keys {
		knownEnvVars[EnvName(key)] = struct{}{}
	}

	meta.UnknownKeys = findUnknownKeys(v.AllSettings(), reflect.TypeOf(*conf), "")
	meta.UnknownEnvs = checkEnvironmentVars(knownEnvVars)
	for name := range knownEnvVars {
		meta.KnownEnvVars = append(meta.KnownEnvVars, name)
	}
	sort.Strings(meta.KnownEnvVars)

	return *conf, meta, nil
}

// EnvName returns the environment variable for a config key.
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// flattenDefaults collects leaf values of a config struct keyed by dotted
// mapstructure path.
func flattenDefaults(val reflect.Value, parentKey string, out map[string]any) {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		tag := field.Tag.Get("mapstructure")
		if tag == "" {
			continue
		}
		key := appendKeyPath(parentKey, tag)
		if field.Type.Kind() == reflect.Struct {
			flattenDefaults(val.Field(i), key, out)
			continue
		}
		out[key] = val.Field(i).Interface()
	}
}

func findUnknownKeys(data map[string]interface{}, typ reflect.Type, parentKey string) []string {
	validKeys := make(map[string]reflect.StructField, typ.NumField())
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		if tag := field.Tag.Get("mapstructure"); tag != "" {
			validKeys[tag] = field
		}
	}

	var unknownKeys []string
	for key, value := range data {
		field, exists := validKeys[key]
		if !exists {
			unknownKeys = append(unknownKeys, appendKeyPath(parentKey, key))
			continue
		}
		if field.Type.Kind() != reflect.Struct {
			continue
		}
		if nestedMap, ok := value.(map[string]interface{}); ok {
			unknownKeys = append(unknownKeys, findUnknownKeys(nestedMap, field.Type, appendKeyPath(parentKey, key))...)
		}
	}
	sort.Strings(unknownKeys)
	return unknownKeys
}

func appendKeyPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

func checkEnvironmentVars(knownEnvVars map[string]struct{}) []string {
	var unknownEnvs []string
	envPrefix := EnvPrefix + "_"
	envVars := os.Environ()

	for _, envVar := range envVars {
		kv, err := envparse.Parse(strings.NewReader(envVar))
		if err != nil {
			continue
		}
		for envKey := range kv {
			if !strings.HasPrefix(envKey, envPrefix) {
				continue
			}
			if _, ok := knownEnvVars[envKey]; !ok {
				unknownEnvs = append(unknownEnvs, envKey)
			}
		}
	}
	sort.Strings(unknownEnvs)
	return unknownEnvs
}

// SocketURL returns the websocket endpoint: socket.url when set, otherwise derived
// from api.base_url.
func (c Config) SocketURL() (string, error) {
	if c.Socket.URL != "" {
		return c.Socket.URL, nil
	}
	return transport.SocketURL(c.API.BaseURL, c.Socket.Path)
}

// Flatten returns leaf values of c keyed by dotted config path.
func Flatten(c Config) map[string]any {
	out := map[string]any{}
	flattenDefaults(reflect.ValueOf(c), "", out)
	return out
}

// DefaultConfig returns config with default values only.
func DefaultConfig() Config {
	return defaults()
}
