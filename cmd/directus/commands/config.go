package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/urfave/cli/v3"

	"github.com/florianilch/directus-client/internal/app"
	"github.com/florianilch/directus-client/internal/directus"
)

// envPrefix is stripped from environment variables during config loading (e.g., DIRECTUS_STORAGE__TYPE → storage.type)
const envPrefix = "DIRECTUS_"

// loadDotEnv loads path into the process environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// configSource is one configuration layer; later layers override earlier ones.
type configSource struct {
	name     string
	provider koanf.Provider
	parser   koanf.Parser
}

// loadConfig loads application configuration from various sources with precedence:
// defaults → config file → environment variables → CLI flags.
// A malformed DSN is reported here; a DSN lacking only its password is
// accepted so the caller can still prompt for it.
func loadConfig(configPath string, cmd *cli.Command, environFunc func() []string) (*app.Config, error) {
	sources := []configSource{
		{name: "defaults", provider: confmap.Provider(app.DefaultValues(), ".")},
	}
	if configPath != "" {
		sources = append(sources, configSource{name: "config file", provider: file.Provider(configPath), parser: toml.Parser()})
	}
	sources = append(sources, configSource{name: "environment variables", provider: envProvider(environFunc)})
	if cmd != nil {
		sources = append(sources, configSource{name: "CLI flags", provider: confmap.Provider(flagValues(cmd), ".")})
	}

	k := koanf.New(".")
	for _, src := range sources {
		if err := k.Load(src.provider, src.parser); err != nil {
			return nil, fmt.Errorf("loading %s: %w", src.name, err)
		}
	}

	config := &app.Config{}
	if err := k.UnmarshalWithConf("", config, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if config.DSN != "" {
		if _, err := directus.ParseDSN(config.DSN); err != nil && !errors.Is(err, directus.ErrMissingPassword) {
			return nil, fmt.Errorf("dsn: %w", err)
		}
	}

	if err := config.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	return config, nil
}

// envProvider maps DIRECTUS_ variables to config keys, "__" separating
// nested keys (DIRECTUS_TOKEN__REFRESH_THRESHOLD → token.refresh_threshold).
func envProvider(environFunc func() []string) koanf.Provider {
	return env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(key, value string) (string, any) {
			stripped := strings.TrimPrefix(key, envPrefix)
			return strings.ToLower(strings.ReplaceAll(stripped, "__", ".")), value
		},
		EnvironFunc: environFunc,
	})
}

// nonConfigFlags control loading itself and never reach the config.
var nonConfigFlags = map[string]bool{
	flagConfig:  true,
	flagEnvFile: true,
}

// flagValues collects the explicitly set flags of cmd and its parents,
// keyed by config path. Unset flags are left out so earlier sources win.
func flagValues(cmd *cli.Command) map[string]any {
	values := make(map[string]any)
	for _, name := range cmd.FlagNames() {
		if nonConfigFlags[name] || !cmd.IsSet(name) {
			continue
		}
		if value := cmd.Value(name); value != nil {
			values[flagKey(name)] = value
		}
	}
	return values
}

// flagKey maps a flag name to its config path: "--" nests, "-" becomes "_"
// (--server--host → server.host, --log-level → log_level).
func flagKey(name string) string {
	return strings.ReplaceAll(strings.ReplaceAll(name, "--", "."), "-", "_")
}
