package config

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/carbonfact/lea/pkg/core"
)

// ConfigFileName is the name of the project config file.
const ConfigFileName = "lea.yaml"

// ConfigFileNameAlt is the alternate name of the project config file.
const ConfigFileNameAlt = "lea.yml"

// EnvPrefix is the prefix koanf strips and lower-cases when folding
// environment variables into the config tree (LEA_TARGET_HOST -> target.host).
const EnvPrefix = "LEA_"

// LoadFromDir loads a ProjectConfig from dir, looking for lea.yaml or
// lea.yml, then overlaying any LEA_-prefixed environment variables.
// Returns nil, nil if no config file is found — not an error, since a
// bare scripts directory with no project file can still be loaded with
// defaults. Such a config has no target, so commands that open a
// warehouse (`lea run`, `lea diff`) then fail with a config error.
func LoadFromDir(dir string) (*core.ProjectConfig, error) {
	configPath := findConfigFile(dir)
	if configPath == "" {
		return nil, nil
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
		return nil, err
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", foldEnvKey), nil); err != nil {
		return nil, err
	}

	var cfg core.ProjectConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)
	if cfg.Target != nil {
		ApplyTargetDefaults(cfg.Target)
	}

	return &cfg, nil
}

func foldEnvKey(rawKey, value string) (string, any) {
	key := rawKey[len(EnvPrefix):]
	return normalizeEnvKey(key), value
}

func normalizeEnvKey(key string) string {
	out := make([]byte, 0, len(key))
	for i := 0; i < len(key); i++ {
		c := key[i]
		switch {
		case c == '_':
			out = append(out, '.')
		case c >= 'A' && c <= 'Z':
			out = append(out, c+('a'-'A'))
		default:
			out = append(out, c)
		}
	}
	return string(out)
}

func findConfigFile(dir string) string {
	if p := filepath.Join(dir, ConfigFileName); fileExists(p) {
		return p
	}
	if p := filepath.Join(dir, ConfigFileNameAlt); fileExists(p) {
		return p
	}
	return ""
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FindProjectRoot walks up from startDir looking for lea.yaml/lea.yml.
func FindProjectRoot(startDir string) string {
	dir := startDir
	for {
		if findConfigFile(dir) != "" {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
