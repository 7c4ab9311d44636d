// Package appcfg loads walletgen.yaml, WALLETGEN_* environment variables and
// command-line flags into one Config, in increasing order of precedence.
package appcfg

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"WalletGen/internal/generator"
	"WalletGen/internal/hdkey"
	"WalletGen/internal/mnemonic"
	"WalletGen/internal/serial"
	"WalletGen/internal/vault"
	"WalletGen/internal/wallet"
	"WalletGen/pkg/logx"
)

const (
	configName = "walletgen"
	envPrefix  = "WALLETGEN"
)

type Config struct {
	Language             string `mapstructure:"language" yaml:"language"`   // "ru" | "en"
	LogLevel             string `mapstructure:"log_level" yaml:"log_level"` // "debug"|"info"|"warn"|"error"
	HideSecretsInConsole bool   `mapstructure:"hide_secrets_in_console" yaml:"hide_secrets_in_console"`
	Workers              int    `mapstructure:"workers" yaml:"workers"`
	OutputDir            string `mapstructure:"output_dir" yaml:"output_dir"`

	Defaults Defaults `mapstructure:"defaults" yaml:"defaults"`
	Security Security `mapstructure:"security" yaml:"security"`
	Limits   Limits   `mapstructure:"limits" yaml:"limits"`
}

type Defaults struct {
	Network      string `mapstructure:"network" yaml:"network"`
	Strength     int    `mapstructure:"strength" yaml:"strength"`
	PathTemplate string `mapstructure:"path_template" yaml:"path_template"`
	Mode         string `mapstructure:"mode" yaml:"mode"`
	Format       string `mapstructure:"format" yaml:"format"`
	Count        int    `mapstructure:"count" yaml:"count"`
}

type Security struct {
	Iterations                int `mapstructure:"iterations" yaml:"iterations"`
	SaltLength                int `mapstructure:"salt_length" yaml:"salt_length"`
	MinPasswordLength         int `mapstructure:"min_password_length" yaml:"min_password_length"`
	RecommendedPasswordLength int `mapstructure:"recommended_password_length" yaml:"recommended_password_length"`
}

type Limits struct {
	MaxCount int `mapstructure:"max_count" yaml:"max_count"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Language:             "en",
		LogLevel:             "info",
		HideSecretsInConsole: true,
		Workers:              runtime.GOMAXPROCS(0),
		OutputDir:            "output",
		Defaults: Defaults{
			Network:      string(wallet.Mainnet),
			Strength:     mnemonic.DefaultStrength,
			PathTemplate: hdkey.DefaultPathTemplate,
			Mode:         string(generator.ModeIndependent),
			Format:       string(serial.FormatJSON),
			Count:        1,
		},
		Security: Security{
			Iterations:                vault.DefaultIterations,
			SaltLength:                vault.DefaultSaltLength,
			MinPasswordLength:         vault.DefaultMinPasswordLength,
			RecommendedPasswordLength: vault.DefaultRecommendedPasswordLength,
		},
		Limits: Limits{MaxCount: generator.DefaultMaxCount},
	}
}

// flagKeys maps config keys to the flag names that override them.
var flagKeys = map[string]string{
	"language":                "lang",
	"log_level":               "log-level",
	"hide_secrets_in_console": "hide-secrets",
	"workers":                 "workers",
	"output_dir":              "output-dir",
	"defaults.network":        "network",
	"defaults.strength":       "strength",
	"defaults.path_template":  "path",
	"defaults.mode":           "mode",
	"defaults.format":         "format",
	"defaults.count":          "count",
	"security.iterations":     "iterations",
}

// Load resolves configuration. configFile may be empty, in which case
// walletgen.yaml is looked up in the current and user config directories;
// a missing file is not an error. fs may be nil.
func Load(fs *pflag.FlagSet, configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configName))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for key, name := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if used := v.ConfigFileUsed(); used != "" {
		logx.S().Debugw("config loaded", "file", used)
	}
	return &c, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("language", d.Language)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("hide_secrets_in_console", d.HideSecretsInConsole)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("output_dir", d.OutputDir)
	v.SetDefault("defaults.network", d.Defaults.Network)
	v.SetDefault("defaults.strength", d.Defaults.Strength)
	v.SetDefault("defaults.path_template", d.Defaults.PathTemplate)
	v.SetDefault("defaults.mode", d.Defaults.Mode)
	v.SetDefault("defaults.format", d.Defaults.Format)
	v.SetDefault("defaults.count", d.Defaults.Count)
	v.SetDefault("security.iterations", d.Security.Iterations)
	v.SetDefault("security.salt_length", d.Security.SaltLength)
	v.SetDefault("security.min_password_length", d.Security.MinPasswordLength)
	v.SetDefault("security.recommended_password_length", d.Security.RecommendedPasswordLength)
	v.SetDefault("limits.max_count", d.Limits.MaxCount)
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Language != "en" && c.Language != "ru" {
		errs = append(errs, fmt.Errorf("language: %q is not one of en, ru", c.Language))
	}
	if !logx.ValidLevel(c.LogLevel) {
		errs = append(errs, fmt.Errorf("log_level: %q is not one of debug, info, warn, error", c.LogLevel))
	}
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers: %d must be positive", c.Workers))
	}
	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir: must not be empty"))
	}
	if _, err := wallet.ParseNetwork(c.Defaults.Network); err != nil {
		errs = append(errs, fmt.Errorf("defaults.network: %w", err))
	}
	if !mnemonic.ValidStrength(c.Defaults.Strength) {
		errs = append(errs, fmt.Errorf("defaults.strength: %d is not one of %v", c.Defaults.Strength, mnemonic.Strengths))
	}
	if _, err := hdkey.ParseTemplate(c.Defaults.PathTemplate); err != nil {
		errs = append(errs, fmt.Errorf("defaults.path_template: %w", err))
	}
	if _, err := generator.ParseMode(c.Defaults.Mode); err != nil {
		errs = append(errs, fmt.Errorf("defaults.mode: %w", err))
	}
	if _, err := serial.ParseFormat(c.Defaults.Format); err != nil {
		errs = append(errs, fmt.Errorf("defaults.format: %w", err))
	}
	if c.Limits.MaxCount < 1 {
		errs = append(errs, fmt.Errorf("limits.max_count: %d must be positive", c.Limits.MaxCount))
	}
	if c.Defaults.Count < 1 || c.Defaults.Count > c.Limits.MaxCount {
		errs = append(errs, fmt.Errorf("defaults.count: %d outside 1..%d", c.Defaults.Count, c.Limits.MaxCount))
	}
	if c.Security.Iterations < 1 || c.Security.Iterations > vault.MaxIterations {
		errs = append(errs, fmt.Errorf("security.iterations: %d outside 1..%d", c.Security.Iterations, vault.MaxIterations))
	}
	if c.Security.SaltLength < vault.MinSaltLength {
		errs = append(errs, fmt.Errorf("security.salt_length: %d below %d", c.Security.SaltLength, vault.MinSaltLength))
	}
	if c.Security.MinPasswordLength < 1 {
		errs = append(errs, fmt.Errorf("security.min_password_length: %d must be positive", c.Security.MinPasswordLength))
	}
	if c.Security.RecommendedPasswordLength < c.Security.MinPasswordLength {
		errs = append(errs, errors.New("security.recommended_password_length: below min_password_length"))
	}
	return errors.Join(errs...)
}

// VaultConfig converts the security section.
func (c *Config) VaultConfig() vault.Config {
	return vault.Config{
		Iterations:                c.Security.Iterations,
		SaltLength:                c.Security.SaltLength,
		MinPasswordLength:         c.Security.MinPasswordLength,
		RecommendedPasswordLength: c.Security.RecommendedPasswordLength,
	}
}

// WriteFile stores c as YAML with 0600 permissions; it refuses to overwrite.
func WriteFile(c Config, path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create config directory %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
