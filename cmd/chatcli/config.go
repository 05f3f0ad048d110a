package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

// CLIConfig is stored in ~/.support-chat/cli.toml.
type CLIConfig struct {
	Server ServerSection `toml:"server"`
	Auth   AuthSection   `toml:"auth"`
}

type ServerSection struct {
	URL string `toml:"url"`
}

type AuthSection struct {
	Token string `toml:"token"`
}

const defaultServer = "http://localhost:8080"

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".support-chat")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("cannot create config directory: %w", err)
	}
	return filepath.Join(dir, "cli.toml"), nil
}

// loadCLIConfig returns a zero config when the file does not exist.
func loadCLIConfig() (*CLIConfig, error) {
	path, err := configPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &CLIConfig{}, nil
		}
		return nil, fmt.Errorf("cannot read config: %w", err)
	}
	var cfg CLIConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}
	return &cfg, nil
}

func saveCLIConfig(cfg *CLIConfig) error {
	path, err := configPath()
	if err != nil {
		return err
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("cannot write config: %w", err)
	}
	return nil
}

func setConfigValue(cfg *CLIConfig, key, value string) error {
	switch key {
	case "server.url":
		cfg.Server.URL = strings.TrimRight(value, "/")
	case "auth.token":
		cfg.Auth.Token = value
	default:
		return fmt.Errorf("unknown key %q (valid: server.url, auth.token)", key)
	}
	return nil
}

// resolveEndpoint picks server and token: flag, then environment, then the
// config file.
func resolveEndpoint() (server, token string, err error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return "", "", err
	}
	server = firstNonEmpty(flagServer, os.Getenv("SUPPORT_CHAT_SERVER"), cfg.Server.URL, defaultServer)
	token = firstNonEmpty(flagToken, os.Getenv("SUPPORT_CHAT_TOKEN"), cfg.Auth.Token)
	if token == "" {
		return "", "", fmt.Errorf("no token: pass --token, set SUPPORT_CHAT_TOKEN or run 'chatcli token --save'")
	}
	return server, token, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change the saved CLI settings",
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value (server.url, auth.token)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}
		if err := setConfigValue(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := saveCLIConfig(cfg); err != nil {
			return err
		}
		fmt.Printf("Set %s\n", args[0])
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the saved settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadCLIConfig()
		if err != nil {
			return err
		}
		token := cfg.Auth.Token
		if len(token) > 12 {
			token = token[:12] + "..."
		}
		fmt.Printf("server.url = %s\n", firstNonEmpty(cfg.Server.URL, defaultServer+" (default)"))
		fmt.Printf("auth.token = %s\n", firstNonEmpty(token, "(unset)"))
		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd, configShowCmd)
	rootCmd.AddCommand(configCmd)
}
