package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix           = "GALA"
	defaultHTTPAddress  = "0.0.0.0:8080"
	defaultDatabasePath = "gala.db"
	defaultLogLevel     = "info"
	defaultTokenTTL     = 12 * time.Hour
	defaultWordBonus    = 5
	defaultPuzzleBonus  = 15
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress      string
	DatabasePath     string
	LogLevel         string
	TokenSigningKey  string
	TokenTTL         time.Duration
	RejectZeroAwards bool
	WordBonus        int
	PuzzleBonus      int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl", defaultTokenTTL)
	configViper.SetDefault("scoring.reject_zero_awards", false)
	configViper.SetDefault("crossword.word_bonus", defaultWordBonus)
	configViper.SetDefault("crossword.puzzle_bonus", defaultPuzzleBonus)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:      configViper.GetString("http.address"),
		DatabasePath:     configViper.GetString("database.path"),
		LogLevel:         configViper.GetString("log.level"),
		TokenSigningKey:  configViper.GetString("token.signing_secret"),
		TokenTTL:         configViper.GetDuration("token.ttl"),
		RejectZeroAwards: configViper.GetBool("scoring.reject_zero_awards"),
		WordBonus:        configViper.GetInt("crossword.word_bonus"),
		PuzzleBonus:      configViper.GetInt("crossword.puzzle_bonus"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.TokenSigningKey) == "" {
		return fmt.Errorf("token.signing_secret is required")
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.WordBonus <= 0 {
		return fmt.Errorf("crossword.word_bonus must be positive")
	}
	if c.PuzzleBonus < 0 {
		return fmt.Errorf("crossword.puzzle_bonus must not be negative")
	}
	return nil
}
