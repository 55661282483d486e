package internal

import (
	"fmt"
	"log/slog"
	"path/filepath"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Vault    VaultConfig       `yaml:"vault"`
	Catalog  CatalogConfig     `yaml:"catalog"`
	State    StateConfig       `yaml:"state"`
	Filing   FilingConfig      `yaml:"filing"`
	Analyzer AnalyzerConfig    `yaml:"analyzer"`
	Schedule ScheduleConfig    `yaml:"schedule"`
	Telegram TelegramConfig    `yaml:"telegram"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Vault.Validate(); err != nil {
		return err
	}
	if err := c.Catalog.Validate(); err != nil {
		return err
	}
	if err := c.Filing.Validate(); err != nil {
		return err
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// VaultConfig holds the Markdown vault location and inbox layout.
type VaultConfig struct {
	Path  string `yaml:"path"`
	Inbox string `yaml:"inbox"`
}

// Validate validates the vault configuration.
func (c *VaultConfig) Validate() error {
	if c.Inbox == "" {
		c.Inbox = "inbox"
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// CatalogConfig holds SQLite catalog configuration.
type CatalogConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the catalog configuration.
func (c *CatalogConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// StateConfig locates the persisted curator state (learner corrections,
// filing ledger).
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// LearnerPath returns the learner state file path.
func (c *StateConfig) LearnerPath() string {
	return filepath.Join(c.Dir, "learner.json")
}

// LedgerPath returns the ledger state file path.
func (c *StateConfig) LedgerPath() string {
	return filepath.Join(c.Dir, "ledger.json")
}

// FilingConfig holds batch filing defaults.
type FilingConfig struct {
	Limit         int     `yaml:"limit"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// Validate validates the filing configuration.
func (c *FilingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Limit, validation.Min(0)),
		validation.Field(&c.MinConfidence, validation.Min(0.0), validation.Max(1.0)),
	)
}

// AnalyzerConfig holds the chat model settings. An empty APIKey disables
// analysis; capture and filing still work over externally analyzed notes.
type AnalyzerConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// Enabled reports whether analysis is configured.
func (c *AnalyzerConfig) Enabled() bool {
	return c.APIKey != ""
}

// ScheduleConfig holds the periodic curation pass settings.
type ScheduleConfig struct {
	Enabled bool   `yaml:"enabled"`
	Spec    string `yaml:"spec"`
}

// Validate validates the schedule configuration.
func (c *ScheduleConfig) Validate() error {
	if c.Enabled && c.Spec == "" {
		return fmt.Errorf("schedule: enabled but spec is empty")
	}
	return nil
}

// TelegramConfig holds the Telegram bot settings. An empty token disables
// the bot.
type TelegramConfig struct {
	Token        string  `yaml:"token"`
	AllowedChats []int64 `yaml:"allowed_chats"`
}

// Enabled reports whether the bot is configured.
func (c *TelegramConfig) Enabled() bool {
	return c.Token != ""
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled" for backward compatibility.
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Vault: VaultConfig{
			Path:  "./vault",
			Inbox: "inbox",
		},
		Catalog: CatalogConfig{
			Path: "./ansuz.db",
		},
		State: StateConfig{
			Dir: "./state",
		},
		Filing: FilingConfig{
			Limit:         10,
			MinConfidence: 0.7,
		},
		Schedule: ScheduleConfig{
			Enabled: false,
			Spec:    "*/30 * * * *",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
