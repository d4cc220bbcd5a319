package config

import (
	"fmt"
	"net/mail"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Log    LogConfig    `mapstructure:"log"`
	Google GoogleConfig `mapstructure:"google"`
	Sheet  SheetConfig  `mapstructure:"sheet"`
	Mail   MailConfig   `mapstructure:"mail"`
	Run    RunConfig    `mapstructure:"run"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GoogleConfig holds credential and token file locations
type GoogleConfig struct {
	// CredentialsPath is the OAuth client secrets JSON file
	CredentialsPath string `mapstructure:"credentials_path"`
	// TokenPath is where the authorized user token is persisted
	TokenPath string `mapstructure:"token_path"`
}

// SheetConfig holds the source spreadsheet addressing
type SheetConfig struct {
	SpreadsheetID string `mapstructure:"spreadsheet_id"`
	// Tab is the preferred tab title; resolution falls back to a
	// case-insensitive match, then the first tab in the document.
	Tab       string `mapstructure:"tab"`
	ReadRange string `mapstructure:"read_range"`
}

// MailConfig holds sender identity and message composition settings
type MailConfig struct {
	// Sender is the From address; also the destination in test-to-self mode
	Sender  string `mapstructure:"sender"`
	Subject string `mapstructure:"subject"`
	CC      string `mapstructure:"cc"`
	BCC     string `mapstructure:"bcc"`
	ReplyTo string `mapstructure:"reply_to"`
	// TextTemplate is required; HTMLTemplate is optional
	TextTemplate string   `mapstructure:"text_template"`
	HTMLTemplate string   `mapstructure:"html_template"`
	Attachments  []string `mapstructure:"attachments"`
	// SenderName and SenderTitle feed the template context; the
	// SENDER_NAME and SENDER_TITLE environment variables take
	// precedence when set.
	SenderName  string `mapstructure:"sender_name"`
	SenderTitle string `mapstructure:"sender_title"`
}

// RunConfig holds pacing and mode settings for a single run
type RunConfig struct {
	// ThrottleSeconds is the fixed sleep after each successful send
	ThrottleSeconds float64 `mapstructure:"throttle_seconds"`
	// DomainThrottleSeconds is the minimum spacing between sends to
	// the same destination domain; 0 disables the cooldown
	DomainThrottleSeconds float64 `mapstructure:"domain_throttle_seconds"`
	// PreviewN limits the run to the first N eligible rows; 0 is off
	PreviewN   int  `mapstructure:"preview_n"`
	DryRun     bool `mapstructure:"dry_run"`
	TestToSelf bool `mapstructure:"test_to_self"`
}

// Load reads configuration from file and environment variables.
// path, when non-empty, names an explicit config file.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("sendoff")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.sendoff")
	}

	setDefaults(v)

	// Read config file (optional unless explicitly named)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables
	v.SetEnvPrefix("SENDOFF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Google defaults
	v.SetDefault("google.credentials_path", "credentials.json")
	v.SetDefault("google.token_path", "token.json")

	// Sheet defaults
	v.SetDefault("sheet.tab", "Applicants")
	v.SetDefault("sheet.read_range", "A:Z")

	// Run defaults
	v.SetDefault("run.throttle_seconds", 2.0)
	v.SetDefault("run.domain_throttle_seconds", 0.0)
	v.SetDefault("run.preview_n", 0)
}

// Validate rejects configurations that must never enter a run.
func (c *Config) Validate() error {
	if c.Sheet.SpreadsheetID == "" {
		return fmt.Errorf("sheet.spreadsheet_id is required")
	}
	if c.Mail.Sender == "" {
		return fmt.Errorf("mail.sender is required")
	}
	if _, err := mail.ParseAddress(c.Mail.Sender); err != nil {
		return fmt.Errorf("mail.sender %q is not a valid address: %w", c.Mail.Sender, err)
	}
	if c.Mail.Subject == "" {
		return fmt.Errorf("mail.subject is required")
	}
	if c.Mail.TextTemplate == "" {
		return fmt.Errorf("mail.text_template is required")
	}
	return nil
}

// ResolvedSenderName returns the sender display name for the template
// context. The SENDER_NAME environment variable wins over configuration.
func (c *Config) ResolvedSenderName() string {
	if v := os.Getenv("SENDER_NAME"); v != "" {
		return v
	}
	if c.Mail.SenderName != "" {
		return c.Mail.SenderName
	}
	return "Recruiting Team"
}

// ResolvedSenderTitle returns the sender title for the template context.
// The SENDER_TITLE environment variable wins over configuration.
func (c *Config) ResolvedSenderTitle() string {
	if v := os.Getenv("SENDER_TITLE"); v != "" {
		return v
	}
	if c.Mail.SenderTitle != "" {
		return c.Mail.SenderTitle
	}
	return "Talent Acquisition"
}
