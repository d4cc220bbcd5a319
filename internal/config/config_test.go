package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	cfg.Sheet.SpreadsheetID = "ss"
	cfg.Mail.Sender = "hr@acme.test"
	cfg.Mail.Subject = "Update on {{ role }}"
	cfg.Mail.TextTemplate = "body.txt"
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sendoff.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sheet:\n  spreadsheet_id: ss\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Applicants", cfg.Sheet.Tab)
	assert.Equal(t, "A:Z", cfg.Sheet.ReadRange)
	assert.Equal(t, 2.0, cfg.Run.ThrottleSeconds)
	assert.Equal(t, 0.0, cfg.Run.DomainThrottleSeconds)
	assert.Equal(t, 0, cfg.Run.PreviewN)
	assert.Equal(t, "credentials.json", cfg.Google.CredentialsPath)
	assert.Equal(t, "token.json", cfg.Google.TokenPath)
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", nil, true},
		{"missing spreadsheet", func(c *Config) { c.Sheet.SpreadsheetID = "" }, false},
		{"missing sender", func(c *Config) { c.Mail.Sender = "" }, false},
		{"invalid sender", func(c *Config) { c.Mail.Sender = "not an address" }, false},
		{"missing subject", func(c *Config) { c.Mail.Subject = "" }, false},
		{"missing text template", func(c *Config) { c.Mail.TextTemplate = "" }, false},
		{"html template optional", func(c *Config) { c.Mail.HTMLTemplate = "" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestResolvedSender_EnvOverrides(t *testing.T) {
	cfg := validConfig()

	t.Setenv("SENDER_NAME", "")
	t.Setenv("SENDER_TITLE", "")
	os.Unsetenv("SENDER_NAME")
	os.Unsetenv("SENDER_TITLE")
	assert.Equal(t, "Recruiting Team", cfg.ResolvedSenderName())
	assert.Equal(t, "Talent Acquisition", cfg.ResolvedSenderTitle())

	cfg.Mail.SenderName = "People Ops"
	cfg.Mail.SenderTitle = "Head of People"
	assert.Equal(t, "People Ops", cfg.ResolvedSenderName())
	assert.Equal(t, "Head of People", cfg.ResolvedSenderTitle())

	t.Setenv("SENDER_NAME", "Env Name")
	t.Setenv("SENDER_TITLE", "Env Title")
	assert.Equal(t, "Env Name", cfg.ResolvedSenderName())
	assert.Equal(t, "Env Title", cfg.ResolvedSenderTitle())
}
