package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
)

func newTestCmd(t *testing.T) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	if err := RegisterFlags(cmd); err != nil {
		t.Fatalf("RegisterFlags() error = %v", err)
	}
	return cmd
}

func parseFlags(t *testing.T, cmd *cobra.Command, args ...string) {
	t.Helper()
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("Parse(%v) error = %v", args, err)
	}
}

func TestLoadConfig_FromFlags(t *testing.T) {
	cmd := newTestCmd(t)
	parseFlags(t, cmd,
		"--host", "imap.example.com",
		"--username", "tester@example.com",
		"--password", "secret",
		"--by-sender",
		"--config", "")

	cfg, err := LoadConfig(cmd)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Host != "imap.example.com" {
		t.Errorf("Host = %q", cfg.Host)
	}
	if cfg.Port != 993 {
		t.Errorf("Port = %d, want default 993", cfg.Port)
	}
	if !cfg.BySender {
		t.Error("BySender = false, want true")
	}
	if filepath.Base(cfg.SaveRoot()) != "LostPhotosFound" {
		t.Errorf("SaveRoot() = %q, want a LostPhotosFound directory", cfg.SaveRoot())
	}
}

func TestLoadConfig_CredentialsFileFillsGaps(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config")
	contents := "HOST=imap.example.com\nUSERNAME=tester@example.com\nPASSWORD=from-file\n"
	if err := os.WriteFile(configFile, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := newTestCmd(t)
	parseFlags(t, cmd, "--config", configFile)

	cfg, err := LoadConfig(cmd)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Host != "imap.example.com" {
		t.Errorf("Host = %q, want value from config file", cfg.Host)
	}
	if cfg.Password != "from-file" {
		t.Errorf("Password = %q, want value from config file", cfg.Password)
	}
}

func TestLoadConfig_FlagsOverrideCredentialsFile(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config")
	contents := "HOST=imap.example.com\nUSERNAME=tester@example.com\nPASSWORD=from-file\n"
	if err := os.WriteFile(configFile, []byte(contents), 0o600); err != nil {
		t.Fatal(err)
	}

	cmd := newTestCmd(t)
	parseFlags(t, cmd, "--config", configFile, "--password", "from-flag")

	cfg, err := LoadConfig(cmd)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Password != "from-flag" {
		t.Errorf("Password = %q, want flag to win over file", cfg.Password)
	}
}

func TestLoadConfig_PasswordFromEnv(t *testing.T) {
	t.Setenv("LPF_PASSWORD", "from-env")

	cmd := newTestCmd(t)
	parseFlags(t, cmd,
		"--host", "imap.example.com",
		"--username", "tester@example.com",
		"--config", "")

	cfg, err := LoadConfig(cmd)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Password != "from-env" {
		t.Errorf("Password = %q, want LPF_PASSWORD fallback", cfg.Password)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{
			name: "missing host",
			args: []string{"--username", "u", "--password", "p", "--config", ""},
		},
		{
			name: "missing username",
			args: []string{"--host", "h", "--password", "p", "--config", ""},
		},
		{
			name: "missing password",
			args: []string{"--host", "h", "--username", "u", "--config", ""},
		},
		{
			name: "port out of range",
			args: []string{"--host", "h", "--username", "u", "--password", "p", "--port", "70000", "--config", ""},
		},
		{
			name: "bad log level",
			args: []string{"--host", "h", "--username", "u", "--password", "p", "--log-level", "chatty", "--config", ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LPF_PASSWORD", "")
			cmd := newTestCmd(t)
			parseFlags(t, cmd, tt.args...)

			if _, err := LoadConfig(cmd); err == nil {
				t.Error("LoadConfig() succeeded, want validation error")
			}
		})
	}
}
