package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Config captures everything required to run the extraction pipeline.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	Search      string
	Folder      string
	BySender    bool
	IgnoreIndex bool

	OutputRoot string
	StateDir   string
	ConfigFile string

	InsecureSkipVerify bool
	LogLevel           string
	LogDir             string
}

// SaveRoot is the directory tree attachments are extracted into; per-account
// subdirectories live below it.
func (c Config) SaveRoot() string {
	return filepath.Join(c.OutputRoot, "LostPhotosFound")
}

// RegisterFlags attaches all CLI flags to the provided command.
func RegisterFlags(cmd *cobra.Command) error {
	defaultStateDir, err := DefaultStateDir()
	if err != nil {
		return err
	}
	defaultConfigFile, err := defaultConfigFile()
	if err != nil {
		return err
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	flags.String("host", "", "IMAP server hostname (e.g. imap.gmail.com)")
	flags.Int("port", 993, "IMAP server port")
	flags.String("username", "", "Mail account username")
	flags.String("password", "", "Mail account password (falls back to LPF_PASSWORD env var)")
	flags.StringP("search", "S", "", "Additional search filter, appended verbatim to the image criteria")
	flags.String("folder", "", "Mailbox folder to process (default: the server's all-mail folder)")
	flags.Bool("by-sender", false, "Group saved attachments into per-sender subfolders")
	flags.Bool("ignore-index", false, "Process messages even if the index already records them")
	flags.String("output", home, "Directory to create the LostPhotosFound tree under")
	flags.String("state-dir", defaultStateDir, "Directory for the processed-message index and content hash store")
	flags.String("config", defaultConfigFile, "Credentials file with HOST, USERNAME and PASSWORD entries")
	flags.Bool("insecure-skip-verify", false, "Skip TLS certificate verification (not recommended)")
	flags.String("log-level", "info", "Logging level: debug, info, warn, error")
	flags.String("log-dir", "", "Directory to tee the log into (optional)")

	return nil
}

// LoadConfig converts the parsed Cobra flags into a Config struct, filling
// host and credentials from the config file where flags left them empty, then
// validating. Validation failures surface before any connection attempt.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	flags := cmd.Flags()

	host, err := flags.GetString("host")
	if err != nil {
		return Config{}, err
	}
	port, err := flags.GetInt("port")
	if err != nil {
		return Config{}, err
	}
	username, err := flags.GetString("username")
	if err != nil {
		return Config{}, err
	}
	password, err := flags.GetString("password")
	if err != nil {
		return Config{}, err
	}
	search, err := flags.GetString("search")
	if err != nil {
		return Config{}, err
	}
	folder, err := flags.GetString("folder")
	if err != nil {
		return Config{}, err
	}
	bySender, err := flags.GetBool("by-sender")
	if err != nil {
		return Config{}, err
	}
	ignoreIndex, err := flags.GetBool("ignore-index")
	if err != nil {
		return Config{}, err
	}
	outputRoot, err := flags.GetString("output")
	if err != nil {
		return Config{}, err
	}
	stateDir, err := flags.GetString("state-dir")
	if err != nil {
		return Config{}, err
	}
	configFile, err := flags.GetString("config")
	if err != nil {
		return Config{}, err
	}
	insecureSkipVerify, err := flags.GetBool("insecure-skip-verify")
	if err != nil {
		return Config{}, err
	}
	logLevel, err := flags.GetString("log-level")
	if err != nil {
		return Config{}, err
	}
	logDir, err := flags.GetString("log-dir")
	if err != nil {
		return Config{}, err
	}

	if configFile != "" {
		values, err := readConfigFile(configFile)
		if err != nil {
			return Config{}, err
		}
		if host == "" {
			host = values["HOST"]
		}
		if username == "" {
			username = values["USERNAME"]
		}
		if password == "" {
			password = values["PASSWORD"]
		}
	}

	if password == "" {
		password = os.Getenv("LPF_PASSWORD")
	}

	if stateDir == "" {
		stateDir, err = DefaultStateDir()
		if err != nil {
			return Config{}, err
		}
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	cfg := Config{
		Host:               host,
		Port:               port,
		Username:           username,
		Password:           password,
		Search:             search,
		Folder:             folder,
		BySender:           bySender,
		IgnoreIndex:        ignoreIndex,
		OutputRoot:         outputRoot,
		StateDir:           filepath.Clean(stateDir),
		ConfigFile:         configFile,
		InsecureSkipVerify: insecureSkipVerify,
		LogLevel:           logLevel,
		LogDir:             logDir,
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// readConfigFile loads the dotenv-style credentials file. A missing file is
// not an error; the flags or environment may carry everything needed.
func readConfigFile(path string) (map[string]string, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return values, nil
}

func validateConfig(cfg Config) error {
	if cfg.Host == "" {
		return fmt.Errorf("IMAP host must be provided via --host or the config file")
	}
	if cfg.Username == "" {
		return fmt.Errorf("username must be provided via --username or the config file")
	}
	if cfg.Password == "" {
		return fmt.Errorf("password must be provided via --password, the config file or the LPF_PASSWORD env var")
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("--port must be between 1 and 65535")
	}
	if cfg.OutputRoot == "" {
		return fmt.Errorf("--output must not be empty")
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

// DefaultStateDir is where the persistent stores live unless overridden.
func DefaultStateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".lostphotosfound", "state"), nil
}

func defaultConfigFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".lostphotosfound", "config"), nil
}
