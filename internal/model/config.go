package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ErrConfig is wrapped by every configuration validation failure.
var ErrConfig = errors.New("invalid configuration")

// Store drivers understood by the pairing store factory.
const (
	StoreDriverJSON   = "json"
	StoreDriverSQLite = "sqlite"
)

// EnvPrefix prefixes environment overrides, e.g. AUTOBIO_MAILBOX_PASSWORD.
const EnvPrefix = "AUTOBIO"

// TagsConfig holds the case-insensitive subject markers.
type TagsConfig struct {
	Autobiography string `mapstructure:"autobiography" yaml:"autobiography"`
	Feedback      string `mapstructure:"feedback" yaml:"feedback"`
}

// PathsConfig holds every on-disk location the service touches.
type PathsConfig struct {
	// Autobiographies is where downloaded autobiography attachments are stored.
	Autobiographies string `mapstructure:"autobiographies" yaml:"autobiographies"`

	// Feedback is where downloaded feedback attachments are stored.
	Feedback string `mapstructure:"feedback" yaml:"feedback"`

	// Pairings is the pairing table (a JSON file or a SQLite database).
	Pairings string `mapstructure:"pairings" yaml:"pairings"`

	// Roster is the JSON list of registered participant addresses.
	Roster string `mapstructure:"roster" yaml:"roster"`
}

// StoreConfig selects the pairing store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
}

// MailboxConfig holds the IMAP and SMTP settings of the exchange account.
type MailboxConfig struct {
	IMAPHost string `mapstructure:"imap_host" yaml:"imap_host"`
	IMAPPort string `mapstructure:"imap_port" yaml:"imap_port"`
	SMTPHost string `mapstructure:"smtp_host" yaml:"smtp_host"`
	SMTPPort string `mapstructure:"smtp_port" yaml:"smtp_port"`
	Username string `mapstructure:"username" yaml:"username"`

	// Password may be left empty, in which case it is read from the system
	// keyring entry written by the login command.
	Password string `mapstructure:"password" yaml:"password"`

	// Address is the From address of outgoing mail and is also used to skip
	// the account's own messages. Defaults to Username.
	Address string `mapstructure:"address" yaml:"address"`

	// Folder is the mailbox polled for submissions.
	Folder string `mapstructure:"folder" yaml:"folder"`

	// TLS selects implicit TLS; STARTTLS is used otherwise.
	TLS bool `mapstructure:"tls" yaml:"tls"`

	// AttachmentsOnly restricts listing to messages carrying an attachment.
	AttachmentsOnly bool `mapstructure:"attachments_only" yaml:"attachments_only"`

	// Timeout bounds every single mailbox operation.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// TemplatesConfig holds the subjects and bodies of forwarded mail. Empty
// subjects are derived from the tags.
type TemplatesConfig struct {
	AutobiographySubject string `mapstructure:"autobiography_subject" yaml:"autobiography_subject"`
	AutobiographyBody    string `mapstructure:"autobiography_body" yaml:"autobiography_body"`
	FeedbackSubject      string `mapstructure:"feedback_subject" yaml:"feedback_subject"`
	FeedbackBody         string `mapstructure:"feedback_body" yaml:"feedback_body"`
}

// LogConfig holds logging preferences.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	PollInterval time.Duration   `mapstructure:"poll_interval" yaml:"poll_interval"`
	Tags         TagsConfig      `mapstructure:"tags" yaml:"tags"`
	Paths        PathsConfig     `mapstructure:"paths" yaml:"paths"`
	Store        StoreConfig     `mapstructure:"store" yaml:"store"`
	Mailbox      MailboxConfig   `mapstructure:"mailbox" yaml:"mailbox"`
	Templates    TemplatesConfig `mapstructure:"templates" yaml:"templates"`
	Log          LogConfig       `mapstructure:"log" yaml:"log"`
}

const (
	defaultAutobiographyBody = "Hi, attached you will find an autobiography. " +
		"Please read it and give your feedback following the guide you " +
		"received when you signed up. Thank you for taking part!"
	defaultFeedbackBody = "Hi, attached you will find the feedback on the " +
		"autobiography you sent. We hope you find it useful!"
)

// defaults lists every key with its default value. Registering each key is
// also what lets viper resolve environment overrides on Unmarshal.
var defaults = map[string]any{
	"poll_interval":                   "5m",
	"tags.autobiography":              "autobiography",
	"tags.feedback":                   "feedback",
	"paths.autobiographies":           filepath.Join("attachments", "autobiographies"),
	"paths.feedback":                  filepath.Join("attachments", "feedback"),
	"paths.pairings":                  filepath.Join("data", "pairings.json"),
	"paths.roster":                    filepath.Join("data", "registered-users.json"),
	"store.driver":                    StoreDriverJSON,
	"mailbox.imap_host":               "imap.gmail.com",
	"mailbox.imap_port":               "993",
	"mailbox.smtp_host":               "smtp.gmail.com",
	"mailbox.smtp_port":               "465",
	"mailbox.username":                "",
	"mailbox.password":                "",
	"mailbox.address":                 "",
	"mailbox.folder":                  "INBOX",
	"mailbox.tls":                     true,
	"mailbox.attachments_only":        true,
	"mailbox.timeout":                 "1m",
	"templates.autobiography_subject": "",
	"templates.autobiography_body":    defaultAutobiographyBody,
	"templates.feedback_subject":      "",
	"templates.feedback_body":         defaultFeedbackBody,
	"log.level":                       "info",
	"log.file":                        "autobiographer.log",
}

// DefaultConfigPath returns ./config.yaml when it exists, otherwise
// ~/.config/autobiographer/config.yaml.
func DefaultConfigPath() string {
	local := "config.yaml"
	if _, err := os.Stat(local); err == nil {
		return local
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return local
	}
	return filepath.Join(home, ".config", "autobiographer", "config.yaml")
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	return v
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// A missing file yields the defaults, still subject to environment
// overrides. The result is validated.
func LoadConfig(path string) (*AppConfig, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	cfg.applyDerivedDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig returns the built-in defaults without reading any file or
// environment. The result is not validated since it has no mailbox account.
func DefaultConfig() *AppConfig {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	cfg := &AppConfig{}
	// Defaults are static and always decode.
	_ = v.Unmarshal(cfg)
	cfg.applyDerivedDefaults()
	return cfg
}

// applyDerivedDefaults fills values that depend on other settings.
func (c *AppConfig) applyDerivedDefaults() {
	c.Tags.Autobiography = strings.TrimSpace(c.Tags.Autobiography)
	c.Tags.Feedback = strings.TrimSpace(c.Tags.Feedback)

	if c.Mailbox.Address == "" {
		c.Mailbox.Address = c.Mailbox.Username
	}

	title := cases.Title(language.Und)
	if c.Templates.AutobiographySubject == "" {
		c.Templates.AutobiographySubject = title.String(c.Tags.Autobiography) + " for feedback"
	}
	if c.Templates.FeedbackSubject == "" {
		c.Templates.FeedbackSubject = title.String(c.Tags.Feedback) + " on your " +
			strings.ToLower(c.Tags.Autobiography)
	}
}

// Validate reports the first setting that would keep the service from
// running correctly.
func (c *AppConfig) Validate() error {
	switch {
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: poll_interval must be positive", ErrConfig)
	case c.Tags.Autobiography == "" || c.Tags.Feedback == "":
		return fmt.Errorf("%w: both subject tags are required", ErrConfig)
	case strings.EqualFold(c.Tags.Autobiography, c.Tags.Feedback):
		return fmt.Errorf("%w: subject tags must differ", ErrConfig)
	case c.Paths.Autobiographies == "" || c.Paths.Feedback == "":
		return fmt.Errorf("%w: attachment directories are required", ErrConfig)
	case c.Paths.Pairings == "":
		return fmt.Errorf("%w: paths.pairings is required", ErrConfig)
	case c.Paths.Roster == "":
		return fmt.Errorf("%w: paths.roster is required", ErrConfig)
	case c.Store.Driver != StoreDriverJSON && c.Store.Driver != StoreDriverSQLite:
		return fmt.Errorf("%w: unknown store driver %q", ErrConfig, c.Store.Driver)
	case c.Mailbox.IMAPHost == "" || c.Mailbox.SMTPHost == "":
		return fmt.Errorf("%w: mailbox hosts are required", ErrConfig)
	case c.Mailbox.Username == "":
		return fmt.Errorf("%w: mailbox.username is required", ErrConfig)
	}
	return nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("poll_interval", cfg.PollInterval.String())
	v.Set("tags", cfg.Tags)
	v.Set("paths", cfg.Paths)
	v.Set("store", cfg.Store)
	v.Set("templates", cfg.Templates)
	v.Set("log", cfg.Log)

	// The password never leaves the keyring or the environment.
	mailbox := cfg.Mailbox
	mailbox.Password = ""
	v.Set("mailbox", mailbox)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
