package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gnemet/SlideClean/internal/cleaner"
	"github.com/gnemet/SlideClean/internal/patch"
	"github.com/gnemet/SlideClean/internal/settings"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"`
	AI          AIConfig          `mapstructure:"ai"`
	Application ApplicationConfig `mapstructure:"application"`
	Clean       CleanConfig       `mapstructure:"clean"`
	OCR         OCRConfig         `mapstructure:"ocr"`
	Patch       PatchConfig       `mapstructure:"patch"`
}

type ApplicationConfig struct {
	Name        string        `mapstructure:"name"`
	Version     string        `mapstructure:"version"`
	Host        string        `mapstructure:"host"`
	Port        int           `mapstructure:"port"`
	MaxUploadMB int           `mapstructure:"max_upload_mb"`
	Storage     StorageConfig `mapstructure:"storage"`
	Report      string        `mapstructure:"report"` // markdown | html | yaml
	Watch       bool          `mapstructure:"watch"`  // server also runs the stage observer
}

type StorageConfig struct {
	Stage  string `mapstructure:"stage"`
	Output string `mapstructure:"output"`
	Done   string `mapstructure:"done"`
	Temp   string `mapstructure:"temp"`
}

type AIConfig struct {
	ActiveProvider string                      `mapstructure:"active_provider"`
	Providers      map[string]ProviderSettings `mapstructure:"providers"`
}

type ProviderSettings struct {
	Driver      string  `mapstructure:"driver"` // gemini
	Key         string  `mapstructure:"key"`
	Model       string  `mapstructure:"model"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// Active returns the settings of the active provider.
func (c *AIConfig) Active() (ProviderSettings, bool) {
	p, ok := c.Providers[c.ActiveProvider]
	return p, ok
}

// CleanConfig mirrors settings.Settings in configuration form.
type CleanConfig struct {
	Mode                string                  `mapstructure:"mode"`
	CustomFont          bool                    `mapstructure:"custom_font"`
	FontFamily          string                  `mapstructure:"font_family"`
	FontSize            int                     `mapstructure:"font_size"`
	Spacing             int                     `mapstructure:"spacing"`
	SpacingPreset       string                  `mapstructure:"spacing_preset"`
	Bold                bool                    `mapstructure:"bold"`
	TextColor           string                  `mapstructure:"text_color"`
	BackgroundColor     string                  `mapstructure:"background_color"`
	RemoveDuplicates    bool                    `mapstructure:"remove_duplicates"`
	RemoveAnimations    bool                    `mapstructure:"remove_animations"`
	EnableOCR           bool                    `mapstructure:"enable_ocr"`
	RemoveTheme         bool                    `mapstructure:"remove_theme"`
	ExpandAbbreviations bool                    `mapstructure:"expand_abbreviations"`
	Abbreviations       []settings.Abbreviation `mapstructure:"abbreviations"`
}

type OCRConfig struct {
	Engine    string        `mapstructure:"engine"` // tesseract | gemini
	Languages []string      `mapstructure:"languages"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type PatchConfig struct {
	Rules []PatchRule `mapstructure:"rules"`
}

type PatchRule struct {
	Attribute string `mapstructure:"attribute"`
	Value     string `mapstructure:"value"`
}

type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Path     string `mapstructure:"path"` // SQLite file
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	Options  string `mapstructure:"options"`
}

// GetConnectStr returns the journal connection string: the URL if set, then
// the SQLite path, then a postgres URL built from the host fields. Empty
// means no journal.
func (c *DatabaseConfig) GetConnectStr() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Path != "" {
		return c.Path
	}
	if c.Host == "" {
		return ""
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, sslmode)

	if c.Options != "" {
		// Basic URL encoding for the options value: space -> %20
		encodedOptions := strings.ReplaceAll(c.Options, " ", "%20")
		connStr += fmt.Sprintf("&options=%s", encodedOptions)
	}

	return connStr
}

// Environment variable mappings
var mappings = []struct {
	key, env string
}{
	{"database.url", "DB_URL"},
	{"database.path", "SQLITE_PATH"},
	{"database.host", "PG_HOST"},
	{"database.port", "PG_PORT"},
	{"database.user", "PG_USER"},
	{"database.password", "PG_PASSWORD"},
	{"database.dbname", "PG_DB"},
	{"database.sslmode", "PG_SSLMODE"},
	{"database.options", "PG_OPTIONS"},
	{"application.port", "PORT"},
	{"application.report", "REPORT_FORMAT"},
	{"application.watch", "WATCH"},
	{"ai.active_provider", "AI_PROVIDER"},

	// Storage
	{"application.storage.stage", "STORAGE_STAGE"},
	{"application.storage.output", "STORAGE_OUTPUT"},
	{"application.storage.done", "STORAGE_DONE"},
	{"application.storage.temp", "STORAGE_TEMP"},

	// AI Providers
	{"ai.providers.gemini.key", "GEMINI_KEY"},
	{"ai.providers.gemini.model", "GEMINI_MODEL"},

	// Cleaning
	{"clean.mode", "CLEAN_MODE"},
	{"clean.font_family", "CLEAN_FONT_FAMILY"},
	{"clean.font_size", "CLEAN_FONT_SIZE"},
	{"clean.spacing", "CLEAN_SPACING"},
	{"clean.spacing_preset", "CLEAN_SPACING_PRESET"},
	{"clean.text_color", "CLEAN_TEXT_COLOR"},
	{"clean.background_color", "CLEAN_BACKGROUND_COLOR"},
	{"ocr.engine", "OCR_ENGINE"},
	{"ocr.timeout", "OCR_TIMEOUT"},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("application.name", "SlideClean")
	v.SetDefault("application.host", "")
	v.SetDefault("application.port", 8080)
	v.SetDefault("application.max_upload_mb", 200)
	v.SetDefault("application.report", "markdown")
	v.SetDefault("application.storage.stage", "stage")
	v.SetDefault("application.storage.output", "output")
	v.SetDefault("application.storage.done", "done")

	d := settings.Default()
	v.SetDefault("clean.mode", string(cleaner.ModeObjectModel))
	v.SetDefault("clean.font_family", d.FontFamily)
	v.SetDefault("clean.font_size", d.FontSizePt)
	v.SetDefault("clean.spacing", d.TextSpacing)
	v.SetDefault("clean.bold", d.Bold)
	v.SetDefault("clean.text_color", d.TextColor.String())
	v.SetDefault("clean.background_color", d.BackgroundColor.String())
	v.SetDefault("clean.remove_duplicates", d.RemoveDuplicates)

	v.SetDefault("ocr.engine", "tesseract")
	v.SetDefault("ocr.languages", []string{"eng"})
	v.SetDefault("ocr.timeout", "30s")
	v.SetDefault("ai.active_provider", "gemini")
	v.SetDefault("ai.providers.gemini.driver", "gemini")
}

// LoadConfig reads .env, the optional config file and the environment into
// the global viper instance, so flags bound there by the CLI take part.
// An empty configFile means config.yaml in the working directory.
func LoadConfig(configFile string) (*Config, error) {
	return LoadConfigWith(viper.GetViper(), configFile)
}

// LoadConfigWith is LoadConfig on a caller-owned viper instance.
func LoadConfigWith(v *viper.Viper, configFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: .env file not found, using system environment variables")
	}
	return load(v, configFile)
}

func load(v *viper.Viper, configFile string) (*Config, error) {
	explicit := configFile != ""
	if !explicit {
		configFile = "config.yaml" // Support optional config.yaml
	}
	v.SetConfigFile(configFile)
	v.AutomaticEnv()

	for _, m := range mappings {
		if err := v.BindEnv(m.key, m.env); err != nil {
			return nil, err
		}
	}
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil && explicit {
		return nil, fmt.Errorf("reading %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.AI.ActiveProvider == "" {
		cfg.AI.ActiveProvider = "gemini"
	}

	return &cfg, nil
}

// Settings builds the immutable run settings.
func (c *Config) Settings() (settings.Settings, error) {
	cc := c.Clean
	s := settings.Settings{
		EnableCustomFont:    cc.CustomFont,
		FontFamily:          cc.FontFamily,
		FontSizePt:          cc.FontSize,
		TextSpacing:         cc.Spacing,
		Bold:                cc.Bold,
		RemoveDuplicates:    cc.RemoveDuplicates,
		RemoveAnimations:    cc.RemoveAnimations,
		EnableOCR:           cc.EnableOCR,
		RemoveTheme:         cc.RemoveTheme,
		ExpandAbbreviations: cc.ExpandAbbreviations,
		Abbreviations:       cc.Abbreviations,
	}
	if cc.SpacingPreset != "" {
		spc, err := settings.SpacingPreset(cc.SpacingPreset)
		if err != nil {
			return s, err
		}
		s.TextSpacing = spc
	}
	var err error
	if s.TextColor, err = settings.ParseRGB(cc.TextColor); err != nil {
		return s, fmt.Errorf("text_color: %w", err)
	}
	if s.BackgroundColor, err = settings.ParseRGB(cc.BackgroundColor); err != nil {
		return s, fmt.Errorf("background_color: %w", err)
	}
	if len(s.Abbreviations) == 0 {
		s.Abbreviations = settings.DefaultAbbreviations
	}
	return s, s.Validate()
}

// Mode returns the configured editing mode.
func (c *Config) Mode() (cleaner.Mode, error) {
	return cleaner.ParseMode(c.Clean.Mode)
}

// PatchRules returns the configured raw patch rules, or nil to use the
// default spacing rule.
func (c *Config) PatchRules() []patch.Rule {
	var rules []patch.Rule
	for _, r := range c.Patch.Rules {
		rules = append(rules, patch.Rule{Attribute: r.Attribute, Value: r.Value})
	}
	return rules
}
