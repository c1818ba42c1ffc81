// Package config resolves hexe's config directory and loads/saves its
// settings and named-float table. Key-binding lookup, status-bar
// formatting, and popup/notification drawing primitives live elsewhere;
// this package only parses and exposes the data they need.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	homedir "github.com/mitchellh/go-homedir"
	yaml "gopkg.in/yaml.v2"
)

const (
	configSubdir     = "hexe"
	settingsFileName = "settings.json"
	floatsFileName   = "floats.yaml"

	DefaultScrollbackLines = 10000
	DefaultFrameBudgetMs   = 16
	DefaultStatusBarMs     = 250
)

// ConfigDir is resolved once at startup by InitConfigDir.
var ConfigDir string

// InitConfigDir finds hexe's configuration directory, honoring
// HEXE_CONFIG_HOME, then XDG_CONFIG_HOME, then ~/.config. An explicit
// flag value (from --config-dir) overrides both when it exists.
func InitConfigDir(flagConfigDir string) error {
	configHome := os.Getenv("HEXE_CONFIG_HOME")
	if configHome == "" {
		xdgHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgHome == "" {
			home, err := homedir.Dir()
			if err != nil {
				return errors.New("error finding your home directory: can't load config files: " + err.Error())
			}
			xdgHome = filepath.Join(home, ".config")
		}
		configHome = filepath.Join(xdgHome, configSubdir)
	}
	ConfigDir = configHome

	var warn error
	if len(flagConfigDir) > 0 {
		if _, err := os.Stat(flagConfigDir); os.IsNotExist(err) {
			warn = fmt.Errorf("config dir %q does not exist, defaulting to %s", flagConfigDir, ConfigDir)
		} else {
			ConfigDir = flagConfigDir
			return nil
		}
	}

	if err := os.MkdirAll(ConfigDir, os.ModePerm); err != nil {
		return errors.New("error creating configuration directory: " + err.Error())
	}
	return warn
}

func settingsFilePath() string { return filepath.Join(ConfigDir, settingsFileName) }
func floatsFilePath() string   { return filepath.Join(ConfigDir, floatsFileName) }

// Settings holds the scalar, machine-written configuration knobs.
type Settings struct {
	Terminal   TerminalSettings   `json:"terminal"`
	Appearance AppearanceSettings `json:"appearance"`
	Behavior   BehaviorSettings   `json:"behavior"`
}

type TerminalSettings struct {
	ScrollbackLines int `json:"scrollback_lines"`
}

type AppearanceSettings struct {
	Theme string `json:"theme"`
}

type BehaviorSettings struct {
	// ExitConfirmOnLastTab, when true, pops a MUX confirm dialog instead
	// of exiting immediately when the last tab closes.
	ExitConfirmOnLastTab bool `json:"exit_confirm_on_last_tab"`
}

func DefaultSettings() *Settings {
	return &Settings{
		Terminal:   TerminalSettings{ScrollbackLines: DefaultScrollbackLines},
		Appearance: AppearanceSettings{Theme: "default"},
		Behavior:   BehaviorSettings{ExitConfirmOnLastTab: true},
	}
}

// Global is the process-wide loaded settings instance.
var Global = DefaultSettings()

// LoadSettings reads settings.json, falling back to defaults on any error.
func LoadSettings() *Settings {
	data, err := os.ReadFile(settingsFilePath())
	if err != nil {
		Global = DefaultSettings()
		return Global
	}

	s := DefaultSettings()
	if err := json.Unmarshal(data, s); err != nil {
		Global = DefaultSettings()
		return Global
	}
	if s.Terminal.ScrollbackLines <= 0 {
		s.Terminal.ScrollbackLines = DefaultScrollbackLines
	}
	Global = s
	return Global
}

// SaveSettings persists settings.json.
func SaveSettings(s *Settings) error {
	if err := os.MkdirAll(ConfigDir, 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(settingsFilePath(), data, 0644); err != nil {
		return err
	}
	Global = s
	return nil
}

// ValidationError describes one rejected settings field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string { return fmt.Sprintf("%s: %s", e.Field, e.Message) }

// ValidateSettingsJSON parses and validates settings without installing them.
func ValidateSettingsJSON(data []byte) (*Settings, []ValidationError) {
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, []ValidationError{{Field: "json", Message: "invalid JSON: " + err.Error()}}
	}

	var errs []ValidationError
	if s.Terminal.ScrollbackLines < 0 {
		errs = append(errs, ValidationError{Field: "terminal.scrollback_lines", Message: "must be non-negative"})
	} else if s.Terminal.ScrollbackLines > 1000000 {
		errs = append(errs, ValidationError{Field: "terminal.scrollback_lines", Message: "must be <= 1000000"})
	}
	if s.Appearance.Theme != "" && !validThemeName.MatchString(s.Appearance.Theme) {
		errs = append(errs, ValidationError{Field: "appearance.theme", Message: "must match [a-z0-9_-]+"})
	}

	if len(errs) > 0 {
		return &s, errs
	}
	return &s, nil
}

var validThemeName = regexp.MustCompile(`^[a-z0-9_-]+$`)

// FloatDefinition is a named-float binding.
type FloatDefinition struct {
	Key       byte     `yaml:"-"`
	Command   []string `yaml:"command"`
	Title     string   `yaml:"title"`
	Exclusive bool     `yaml:"exclusive"`
	PerCWD    bool     `yaml:"per_cwd"`
	Sticky    bool     `yaml:"sticky"`
	WidthPct  float64  `yaml:"width_pct"`
	HeightPct float64  `yaml:"height_pct"`
}

// LoadFloatDefinitions reads floats.yaml; a missing file yields an empty set.
func LoadFloatDefinitions() ([]FloatDefinition, error) {
	data, err := os.ReadFile(floatsFilePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var defs []FloatDefinition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", floatsFileName, err)
	}
	// "key" is a one-character string in the file; Key holds its byte.
	var keys []struct {
		Key string `yaml:"key"`
	}
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", floatsFileName, err)
	}
	for i := range defs {
		if i < len(keys) && keys[i].Key != "" {
			defs[i].Key = keys[i].Key[0]
		}
	}
	return defs, nil
}
