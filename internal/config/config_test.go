package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitConfigDirHonorsHexeConfigHomeEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HEXE_CONFIG_HOME", dir)
	assert.NoError(t, InitConfigDir(""))
	assert.Equal(t, dir, ConfigDir)
}

func TestInitConfigDirFlagOverridesEnvWhenItExists(t *testing.T) {
	envDir := t.TempDir()
	flagDir := t.TempDir()
	t.Setenv("HEXE_CONFIG_HOME", envDir)
	assert.NoError(t, InitConfigDir(flagDir))
	assert.Equal(t, flagDir, ConfigDir)
}

func TestInitConfigDirFallsBackWhenFlagDirMissing(t *testing.T) {
	envDir := t.TempDir()
	t.Setenv("HEXE_CONFIG_HOME", envDir)
	err := InitConfigDir(filepath.Join(envDir, "does-not-exist"))
	assert.Error(t, err)
	assert.Equal(t, envDir, ConfigDir)
}

func TestLoadSettingsFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	ConfigDir = t.TempDir()
	s := LoadSettings()
	assert.Equal(t, DefaultScrollbackLines, s.Terminal.ScrollbackLines)
	assert.Equal(t, "default", s.Appearance.Theme)
	assert.True(t, s.Behavior.ExitConfirmOnLastTab)
}

func TestSaveThenLoadSettingsRoundTrips(t *testing.T) {
	ConfigDir = t.TempDir()
	s := DefaultSettings()
	s.Appearance.Theme = "midnight"
	s.Terminal.ScrollbackLines = 5000
	assert.NoError(t, SaveSettings(s))

	loaded := LoadSettings()
	assert.Equal(t, "midnight", loaded.Appearance.Theme)
	assert.Equal(t, 5000, loaded.Terminal.ScrollbackLines)
}

func TestLoadSettingsCorrectsNonPositiveScrollback(t *testing.T) {
	ConfigDir = t.TempDir()
	assert.NoError(t, os.WriteFile(settingsFilePath(), []byte(`{"terminal":{"scrollback_lines":0}}`), 0644))
	s := LoadSettings()
	assert.Equal(t, DefaultScrollbackLines, s.Terminal.ScrollbackLines)
}

func TestValidateSettingsJSONRejectsInvalidJSON(t *testing.T) {
	_, errs := ValidateSettingsJSON([]byte("not json"))
	assert.Len(t, errs, 1)
	assert.Equal(t, "json", errs[0].Field)
}

func TestValidateSettingsJSONRejectsOutOfRangeScrollback(t *testing.T) {
	_, errs := ValidateSettingsJSON([]byte(`{"terminal":{"scrollback_lines":-1}}`))
	assert.Len(t, errs, 1)
	assert.Equal(t, "terminal.scrollback_lines", errs[0].Field)

	_, errs = ValidateSettingsJSON([]byte(`{"terminal":{"scrollback_lines":2000000}}`))
	assert.Len(t, errs, 1)
}

func TestValidateSettingsJSONRejectsMalformedThemeName(t *testing.T) {
	_, errs := ValidateSettingsJSON([]byte(`{"appearance":{"theme":"Not Valid!"}}`))
	assert.Len(t, errs, 1)
	assert.Equal(t, "appearance.theme", errs[0].Field)
}

func TestValidateSettingsJSONAcceptsValidSettings(t *testing.T) {
	s, errs := ValidateSettingsJSON([]byte(`{"terminal":{"scrollback_lines":200},"appearance":{"theme":"dark-mode_2"}}`))
	assert.Empty(t, errs)
	assert.Equal(t, 200, s.Terminal.ScrollbackLines)
}

func TestLoadFloatDefinitionsEmptyWhenFileMissing(t *testing.T) {
	ConfigDir = t.TempDir()
	defs, err := LoadFloatDefinitions()
	assert.NoError(t, err)
	assert.Empty(t, defs)
}

func TestLoadFloatDefinitionsParsesYAML(t *testing.T) {
	ConfigDir = t.TempDir()
	yamlDoc := `
- key: g
  command: ["lazygit"]
  title: git
  exclusive: true
  width_pct: 0.8
  height_pct: 0.8
`
	assert.NoError(t, os.WriteFile(floatsFilePath(), []byte(yamlDoc), 0644))

	defs, err := LoadFloatDefinitions()
	assert.NoError(t, err)
	assert.Len(t, defs, 1)
	assert.Equal(t, byte('g'), defs[0].Key)
	assert.Equal(t, []string{"lazygit"}, defs[0].Command)
	assert.True(t, defs[0].Exclusive)
}

func TestLoadFloatDefinitionsRejectsMalformedYAML(t *testing.T) {
	ConfigDir = t.TempDir()
	assert.NoError(t, os.WriteFile(floatsFilePath(), []byte("not: [valid yaml"), 0644))
	_, err := LoadFloatDefinitions()
	assert.Error(t, err)
}
