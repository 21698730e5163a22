// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides unified configuration loading and management for pyllamaui.
//
// Supports TOML, JSON and YAML configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.pyllamaui/config.toml
//   - ~/.pyllamaui/config.json
//   - ~/.pyllamaui/config.yaml
//   - Built-in defaults
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/pyllamaui/internal/inference"
	"github.com/jeranaias/pyllamaui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Backend kinds.
const (
	BackendHTTP    = "http"
	BackendProcess = "process"
)

// Panel themes.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Config represents the complete pyllamaui configuration.
type Config struct {
	// DefaultModel is used when a prompt names no model. setModel updates it.
	DefaultModel string `toml:"default_model" json:"default_model" yaml:"default_model"`

	Backend BackendConfig `toml:"backend" json:"backend" yaml:"backend"`
	UI      UIConfig      `toml:"ui" json:"ui" yaml:"ui"`
	History HistoryConfig `toml:"history" json:"history" yaml:"history"`
	Log     LogConfig     `toml:"log" json:"log" yaml:"log"`
	Panel   PanelConfig   `toml:"panel" json:"panel" yaml:"panel"`
}

// BackendConfig selects and configures the model backend.
type BackendConfig struct {
	// Kind is "http" (Ollama server) or "process" (helper script).
	Kind string `toml:"kind" json:"kind" yaml:"kind"`
	// OllamaURL is the Ollama server address.
	OllamaURL string `toml:"ollama_url" json:"ollama_url" yaml:"ollama_url"`
	// PythonPath is the interpreter for the helper script.
	PythonPath string `toml:"python_path" json:"python_path" yaml:"python_path"`
	// ScriptPath is the helper script.
	ScriptPath string `toml:"script_path" json:"script_path" yaml:"script_path"`
	// StartOllama launches "ollama serve" when the server is not reachable.
	StartOllama bool `toml:"start_ollama" json:"start_ollama" yaml:"start_ollama"`
}

// UIConfig holds presentation settings shared by every front end.
type UIConfig struct {
	Theme     string `toml:"theme" json:"theme" yaml:"theme"`
	RenderFPS int    `toml:"render_fps" json:"render_fps" yaml:"render_fps"`
	WordWrap  int    `toml:"word_wrap" json:"word_wrap" yaml:"word_wrap"`
}

// HistoryConfig controls the turn history database.
type HistoryConfig struct {
	Enabled  bool   `toml:"enabled" json:"enabled" yaml:"enabled"`
	Path     string `toml:"path" json:"path" yaml:"path"`
	MaxTurns int    `toml:"max_turns" json:"max_turns" yaml:"max_turns"`
}

// LogConfig controls the log file.
type LogConfig struct {
	Level string `toml:"level" json:"level" yaml:"level"`
	Path  string `toml:"path" json:"path" yaml:"path"`
}

// PanelConfig configures the webview panel server.
type PanelConfig struct {
	Addr           string   `toml:"addr" json:"addr" yaml:"addr"`
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins" yaml:"allowed_origins"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		DefaultModel: inference.DefaultModel,
		Backend: BackendConfig{
			Kind:       BackendHTTP,
			OllamaURL:  "http://127.0.0.1:11434",
			PythonPath: "python3",
			ScriptPath: filepath.Join("py", "run_prompt.py"),
		},
		UI: UIConfig{
			Theme:     ThemeDark,
			RenderFPS: 30,
			WordWrap:  80,
		},
		History: HistoryConfig{
			Enabled:  true,
			MaxTurns: 1000,
		},
		Log: LogConfig{
			Level: "info",
		},
		Panel: PanelConfig{
			Addr: "127.0.0.1:8765",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the pyllamaui configuration directory path.
// PYLLAMAUI_HOME overrides the default of ~/.pyllamaui.
func ConfigDir() (string, error) {
	if dir := os.Getenv("PYLLAMAUI_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".pyllamaui"), nil
}

// configPath returns a file inside the config directory.
func configPath(name string) (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) { return configPath("config.toml") }

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) { return configPath("config.json") }

// ConfigPathYAML returns the path to the YAML config file.
func ConfigPathYAML() (string, error) { return configPath("config.yaml") }

// HistoryPath returns the configured history database, defaulting to the
// config directory.
func (c *Config) HistoryPath() (string, error) {
	if c.History.Path != "" {
		return c.History.Path, nil
	}
	return configPath("history.db")
}

// LogPath returns the configured log file, defaulting to the config directory.
func (c *Config) LogPath() (string, error) {
	if c.Log.Path != "" {
		return c.Log.Path, nil
	}
	return configPath("pyllamaui.log")
}

// ensureSecurePermissions tightens a config file to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Path returns the config file Load would read: the first existing of
// TOML, JSON and YAML, or the TOML path when none exists.
func Path() (string, error) {
	for _, fn := range []func() (string, error){ConfigPathTOML, ConfigPathJSON, ConfigPathYAML} {
		p, err := fn()
		if err != nil {
			return "", err
		}
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return ConfigPathTOML()
}

// Load loads configuration from the config file, falling back to defaults.
// Environment overrides are applied last. A file that fails to parse is
// reported alongside the defaults.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, err
	}

	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		cfg.ApplyEnvOverrides()
		return cfg, cfg.Validate()
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		def := Default()
		def.ApplyEnvOverrides()
		return def, err
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file with full validation.
// The format follows the file extension; anything else is read as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := decodeFile(cfg, path); err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	if err := fillDefaults(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decodeFile(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode JSON config %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode YAML config %s: %w", path, err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to decode TOML config %s: %w", path, err)
		}
	}
	return nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) error {
	defaults := Default()

	if cfg.DefaultModel == "" {
		cfg.DefaultModel = defaults.DefaultModel
	}

	// Backend
	if cfg.Backend.Kind == "" {
		cfg.Backend.Kind = defaults.Backend.Kind
	}
	if cfg.Backend.OllamaURL == "" {
		cfg.Backend.OllamaURL = defaults.Backend.OllamaURL
	}
	if cfg.Backend.PythonPath == "" {
		cfg.Backend.PythonPath = defaults.Backend.PythonPath
	}
	if cfg.Backend.ScriptPath == "" {
		cfg.Backend.ScriptPath = defaults.Backend.ScriptPath
	}

	// UI
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	if cfg.UI.RenderFPS == 0 {
		cfg.UI.RenderFPS = defaults.UI.RenderFPS
	}
	if cfg.UI.WordWrap == 0 {
		cfg.UI.WordWrap = defaults.UI.WordWrap
	}

	// History
	if cfg.History.MaxTurns == 0 {
		cfg.History.MaxTurns = defaults.History.MaxTurns
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaults.Log.Level
	}

	// Panel
	if cfg.Panel.Addr == "" {
		cfg.Panel.Addr = defaults.Panel.Addr
	}

	return nil
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration back to the file Load reads, creating the
// TOML file when none exists.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the configuration to path in the format its extension names.
// Files are written atomically with 0600 permissions.
func SaveTo(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = encodeTOML(cfg)
	}
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFileWithDir(path, data, 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func encodeTOML(cfg *Config) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# pyllamaui configuration file\n")
	buf.WriteString("# Written by pyllamaui; setModel and setTheme update it in place.\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if strings.ContainsAny(c.DefaultModel, " \t\n") {
		errs = append(errs, ValidationError{"default_model", "must not contain whitespace"})
	}

	switch c.Backend.Kind {
	case BackendHTTP, BackendProcess:
	default:
		errs = append(errs, ValidationError{"backend.kind", fmt.Sprintf("must be %q or %q, got %q", BackendHTTP, BackendProcess, c.Backend.Kind)})
	}
	if c.Backend.OllamaURL != "" {
		u, err := url.Parse(c.Backend.OllamaURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, ValidationError{"backend.ollama_url", "must be an http(s) URL with a host"})
		}
	}
	if c.Backend.Kind == BackendProcess && c.Backend.ScriptPath == "" {
		errs = append(errs, ValidationError{"backend.script_path", "required for the process backend"})
	}

	switch c.UI.Theme {
	case ThemeDark, ThemeLight:
	default:
		errs = append(errs, ValidationError{"ui.theme", fmt.Sprintf("must be %q or %q", ThemeDark, ThemeLight)})
	}
	if c.UI.RenderFPS < 1 || c.UI.RenderFPS > 120 {
		errs = append(errs, ValidationError{"ui.render_fps", "must be between 1 and 120"})
	}
	if c.UI.WordWrap < 20 || c.UI.WordWrap > 400 {
		errs = append(errs, ValidationError{"ui.word_wrap", "must be between 20 and 400"})
	}

	if c.History.MaxTurns < 0 {
		errs = append(errs, ValidationError{"history.max_turns", "must not be negative"})
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{"log.level", "must be debug, info, warn or error"})
	}

	if _, port, err := net.SplitHostPort(c.Panel.Addr); err != nil || port == "" {
		errs = append(errs, ValidationError{"panel.addr", "must be host:port"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides.
//   - PYLLAMAUI_MODEL: overrides default_model
//   - PYLLAMAUI_BACKEND: overrides backend.kind
//   - PYLLAMAUI_OLLAMA_URL: overrides backend.ollama_url
//   - PYLLAMAUI_PYTHON: overrides backend.python_path
//   - PYLLAMAUI_LOG_LEVEL: overrides log.level
func (c *Config) ApplyEnvOverrides() {
	if model := os.Getenv("PYLLAMAUI_MODEL"); model != "" {
		c.DefaultModel = model
	}
	if kind := os.Getenv("PYLLAMAUI_BACKEND"); kind != "" {
		c.Backend.Kind = strings.ToLower(kind)
	}
	if u := os.Getenv("PYLLAMAUI_OLLAMA_URL"); u != "" {
		c.Backend.OllamaURL = u
	}
	if python := os.Getenv("PYLLAMAUI_PYTHON"); python != "" {
		c.Backend.PythonPath = python
	}
	if level := os.Getenv("PYLLAMAUI_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "backend.kind").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "ui.theme").
// String values are converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks dot-separated keys down the struct tree.
func (c *Config) lookup(key string) (reflect.Value, error) {
	if strings.TrimSpace(key) == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(part[:1]))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strings.ToLower(strVal))
			if err != nil {
				boolVal = strings.EqualFold(strVal, "yes")
			}
			field.SetBool(boolVal)
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var items []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						items = append(items, s)
					}
				}
				field.Set(reflect.ValueOf(items))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return fmt.Errorf("cannot assign nil to %s", field.Type())
	}
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// Keys returns all configuration keys in dot notation.
func Keys() []string {
	return []string{
		"default_model",
		"backend.kind",
		"backend.ollama_url",
		"backend.python_path",
		"backend.script_path",
		"backend.start_ollama",
		"ui.theme",
		"ui.render_fps",
		"ui.word_wrap",
		"history.enabled",
		"history.path",
		"history.max_turns",
		"log.level",
		"log.path",
		"panel.addr",
		"panel.allowed_origins",
	}
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Panel.AllowedOrigins != nil {
		clone.Panel.AllowedOrigins = append([]string(nil), c.Panel.AllowedOrigins...)
	}
	return &clone
}
