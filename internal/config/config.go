// Package config loads vera's on-disk configuration: a YAML file (env vars
// expanded before parsing), optionally preceded by a .env file for secrets
// that shouldn't live in the YAML itself. Grounded on haasonsaas-nexus's
// internal/config/config.go (os.ExpandEnv + yaml.v3 KnownFields decode +
// defaults pass + validation pass), narrowed to vera.Config's surface —
// bua.go's own Config struct is a plain struct-of-primitives defaulted
// inline in New(), with no file-based loader of its own to adapt.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/anxuanzi/vera-go"
	"github.com/anxuanzi/vera-go/captcha"
)

// File is the on-disk shape of vera's configuration file.
type File struct {
	Executor string `yaml:"executor"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`

	Profile ProfileConfig `yaml:"profile"`

	Headless     bool          `yaml:"headless"`
	ViewportName string        `yaml:"viewport"`
	Tokens       string        `yaml:"token_preset"`
	Captcha      CaptchaConfig `yaml:"captcha"`
	Logging      LoggingConfig `yaml:"logging"`
	Trace        TraceConfig   `yaml:"trace"`
	Debug        bool          `yaml:"debug"`
}

// ProfileConfig configures browser profile persistence.
type ProfileConfig struct {
	Name string `yaml:"name"`
	Dir  string `yaml:"dir"`
}

// CaptchaConfig configures captcha gating policy.
type CaptchaConfig struct {
	// Policy is "abort" or "callback". Defaults to "abort".
	Policy        string `yaml:"policy"`
	MinConfidence float64 `yaml:"min_confidence"`
	PollMs        int     `yaml:"poll_ms"`
	TimeoutMs     int     `yaml:"timeout_ms"`
}

// LoggingConfig configures internal/obslog.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TraceConfig configures where runtime trace events are written.
type TraceConfig struct {
	// JSONLPath, if set, appends every trace event to this file as JSONL.
	JSONLPath string `yaml:"jsonl_path"`
	// Console enables the box-drawn console narrator.
	Console bool `yaml:"console"`
}

// ConfigValidationError collects every validation issue found in one pass,
// matching the teacher's accumulate-then-report pattern instead of
// failing on the first bad field.
type ConfigValidationError struct {
	Issues []string
}

func (e *ConfigValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

// Load reads envPath (if non-empty) into the process environment, then
// reads path, expands environment variables, and decodes it as YAML into a
// File, applying defaults and validating the result.
func Load(path, envPath string) (*File, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: load env file: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var f File
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := dec.Decode(new(struct{})); err != io.EOF {
		return nil, fmt.Errorf("config: expected a single YAML document")
	}

	applyDefaults(&f)

	if err := validate(&f); err != nil {
		return nil, err
	}

	return &f, nil
}

func applyDefaults(f *File) {
	if f.Executor == "" {
		f.Executor = string(vera.ExecutorGemini)
	}
	if f.ViewportName == "" {
		f.ViewportName = "desktop"
	}
	if f.Tokens == "" {
		f.Tokens = "balanced"
	}
	if f.Captcha.Policy == "" {
		f.Captcha.Policy = "abort"
	}
	if f.Captcha.MinConfidence == 0 {
		f.Captcha.MinConfidence = captcha.DefaultPolicyConfig().MinConfidence
	}
	if f.Logging.Level == "" {
		f.Logging.Level = "info"
	}
	if f.Logging.Format == "" {
		f.Logging.Format = "json"
	}
}

func validate(f *File) error {
	var issues []string

	if f.APIKey == "" {
		issues = append(issues, "api_key is required")
	}
	switch vera.ExecutorKind(strings.ToLower(f.Executor)) {
	case vera.ExecutorGemini, vera.ExecutorAnthropic:
	default:
		issues = append(issues, fmt.Sprintf("executor must be %q or %q, got %q", vera.ExecutorGemini, vera.ExecutorAnthropic, f.Executor))
	}
	if !validViewport(f.ViewportName) {
		issues = append(issues, "viewport must be \"desktop\", \"large_desktop\", \"tablet\", or \"mobile\"")
	}
	if !validTokenPreset(f.Tokens) {
		issues = append(issues, "token_preset must be \"efficient\", \"balanced\", \"quality\", or \"maximum\"")
	}
	switch strings.ToLower(f.Captcha.Policy) {
	case "abort", "callback":
	default:
		issues = append(issues, "captcha.policy must be \"abort\" or \"callback\"")
	}
	if f.Captcha.MinConfidence < 0 || f.Captcha.MinConfidence > 1 {
		issues = append(issues, "captcha.min_confidence must be between 0 and 1")
	}

	if len(issues) > 0 {
		return &ConfigValidationError{Issues: issues}
	}
	return nil
}

func validViewport(v string) bool {
	switch strings.ToLower(v) {
	case "desktop", "large_desktop", "tablet", "mobile":
		return true
	default:
		return false
	}
}

func validTokenPreset(v string) bool {
	switch strings.ToLower(v) {
	case "efficient", "balanced", "quality", "maximum":
		return true
	default:
		return false
	}
}

// Viewport resolves the file's viewport name to a *vera.Viewport.
func (f *File) Viewport() *vera.Viewport {
	switch strings.ToLower(f.ViewportName) {
	case "large_desktop":
		return vera.LargeDesktopViewport
	case "tablet":
		return vera.TabletViewport
	case "mobile":
		return vera.MobileViewport
	default:
		return vera.DesktopViewport
	}
}

// TokenPreset resolves the file's token_preset name to a *vera.TokenPreset.
func (f *File) TokenPreset() *vera.TokenPreset {
	switch strings.ToLower(f.Tokens) {
	case "efficient":
		return vera.TokenPresetEfficient
	case "quality":
		return vera.TokenPresetQuality
	case "maximum":
		return vera.TokenPresetMaximum
	default:
		return vera.TokenPresetBalanced
	}
}

// CaptchaPolicyConfig resolves to a captcha.PolicyConfig.
func (f *File) CaptchaPolicyConfig() captcha.PolicyConfig {
	cfg := captcha.DefaultPolicyConfig()
	switch strings.ToLower(f.Captcha.Policy) {
	case "callback":
		cfg.Policy = captcha.PolicyCallback
	default:
		cfg.Policy = captcha.PolicyAbort
	}
	cfg.MinConfidence = f.Captcha.MinConfidence
	if f.Captcha.PollMs > 0 {
		cfg.PollMs = f.Captcha.PollMs
	}
	if f.Captcha.TimeoutMs > 0 {
		cfg.TimeoutMs = f.Captcha.TimeoutMs
	}
	return cfg
}

// ToAgentConfig builds a vera.Config from the loaded file. TraceSinks is
// left for the caller to populate (cmd/vera wires internal/console and a
// JSONL file sink based on f.Trace).
func (f *File) ToAgentConfig() vera.Config {
	cfg := vera.Config{
		Executor:       vera.ExecutorKind(strings.ToLower(f.Executor)),
		APIKey:         f.APIKey,
		Model:          f.Model,
		ProfileName:    f.Profile.Name,
		ProfileDir:     f.Profile.Dir,
		Headless:       f.Headless,
		Viewport:       f.Viewport(),
		CaptchaPolicy:  f.CaptchaPolicyConfig(),
		Debug:          f.Debug,
	}
	cfg.ApplyTokenPreset(f.TokenPreset())
	return cfg
}
