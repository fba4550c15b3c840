// Package settings provides application settings stored as a kernel
// global. Embedders load an optional pulse.yaml, install the result with
// Install, and thereafter read and mutate it through the global lease
// protocol so entities can watch for changes with state.ObserveGlobal.
package settings

import (
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-drift/pulse/pkg/errors"
	"github.com/go-drift/pulse/pkg/state"
)

// Duration wraps time.Duration with yaml support for strings like "250ms".
type Duration time.Duration

// UnmarshalYAML parses a Go duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Settings is the application's settings object.
type Settings struct {
	// AppName identifies the application in logs.
	AppName string `yaml:"app_name,omitempty"`
	// LogLevel is one of zerolog's level names (debug, info, warn, error).
	LogLevel string `yaml:"log_level,omitempty"`
	// QuitTimeout bounds how long App.Quit waits for quit handlers.
	QuitTimeout Duration `yaml:"quit_timeout,omitempty"`
}

// Default returns the settings used when no file is present.
func Default() Settings {
	return Settings{
		AppName:     "pulse",
		LogLevel:    "info",
		QuitTimeout: Duration(2 * time.Second),
	}
}

// Load reads settings from path. A missing file is not an error: defaults
// are returned, matching how the rest of the framework treats its
// optional configuration files. Read and parse failures come back as
// config-kind errors.
func Load(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Default(), configError(fmt.Errorf("failed to read %s: %w", path, err))
	}

	settings := Default()
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Default(), configError(fmt.Errorf("failed to parse %s: %w", path, err))
	}
	return settings, nil
}

func configError(err error) error {
	return &errors.Error{
		Op:        "settings.Load",
		Kind:      errors.KindConfig,
		Err:       err,
		Timestamp: time.Now(),
	}
}

// Install stores the settings as the app's Settings global.
func Install(app *state.App, s Settings) {
	state.SetGlobal(app, s)
}

// Current returns the app's Settings global, or defaults if none was
// installed.
func Current(app *state.App) Settings {
	if s, ok := state.ReadGlobal[Settings](app); ok {
		return s
	}
	return Default()
}
