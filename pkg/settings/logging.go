package settings

import "github.com/rs/zerolog"

// ApplyLogging sets the process-wide zerolog level from the settings.
// Unknown level names leave the current level untouched.
func ApplyLogging(s Settings) {
	level, err := zerolog.ParseLevel(s.LogLevel)
	if err != nil || s.LogLevel == "" {
		return
	}
	zerolog.SetGlobalLevel(level)
}
