package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// WakeChanged is true when the wake phrase, its variations, the
	// similarity threshold or the phonetic flag changed.
	WakeChanged bool

	// SessionChanged is true when the command timeout or history bound
	// changed.
	SessionChanged bool
}

// Any reports whether the diff contains at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.WakeChanged || d.SessionChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart; audio, VAD and
// STT settings need a full restart to take effect.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Wake.Word != new.Wake.Word ||
		old.Wake.SimilarityThreshold != new.Wake.SimilarityThreshold ||
		old.Wake.PhoneticEnabled() != new.Wake.PhoneticEnabled() ||
		!slices.Equal(old.Wake.Variations, new.Wake.Variations) {
		d.WakeChanged = true
	}

	if old.Session.CommandTimeout != new.Session.CommandTimeout ||
		old.Session.MaxHistory != new.Session.MaxHistory {
		d.SessionChanged = true
	}

	return d
}
